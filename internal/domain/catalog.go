package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const MaxProductImages = 8

type Category struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description,omitempty"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
	Position    int        `json:"position"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Product prices are integer minor units.
type Product struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Slug           string      `json:"slug"`
	Description    string      `json:"description,omitempty"`
	Price          int64       `json:"price"`
	CompareAtPrice int64       `json:"compare_at_price,omitempty"`
	SKU            string      `json:"sku,omitempty"`
	Stock          int         `json:"stock"`
	CategoryID     *uuid.UUID  `json:"category_id,omitempty"`
	Active         bool        `json:"active"`
	Featured       bool        `json:"featured"`
	ImageIDs       []uuid.UUID `json:"image_ids"`
	RatingAvg      float64     `json:"rating_avg"`
	RatingCount    int         `json:"rating_count"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Purchasable reports whether qty units can currently be sold.
func (p *Product) Purchasable(qty int) bool {
	return p.Active && qty > 0 && p.Stock >= qty
}

type ProductSort string

const (
	SortNewest    ProductSort = "newest"
	SortPriceAsc  ProductSort = "price_asc"
	SortPriceDesc ProductSort = "price_desc"
	SortName      ProductSort = "name"
	SortRating    ProductSort = "rating"
)

func (s ProductSort) Valid() bool {
	switch s {
	case SortNewest, SortPriceAsc, SortPriceDesc, SortName, SortRating:
		return true
	}
	return false
}

type ProductFilter struct {
	Query           string
	CategorySlug    string
	MinPrice        int64
	MaxPrice        int64
	InStock         bool
	Featured        bool
	IncludeInactive bool
	Sort            ProductSort
	PageRequest
}

type CategoryRepository interface {
	List(ctx context.Context) ([]Category, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Category, error)
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProductRepository interface {
	List(ctx context.Context, f ProductFilter) ([]Product, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error)
	// Create and Update fail with ErrMediaNotFound when an image id does not
	// exist at write time.
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	// Delete removes the product, or deactivates it when orders reference it.
	Delete(ctx context.Context, id uuid.UUID) (softDeleted bool, err error)
	// AdjustStock adds delta to the stock and returns the new level.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

// ProductCache serves storefront product reads. Invalidate must reach every
// running instance.
type ProductCache interface {
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	Invalidate(ctx context.Context, slugs ...string) error
}
