package domain

import (
	"context"

	"github.com/google/uuid"
)

const (
	MaxLineQuantity = 20
	MaxCartLines    = 50
)

// CartStore keeps raw cart contents: product id to quantity.
type CartStore interface {
	Items(ctx context.Context, cartID uuid.UUID) (map[uuid.UUID]int, error)
	// SetQuantity stores qty for the line; qty <= 0 removes it.
	SetQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int) error
	Clear(ctx context.Context, cartID uuid.UUID) error
}

type CartLine struct {
	ProductID uuid.UUID  `json:"product_id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	ImageID   *uuid.UUID `json:"image_id,omitempty"`
	SKU       string     `json:"sku,omitempty"`
	UnitPrice int64      `json:"unit_price"`
	Quantity  int        `json:"quantity"`
	LineTotal int64      `json:"line_total"`
	Available bool       `json:"available"`
	Stock     int        `json:"stock"`
}

// CartView is a cart priced against current catalog data. Unavailable lines
// are listed but excluded from Subtotal and ItemCount.
type CartView struct {
	ID        uuid.UUID  `json:"id"`
	Lines     []CartLine `json:"lines"`
	Subtotal  int64      `json:"subtotal"`
	ItemCount int        `json:"item_count"`
}

func (v *CartView) AvailableLines() []CartLine {
	out := make([]CartLine, 0, len(v.Lines))
	for _, l := range v.Lines {
		if l.Available {
			out = append(out, l)
		}
	}
	return out
}

func (v *CartView) UnavailableNames() []string {
	var names []string
	for _, l := range v.Lines {
		if !l.Available {
			names = append(names, l.Name)
		}
	}
	return names
}
