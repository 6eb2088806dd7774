package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/slug"
	"github.com/google/uuid"
)

type CategoryInput struct {
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Position    int        `json:"position"`
}

type ProductInput struct {
	Name           string      `json:"name"`
	Slug           string      `json:"slug"`
	Description    string      `json:"description"`
	Price          int64       `json:"price"`
	CompareAtPrice int64       `json:"compare_at_price"`
	SKU            string      `json:"sku"`
	Stock          int         `json:"stock"`
	CategoryID     *uuid.UUID  `json:"category_id"`
	Active         bool        `json:"active"`
	Featured       bool        `json:"featured"`
	ImageIDs       []uuid.UUID `json:"image_ids"`
}

type CatalogService struct {
	categories domain.CategoryRepository
	products   domain.ProductRepository
	media      domain.MediaRepository
	cache      domain.ProductCache
}

func NewCatalogService(categories domain.CategoryRepository, products domain.ProductRepository, media domain.MediaRepository, cache domain.ProductCache) *CatalogService {
	return &CatalogService{categories: categories, products: products, media: media, cache: cache}
}

// --- Categories ---

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.List(ctx)
}

func (s *CatalogService) CreateCategory(ctx context.Context, in CategoryInput) (*domain.Category, error) {
	c := &domain.Category{}
	if err := s.applyCategory(ctx, c, in); err != nil {
		return nil, err
	}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id uuid.UUID, in CategoryInput) (*domain.Category, error) {
	c, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.ParentID != nil && *in.ParentID == id {
		return nil, apperrors.ValidationError("a category cannot be its own parent").WithField("field", "parent_id")
	}
	if err := s.applyCategory(ctx, c, in); err != nil {
		return nil, err
	}
	if err := s.categories.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CatalogService) applyCategory(ctx context.Context, c *domain.Category, in CategoryInput) error {
	name := strings.TrimSpace(in.Name)
	if err := requireLength("name", name, 1, 100); err != nil {
		return err
	}
	sl, err := resolveSlug(in.Slug, name)
	if err != nil {
		return err
	}
	if in.ParentID != nil {
		if _, err := s.categories.GetByID(ctx, *in.ParentID); err != nil {
			if errors.Is(err, domain.ErrCategoryNotFound) {
				return apperrors.ValidationError("parent category does not exist").WithField("field", "parent_id")
			}
			return err
		}
	}

	c.Name = name
	c.Slug = sl
	c.Description = strings.TrimSpace(in.Description)
	c.ParentID = in.ParentID
	c.Position = in.Position
	return nil
}

// DeleteCategory fails with domain.ErrCategoryInUse while products reference it.
func (s *CatalogService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return s.categories.Delete(ctx, id)
}

// --- Products ---

// ListProducts serves the storefront: inactive products are never listed.
func (s *CatalogService) ListProducts(ctx context.Context, f domain.ProductFilter) (domain.Page[domain.Product], error) {
	f.IncludeInactive = false
	return s.listProducts(ctx, f)
}

// ListAllProducts serves the back-office and honours IncludeInactive.
func (s *CatalogService) ListAllProducts(ctx context.Context, f domain.ProductFilter) (domain.Page[domain.Product], error) {
	return s.listProducts(ctx, f)
}

func (s *CatalogService) listProducts(ctx context.Context, f domain.ProductFilter) (domain.Page[domain.Product], error) {
	f.PageRequest = f.PageRequest.Normalize()
	if f.Sort == "" {
		f.Sort = domain.SortNewest
	}
	if !f.Sort.Valid() {
		return domain.Page[domain.Product]{}, apperrors.ValidationError("unknown sort order").WithField("sort", string(f.Sort))
	}
	if f.MinPrice < 0 || f.MaxPrice < 0 {
		return domain.Page[domain.Product]{}, apperrors.ValidationError("price bounds must not be negative")
	}
	if f.MinPrice > 0 && f.MaxPrice > 0 && f.MinPrice > f.MaxPrice {
		return domain.Page[domain.Product]{}, apperrors.ValidationError("min_price must not exceed max_price")
	}
	f.Query = strings.TrimSpace(f.Query)

	items, total, err := s.products.List(ctx, f)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	return domain.NewPage(items, total, f.PageRequest), nil
}

// GetProductBySlug serves the storefront from the product cache. Inactive
// products are reported as not found.
func (s *CatalogService) GetProductBySlug(ctx context.Context, productSlug string) (*domain.Product, error) {
	p, err := s.cache.GetBySlug(ctx, productSlug)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.products.GetByID(ctx, id)
}

func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	p := &domain.Product{}
	if err := s.applyProduct(ctx, p, in); err != nil {
		return nil, err
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, productWriteError(err)
	}
	return p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*domain.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldSlug := p.Slug

	if err := s.applyProduct(ctx, p, in); err != nil {
		return nil, err
	}
	if err := s.products.Update(ctx, p); err != nil {
		return nil, productWriteError(err)
	}

	s.invalidate(ctx, oldSlug, p.Slug)
	return p, nil
}

func (s *CatalogService) applyProduct(ctx context.Context, p *domain.Product, in ProductInput) error {
	name := strings.TrimSpace(in.Name)
	if err := requireLength("name", name, 1, 200); err != nil {
		return err
	}
	sl, err := resolveSlug(in.Slug, name)
	if err != nil {
		return err
	}
	if in.Price <= 0 {
		return apperrors.ValidationError("price must be positive").WithField("field", "price")
	}
	if in.CompareAtPrice != 0 && in.CompareAtPrice <= in.Price {
		return apperrors.ValidationError("compare_at_price must be greater than price").WithField("field", "compare_at_price")
	}
	if in.Stock < 0 {
		return apperrors.ValidationError("stock must not be negative").WithField("field", "stock")
	}
	sku := strings.TrimSpace(in.SKU)
	if err := requireLength("sku", sku, 0, 64); err != nil {
		return err
	}

	images, err := s.checkImages(ctx, in.ImageIDs)
	if err != nil {
		return err
	}
	if in.CategoryID != nil {
		if _, err := s.categories.GetByID(ctx, *in.CategoryID); err != nil {
			if errors.Is(err, domain.ErrCategoryNotFound) {
				return apperrors.ValidationError("category does not exist").WithField("field", "category_id")
			}
			return err
		}
	}

	p.Name = name
	p.Slug = sl
	p.Description = strings.TrimSpace(in.Description)
	p.Price = in.Price
	p.CompareAtPrice = in.CompareAtPrice
	p.SKU = sku
	p.Stock = in.Stock
	p.CategoryID = in.CategoryID
	p.Active = in.Active
	p.Featured = in.Featured
	p.ImageIDs = images
	return nil
}

// checkImages drops duplicate ids and verifies every image exists.
func (s *CatalogService) checkImages(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool, len(ids))
	images := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			images = append(images, id)
		}
	}
	if len(images) > domain.MaxProductImages {
		return nil, apperrors.ValidationError(fmt.Sprintf("a product can have at most %d images", domain.MaxProductImages)).
			WithField("field", "image_ids")
	}
	if len(images) == 0 {
		return images, nil
	}

	missing, err := s.media.Missing(ctx, images)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, apperrors.ValidationError("unknown image ids").WithField("missing", missing)
	}
	return images, nil
}

// productWriteError reports an image deleted after checkImages passed the
// same way as an unknown image.
func productWriteError(err error) error {
	if errors.Is(err, domain.ErrMediaNotFound) {
		return apperrors.ValidationError("unknown image ids").WithField("field", "image_ids").WithCause(err)
	}
	return err
}

// DeleteProduct removes the product, or deactivates it when orders
// reference it. softDeleted reports which happened.
func (s *CatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) (softDeleted bool, err error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	softDeleted, err = s.products.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	s.invalidate(ctx, p.Slug)
	return softDeleted, nil
}

// AdjustStock adds delta to the product's stock. The result cannot go below zero.
func (s *CatalogService) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	if delta == 0 {
		return 0, apperrors.ValidationError("delta must not be zero").WithField("field", "delta")
	}
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	stock, err := s.products.AdjustStock(ctx, id, delta)
	if err != nil {
		var stockErr *domain.StockError
		if errors.As(err, &stockErr) {
			return 0, apperrors.ValidationError("stock cannot go below zero").
				WithField("available", stockErr.Available).
				WithCause(err)
		}
		return 0, err
	}

	s.invalidate(ctx, p.Slug)
	return stock, nil
}

// invalidate evicts slugs from every instance's product cache. Failures are
// logged: cached entries still expire on their own.
func (s *CatalogService) invalidate(ctx context.Context, slugs ...string) {
	var unique []string
	for _, sl := range slugs {
		if sl != "" && !slices.Contains(unique, sl) {
			unique = append(unique, sl)
		}
	}
	if err := s.cache.Invalidate(ctx, unique...); err != nil {
		slog.WarnContext(ctx, "Failed to invalidate product cache", "slugs", unique, "error", err)
	}
}

// resolveSlug validates an explicit slug or derives one from name.
func resolveSlug(explicit, name string) (string, error) {
	explicit = strings.TrimSpace(explicit)
	if explicit == "" {
		derived := slug.Make(name)
		if derived == "" {
			return "", apperrors.ValidationError("name does not produce a usable slug; provide one").WithField("field", "slug")
		}
		return derived, nil
	}
	if !slug.Valid(explicit) {
		return "", apperrors.ValidationError("slug may contain only lowercase letters, digits and hyphens").WithField("field", "slug")
	}
	return explicit, nil
}
