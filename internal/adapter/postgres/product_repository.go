package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `p.id, p.name, p.slug, p.description, p.price, p.compare_at_price, COALESCE(p.sku, ''),
	p.stock, p.category_id, p.active, p.featured, p.image_ids, p.rating_avg, p.rating_count, p.created_at, p.updated_at`

var productConstraints = map[string]error{
	"products_slug_key": domain.ErrSlugTaken,
	"products_sku_key":  domain.ErrSKUTaken,
}

var productOrderBy = map[domain.ProductSort]string{
	domain.SortNewest:    "p.created_at DESC, p.id",
	domain.SortPriceAsc:  "p.price ASC, p.id",
	domain.SortPriceDesc: "p.price DESC, p.id",
	domain.SortName:      "lower(p.name) ASC, p.id",
	domain.SortRating:    "p.rating_avg DESC, p.rating_count DESC, p.id",
}

type ProductRepo struct {
	pool *pgxpool.Pool
}

func NewProductRepo(pool *pgxpool.Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.CompareAtPrice, &p.SKU,
		&p.Stock, &p.CategoryID, &p.Active, &p.Featured, &p.ImageIDs, &p.RatingAvg, &p.RatingCount, &p.CreatedAt, &p.UpdatedAt)
	if p.ImageIDs == nil {
		p.ImageIDs = []uuid.UUID{}
	}
	return p, err
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Product, error) {
		return scanProduct(row)
	})
}

func (r *ProductRepo) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int, error) {
	var w filter
	if !f.IncludeInactive {
		w.raw("p.active")
	}
	if f.Query != "" {
		w.add("(p.name ILIKE %s OR p.description ILIKE %[1]s)", likePattern(f.Query))
	}
	if f.CategorySlug != "" {
		w.add("p.category_id = (SELECT id FROM categories WHERE slug = %s)", f.CategorySlug)
	}
	if f.MinPrice > 0 {
		w.add("p.price >= %s", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		w.add("p.price <= %s", f.MaxPrice)
	}
	if f.InStock {
		w.raw("p.stock > 0")
	}
	if f.Featured {
		w.raw("p.featured")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products p `+w.where(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	orderBy, ok := productOrderBy[f.Sort]
	if !ok {
		orderBy = productOrderBy[domain.SortNewest]
	}
	limit, args := w.page(f.Limit, f.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products p `+w.where()+` ORDER BY `+orderBy+` `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan products: %w", err)
	}
	return products, total, nil
}

func (r *ProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product by ID: %w", err)
	}
	return &p, nil
}

func (r *ProductRepo) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product by slug: %w", err)
	}
	return &p, nil
}

// GetMany returns the products that exist among ids, keyed by id.
func (r *ProductRepo) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	out := make(map[uuid.UUID]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.ImageIDs == nil {
		p.ImageIDs = []uuid.UUID{}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockImages(ctx, tx, p.ImageIDs); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO products (id, name, slug, description, price, compare_at_price, sku, stock, category_id, active, featured, image_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING rating_avg, rating_count, created_at, updated_at`,
		p.ID, p.Name, p.Slug, p.Description, p.Price, p.CompareAtPrice, nullIfEmpty(p.SKU),
		p.Stock, p.CategoryID, p.Active, p.Featured, p.ImageIDs,
	).Scan(&p.RatingAvg, &p.RatingCount, &p.CreatedAt, &p.UpdatedAt)
	if mapped := constraintError(err, codeUniqueViolation, productConstraints); mapped != nil {
		return mapped
	}
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update writes every editable field. Rating aggregates are owned by reviews
// and are read back rather than written.
func (r *ProductRepo) Update(ctx context.Context, p *domain.Product) error {
	if p.ImageIDs == nil {
		p.ImageIDs = []uuid.UUID{}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockImages(ctx, tx, p.ImageIDs); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		UPDATE products
		SET name = $2, slug = $3, description = $4, price = $5, compare_at_price = $6, sku = $7,
			stock = $8, category_id = $9, active = $10, featured = $11, image_ids = $12, updated_at = now()
		WHERE id = $1
		RETURNING rating_avg, rating_count, created_at, updated_at`,
		p.ID, p.Name, p.Slug, p.Description, p.Price, p.CompareAtPrice, nullIfEmpty(p.SKU),
		p.Stock, p.CategoryID, p.Active, p.Featured, p.ImageIDs,
	).Scan(&p.RatingAvg, &p.RatingCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if mapped := constraintError(err, codeUniqueViolation, productConstraints); mapped != nil {
		return mapped
	}
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// lockImages share-locks the referenced media rows until the product write
// commits, so MediaRepo.Delete cannot remove them in between.
func lockImages(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := tx.Query(ctx, `SELECT id FROM media WHERE id = ANY ($1) FOR SHARE`, ids)
	if err != nil {
		return fmt.Errorf("failed to lock product images: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("failed to scan product images: %w", err)
	}

	present := make(map[uuid.UUID]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	for _, id := range ids {
		if !present[id] {
			return fmt.Errorf("image %s: %w", id, domain.ErrMediaNotFound)
		}
	}
	return nil
}

// Delete removes the product unless an order references it, in which case
// the product is deactivated so order history stays intact.
func (r *ProductRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var referenced bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM order_items WHERE product_id = $1)
		FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&referenced)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.ErrProductNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock product: %w", err)
	}

	if referenced {
		_, err = tx.Exec(ctx, `UPDATE products SET active = FALSE, updated_at = now() WHERE id = $1`, id)
	} else {
		_, err = tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return referenced, nil
}

func (r *ProductRepo) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var stock int
	err := r.pool.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock`, id, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to adjust stock: %w", err)
	}

	err = r.pool.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	return 0, &domain.StockError{ProductID: id, Requested: -delta, Available: stock}
}
