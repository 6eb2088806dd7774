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

const categoryColumns = `id, name, slug, description, parent_id, position, created_at, updated_at`

var (
	categoryUniqueConstraints = map[string]error{
		"categories_slug_key": domain.ErrSlugTaken,
	}
	categoryForeignKeys = map[string]error{
		"products_category_id_fkey": domain.ErrCategoryInUse,
	}
)

type CategoryRepo struct {
	pool *pgxpool.Pool
}

func NewCategoryRepo(pool *pgxpool.Pool) *CategoryRepo {
	return &CategoryRepo{pool: pool}
}

func scanCategory(row pgx.Row) (domain.Category, error) {
	var c domain.Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.ParentID, &c.Position, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *CategoryRepo) List(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	categories, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Category, error) {
		return scanCategory(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan categories: %w", err)
	}
	return categories, nil
}

func (r *CategoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

func (r *CategoryRepo) Create(ctx context.Context, c *domain.Category) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO categories (id, name, slug, description, parent_id, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Slug, c.Description, c.ParentID, c.Position,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if mapped := constraintError(err, codeUniqueViolation, categoryUniqueConstraints); mapped != nil {
		return mapped
	}
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

func (r *CategoryRepo) Update(ctx context.Context, c *domain.Category) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE categories
		SET name = $2, slug = $3, description = $4, parent_id = $5, position = $6, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Slug, c.Description, c.ParentID, c.Position,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrCategoryNotFound
	}
	if mapped := constraintError(err, codeUniqueViolation, categoryUniqueConstraints); mapped != nil {
		return mapped
	}
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return nil
}

// Delete relies on the products foreign key to refuse categories in use.
func (r *CategoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if mapped := constraintError(err, codeForeignKeyViolation, categoryForeignKeys); mapped != nil {
		return mapped
	}
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}
