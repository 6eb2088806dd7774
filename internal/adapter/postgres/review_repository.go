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

const reviewColumns = `id, product_id, user_id, author_name, rating, title, body, status, verified, created_at, updated_at`

var reviewConstraints = map[string]error{
	"reviews_product_user_key": domain.ErrReviewExists,
}

type ReviewRepo struct {
	pool *pgxpool.Pool
}

func NewReviewRepo(pool *pgxpool.Pool) *ReviewRepo {
	return &ReviewRepo{pool: pool}
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var rv domain.Review
	err := row.Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.AuthorName, &rv.Rating, &rv.Title, &rv.Body,
		&rv.Status, &rv.Verified, &rv.CreatedAt, &rv.UpdatedAt)
	return rv, err
}

func (r *ReviewRepo) Create(ctx context.Context, rv *domain.Review) error {
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reviews (id, product_id, user_id, author_name, rating, title, body, status, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		rv.ID, rv.ProductID, rv.UserID, rv.AuthorName, rv.Rating, rv.Title, rv.Body, rv.Status, rv.Verified,
	).Scan(&rv.CreatedAt, &rv.UpdatedAt)
	if mapped := constraintError(err, codeUniqueViolation, reviewConstraints); mapped != nil {
		return mapped
	}
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

func (r *ReviewRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	rv, err := scanReview(r.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &rv, nil
}

func (r *ReviewRepo) List(ctx context.Context, f domain.ReviewFilter) ([]domain.Review, int, error) {
	var w filter
	if f.Status != "" {
		w.add("status = %s", f.Status)
	}
	if f.ProductID != nil {
		w.add("product_id = %s", *f.ProductID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM reviews `+w.where(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	limit, args := w.page(f.Limit, f.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+reviewColumns+` FROM reviews `+w.where()+` ORDER BY created_at DESC, id `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Review, error) {
		return scanReview(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan reviews: %w", err)
	}
	return reviews, total, nil
}

func (r *ReviewRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) (*domain.Review, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rv, err := scanReview(tx.QueryRow(ctx, `
		UPDATE reviews SET status = $2, updated_at = now() WHERE id = $1
		RETURNING `+reviewColumns, id, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update review status: %w", err)
	}

	if err := recomputeRating(ctx, tx, rv.ProductID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &rv, nil
}

func (r *ReviewRepo) Delete(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rv, err := scanReview(tx.QueryRow(ctx, `DELETE FROM reviews WHERE id = $1 RETURNING `+reviewColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete review: %w", err)
	}

	if err := recomputeRating(ctx, tx, rv.ProductID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &rv, nil
}

func recomputeRating(ctx context.Context, tx pgx.Tx, productID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE products p
		SET rating_avg = COALESCE(agg.avg, 0), rating_count = agg.n, updated_at = now()
		FROM (
			SELECT round(avg(rating)::numeric, 2)::float8 AS avg, count(*)::int AS n
			FROM reviews WHERE product_id = $1 AND status = 'approved'
		) agg
		WHERE p.id = $1`, productID)
	if err != nil {
		return fmt.Errorf("failed to recompute rating: %w", err)
	}
	return nil
}
