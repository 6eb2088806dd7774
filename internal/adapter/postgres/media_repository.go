package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const mediaColumns = `m.id, m.key, m.filename, m.content_type, m.size, m.alt, m.created_at`

type MediaRepo struct {
	pool *pgxpool.Pool
}

func NewMediaRepo(pool *pgxpool.Pool) *MediaRepo {
	return &MediaRepo{pool: pool}
}

func scanMedia(row pgx.Row) (domain.Media, error) {
	var m domain.Media
	err := row.Scan(&m.ID, &m.Key, &m.Filename, &m.ContentType, &m.Size, &m.Alt, &m.CreatedAt)
	return m, err
}

func collectMedia(rows pgx.Rows) ([]domain.Media, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Media, error) {
		return scanMedia(row)
	})
}

func (r *MediaRepo) Create(ctx context.Context, m *domain.Media) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO media (id, key, filename, content_type, size, alt)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		m.ID, m.Key, m.Filename, m.ContentType, m.Size, m.Alt,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert media: %w", err)
	}
	return nil
}

func (r *MediaRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Media, error) {
	m, err := scanMedia(r.pool.QueryRow(ctx, `SELECT `+mediaColumns+` FROM media m WHERE m.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media: %w", err)
	}
	return &m, nil
}

func (r *MediaRepo) List(ctx context.Context, p domain.PageRequest) ([]domain.Media, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM media`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count media: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+mediaColumns+` FROM media m ORDER BY m.created_at DESC, m.id LIMIT $1 OFFSET $2`, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list media: %w", err)
	}
	items, err := collectMedia(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan media: %w", err)
	}
	return items, total, nil
}

// Delete removes the media row unless a product references it. The row lock
// waits for product writes that share-lock it through lockImages.
func (r *MediaRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM media WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrMediaNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock media: %w", err)
	}

	var inUse bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products p WHERE $1 = ANY (p.image_ids))`, id).Scan(&inUse); err != nil {
		return fmt.Errorf("failed to check media references: %w", err)
	}
	if inUse {
		return domain.ErrMediaInUse
	}

	if _, err := tx.Exec(ctx, `DELETE FROM media WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete media: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *MediaRepo) Missing(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM unnest($1::uuid[]) AS ids (id)
		WHERE NOT EXISTS (SELECT 1 FROM media m WHERE m.id = ids.id)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check media ids: %w", err)
	}
	missing, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan media ids: %w", err)
	}
	return missing, nil
}

func (r *MediaRepo) ListOrphans(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Media, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+mediaColumns+` FROM media m
		WHERE m.created_at < $1
			AND NOT EXISTS (SELECT 1 FROM products p WHERE m.id = ANY (p.image_ids))
		ORDER BY m.created_at
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned media: %w", err)
	}
	items, err := collectMedia(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan media: %w", err)
	}
	return items, nil
}
