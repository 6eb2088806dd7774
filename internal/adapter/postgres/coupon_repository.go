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

const couponColumns = `id, code, description, type, value, min_order_amount, max_discount,
	usage_limit, used_count, starts_at, expires_at, active, created_at, updated_at`

var couponConstraints = map[string]error{
	"coupons_code_key": domain.ErrCouponCodeTaken,
}

type CouponRepo struct {
	pool *pgxpool.Pool
}

func NewCouponRepo(pool *pgxpool.Pool) *CouponRepo {
	return &CouponRepo{pool: pool}
}

func scanCoupon(row pgx.Row) (domain.Coupon, error) {
	var c domain.Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Description, &c.Type, &c.Value, &c.MinOrderAmount, &c.MaxDiscount,
		&c.UsageLimit, &c.UsedCount, &c.StartsAt, &c.ExpiresAt, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *CouponRepo) List(ctx context.Context, p domain.PageRequest) ([]domain.Coupon, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM coupons`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count coupons: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Coupon, error) {
		return scanCoupon(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan coupons: %w", err)
	}
	return coupons, total, nil
}

func (r *CouponRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	return r.get(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)
}

func (r *CouponRepo) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return r.get(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code)
}

func (r *CouponRepo) get(ctx context.Context, sql string, arg any) (*domain.Coupon, error) {
	c, err := scanCoupon(r.pool.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &c, nil
}

func (r *CouponRepo) Create(ctx context.Context, c *domain.Coupon) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO coupons (id, code, description, type, value, min_order_amount, max_discount, usage_limit, starts_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING used_count, created_at, updated_at`,
		c.ID, c.Code, c.Description, c.Type, c.Value, c.MinOrderAmount, c.MaxDiscount, c.UsageLimit, c.StartsAt, c.ExpiresAt, c.Active,
	).Scan(&c.UsedCount, &c.CreatedAt, &c.UpdatedAt)
	if mapped := constraintError(err, codeUniqueViolation, couponConstraints); mapped != nil {
		return mapped
	}
	if err != nil {
		return fmt.Errorf("failed to insert coupon: %w", err)
	}
	return nil
}

// Update leaves used_count alone; it only moves through order placement.
func (r *CouponRepo) Update(ctx context.Context, c *domain.Coupon) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE coupons
		SET code = $2, description = $3, type = $4, value = $5, min_order_amount = $6, max_discount = $7,
			usage_limit = $8, starts_at = $9, expires_at = $10, active = $11, updated_at = now()
		WHERE id = $1
		RETURNING used_count, created_at, updated_at`,
		c.ID, c.Code, c.Description, c.Type, c.Value, c.MinOrderAmount, c.MaxDiscount, c.UsageLimit, c.StartsAt, c.ExpiresAt, c.Active,
	).Scan(&c.UsedCount, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrCouponNotFound
	}
	if mapped := constraintError(err, codeUniqueViolation, couponConstraints); mapped != nil {
		return mapped
	}
	if err != nil {
		return fmt.Errorf("failed to update coupon: %w", err)
	}
	return nil
}

func (r *CouponRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCouponNotFound
	}
	return nil
}
