package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

func (r *StatsRepo) OrdersByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*)::int FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders by status: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.OrderStatus]int)
	for rows.Next() {
		var status domain.OrderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan order counts: %w", err)
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order counts: %w", err)
	}
	return out, nil
}

func (r *StatsRepo) PaidRevenueSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(sum(total), 0)::bigint FROM orders
		WHERE payment_status = 'paid' AND created_at >= $1`, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return total, nil
}

func (r *StatsRepo) CountCustomers(ctx context.Context) (int, error) {
	return r.count(ctx, "customers", `SELECT count(*) FROM users WHERE role = 'customer'`)
}

func (r *StatsRepo) CountPendingReviews(ctx context.Context) (int, error) {
	return r.count(ctx, "pending reviews", `SELECT count(*) FROM reviews WHERE status = 'pending'`)
}

func (r *StatsRepo) count(ctx context.Context, what, sql string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", what, err)
	}
	return n, nil
}

func (r *StatsRepo) LowStock(ctx context.Context, threshold, limit int) ([]domain.LowStockProduct, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, slug, stock FROM products
		WHERE active AND stock <= $1
		ORDER BY stock, name
		LIMIT $2`, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}
	products, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.LowStockProduct])
	if err != nil {
		return nil, fmt.Errorf("failed to scan low stock products: %w", err)
	}
	return products, nil
}
