package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type LowStockProduct struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Slug  string    `json:"slug"`
	Stock int       `json:"stock"`
}

type DashboardStats struct {
	OrdersByStatus map[OrderStatus]int `json:"orders_by_status"`
	RevenueToday   int64               `json:"revenue_today"`
	Revenue30d     int64               `json:"revenue_30d"`
	Customers      int                 `json:"customers"`
	PendingReviews int                 `json:"pending_reviews"`
	LowStock       []LowStockProduct   `json:"low_stock"`
	GeneratedAt    time.Time           `json:"generated_at"`
}

type StatsRepository interface {
	OrdersByStatus(ctx context.Context) (map[OrderStatus]int, error)
	// PaidRevenueSince sums totals of paid orders created at or after since.
	PaidRevenueSince(ctx context.Context, since time.Time) (int64, error)
	CountCustomers(ctx context.Context) (int, error)
	CountPendingReviews(ctx context.Context) (int, error)
	LowStock(ctx context.Context, threshold, limit int) ([]LowStockProduct, error)
}
