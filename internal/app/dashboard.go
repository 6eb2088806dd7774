package app

import (
	"context"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const lowStockLimit = 10

type DashboardService struct {
	stats             domain.StatsRepository
	clock             clockwork.Clock
	lowStockThreshold int
}

func NewDashboardService(stats domain.StatsRepository, clock clockwork.Clock, lowStockThreshold int) *DashboardService {
	return &DashboardService{stats: stats, clock: clock, lowStockThreshold: lowStockThreshold}
}

// Stats runs the dashboard queries concurrently. "Today" starts at
// midnight UTC.
func (s *DashboardService) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	now := s.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	out := &domain.DashboardStats{GeneratedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.OrdersByStatus, err = s.stats.OrdersByStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.RevenueToday, err = s.stats.PaidRevenueSince(gctx, today)
		return err
	})
	g.Go(func() (err error) {
		out.Revenue30d, err = s.stats.PaidRevenueSince(gctx, now.AddDate(0, 0, -30))
		return err
	})
	g.Go(func() (err error) {
		out.Customers, err = s.stats.CountCustomers(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.PendingReviews, err = s.stats.CountPendingReviews(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.LowStock, err = s.stats.LowStock(gctx, s.lowStockThreshold, lowStockLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if out.LowStock == nil {
		out.LowStock = []domain.LowStockProduct{}
	}
	return out, nil
}
