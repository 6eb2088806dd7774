package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const expireBatchSize = 100

// OrderDetail is an order with its status history, oldest change first.
type OrderDetail struct {
	*domain.Order
	History []domain.StatusChange `json:"history"`
}

type OrderService struct {
	orders         domain.OrderRepository
	stock          stockCache
	publisher      domain.OrderEventPublisher
	gateway        domain.PaymentGateway
	clock          clockwork.Clock
	metrics        *metrics.StoreMetrics
	paymentTimeout time.Duration
}

// NewOrderService wires order management. gateway may be nil when online
// payment is disabled, and cache may be nil when nothing caches products.
func NewOrderService(orders domain.OrderRepository, products domain.ProductRepository, cache domain.ProductCache, publisher domain.OrderEventPublisher, gateway domain.PaymentGateway, clock clockwork.Clock, m *metrics.StoreMetrics, paymentTimeout time.Duration) *OrderService {
	return &OrderService{
		orders:         orders,
		stock:          stockCache{products: products, cache: cache},
		publisher:      publisher,
		gateway:        gateway,
		clock:          clock,
		metrics:        m,
		paymentTimeout: paymentTimeout,
	}
}

// Track looks an order up for a guest. A phone that does not match is
// reported exactly like a missing order.
func (s *OrderService) Track(ctx context.Context, number, phone string) (*domain.Order, error) {
	normalized, ok := normalizePhone(phone)
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o, err := s.orders.GetByNumber(ctx, normalizeOrderNumber(number))
	if err != nil {
		return nil, err
	}
	if o.Shipping.Phone != normalized {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

func (s *OrderService) ListForUser(ctx context.Context, userID uuid.UUID, page domain.PageRequest) (domain.Page[domain.Order], error) {
	return s.list(ctx, domain.OrderFilter{UserID: &userID, PageRequest: page})
}

func (s *OrderService) GetForUser(ctx context.Context, userID uuid.UUID, number string) (*OrderDetail, error) {
	o, err := s.orders.GetByNumber(ctx, normalizeOrderNumber(number))
	if err != nil {
		return nil, err
	}
	if o.UserID == nil || *o.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return s.detail(ctx, o)
}

// CancelByCustomer cancels the customer's own order while it is still pending.
func (s *OrderService) CancelByCustomer(ctx context.Context, userID uuid.UUID, number string) (*domain.Order, error) {
	o, err := s.orders.GetByNumber(ctx, normalizeOrderNumber(number))
	if err != nil {
		return nil, err
	}
	if o.UserID == nil || *o.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	if o.Status != domain.StatusPending {
		return nil, apperrors.ConflictError("only pending orders can be cancelled").
			WithField("status", o.Status)
	}
	return s.transition(ctx, o.Number, s.newTransition(o, domain.StatusCancelled, "cancelled by customer", &userID))
}

func (s *OrderService) List(ctx context.Context, f domain.OrderFilter) (domain.Page[domain.Order], error) {
	if f.Status != "" && !f.Status.Valid() {
		return domain.Page[domain.Order]{}, apperrors.ValidationError("unknown order status").WithField("field", "status")
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return domain.Page[domain.Order]{}, apperrors.ValidationError("unknown payment status").WithField("field", "payment_status")
	}
	f.Query = strings.TrimSpace(f.Query)
	return s.list(ctx, f)
}

func (s *OrderService) list(ctx context.Context, f domain.OrderFilter) (domain.Page[domain.Order], error) {
	f.PageRequest = f.PageRequest.Normalize()
	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return domain.NewPage(orders, total, f.PageRequest), nil
}

func (s *OrderService) Get(ctx context.Context, number string) (*OrderDetail, error) {
	o, err := s.orders.GetByNumber(ctx, normalizeOrderNumber(number))
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, o)
}

func (s *OrderService) detail(ctx context.Context, o *domain.Order) (*OrderDetail, error) {
	history, err := s.orders.History(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []domain.StatusChange{}
	}
	return &OrderDetail{Order: o, History: history}, nil
}

// UpdateStatus moves an order along the status machine on behalf of staff.
func (s *OrderService) UpdateStatus(ctx context.Context, actorID uuid.UUID, number string, to domain.OrderStatus, note string) (*domain.Order, error) {
	if !to.Valid() {
		return nil, apperrors.ValidationError("unknown order status").WithField("field", "status")
	}
	note = strings.TrimSpace(note)
	if err := requireLength("note", note, 0, 500); err != nil {
		return nil, err
	}

	o, err := s.orders.GetByNumber(ctx, normalizeOrderNumber(number))
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(o.Status, to) {
		return nil, apperrors.ConflictError("order cannot move to the requested status").
			WithField("from", o.Status).
			WithField("to", to).
			WithField("allowed", domain.AllowedTransitions(o.Status))
	}
	return s.transition(ctx, o.Number, s.newTransition(o, to, note, &actorID))
}

func (s *OrderService) newTransition(o *domain.Order, to domain.OrderStatus, note string, actorID *uuid.UUID) domain.StatusTransition {
	return domain.StatusTransition{
		From:     o.Status,
		To:       to,
		Note:     note,
		ActorID:  actorID,
		Restock:  to.ReleasesStock(),
		MarkPaid: to == domain.StatusDelivered && o.PaymentMethod == domain.PaymentCOD,
		At:       s.clock.Now(),
	}
}

// transition applies one compare-and-set step and announces it.
func (s *OrderService) transition(ctx context.Context, number string, t domain.StatusTransition) (*domain.Order, error) {
	updated, err := s.orders.Transition(ctx, number, t)
	if err != nil {
		if errors.Is(err, domain.ErrOrderStatusChanged) {
			return nil, apperrors.ConflictError("order was updated by someone else, reload and retry").
				WithCause(err)
		}
		return nil, err
	}

	if t.Restock {
		s.stock.invalidateItems(ctx, updated.Items)
	}
	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()
	}
	s.publish(ctx, domain.EventOrderStatusChanged, updated)

	slog.InfoContext(ctx, "Order status changed",
		"order_number", updated.Number,
		"from", t.From,
		"to", t.To,
		"restock", t.Restock,
	)
	return updated, nil
}

// MarkPayment records a manual payment update from staff.
func (s *OrderService) MarkPayment(ctx context.Context, number string, status domain.PaymentStatus, ref string) (*domain.Order, error) {
	if !status.Valid() {
		return nil, apperrors.ValidationError("unknown payment status").WithField("field", "payment_status")
	}
	ref = strings.TrimSpace(ref)
	if err := requireLength("ref", ref, 0, 100); err != nil {
		return nil, err
	}

	o, err := s.orders.SetPayment(ctx, normalizeOrderNumber(number), status, ref)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventOrderPaymentUpdate, o)
	slog.InfoContext(ctx, "Order payment updated", "order_number", o.Number, "payment_status", status)
	return o, nil
}

// ConfirmPayment handles the gateway callback. The gateway, not the
// callback payload, is the source of truth, so the session is verified
// before anything changes. Repeated callbacks leave a settled order as is.
func (s *OrderService) ConfirmPayment(ctx context.Context, sessionID, number string) (*domain.Order, error) {
	if s.gateway == nil {
		return nil, apperrors.ValidationError("online payment is not available")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.ValidationError("session_id is required").WithField("field", "session_id")
	}

	o, err := s.orders.GetByNumber(ctx, normalizeOrderNumber(number))
	if err != nil {
		return nil, err
	}

	v, err := s.gateway.Verify(ctx, sessionID)
	if err != nil {
		return nil, apperrors.ExternalError("could not verify payment", err).WithField("order_number", o.Number)
	}
	if v.OrderNumber != o.Number || (v.Status == domain.GatewayPaid && v.Amount != o.Total) {
		slog.WarnContext(ctx, "Payment verification does not match order",
			"order_number", o.Number,
			"session_order", v.OrderNumber,
			"amount", v.Amount,
			"total", o.Total,
		)
		return nil, apperrors.ValidationError("payment does not match order").WithField("order_number", o.Number)
	}

	switch v.Status {
	case domain.GatewayPaid:
		return s.settlePaid(ctx, o, v.TransactionID)
	case domain.GatewayFailed:
		if o.PaymentStatus != domain.PaymentUnpaid {
			return o, nil
		}
		updated, err := s.orders.SetPayment(ctx, o.Number, domain.PaymentFailed, v.TransactionID)
		if err != nil {
			return nil, err
		}
		s.publish(ctx, domain.EventOrderPaymentUpdate, updated)
		slog.InfoContext(ctx, "Online payment failed", "order_number", o.Number)
		return updated, nil
	default:
		return o, nil
	}
}

func (s *OrderService) settlePaid(ctx context.Context, o *domain.Order, txID string) (*domain.Order, error) {
	if o.PaymentStatus != domain.PaymentPaid {
		updated, err := s.orders.SetPayment(ctx, o.Number, domain.PaymentPaid, txID)
		if err != nil {
			return nil, err
		}
		o = updated
		s.publish(ctx, domain.EventOrderPaymentUpdate, o)
		slog.InfoContext(ctx, "Online payment confirmed", "order_number", o.Number, "transaction_id", txID)
	}

	if o.Status != domain.StatusPending {
		return o, nil
	}
	confirmed, err := s.transition(ctx, o.Number, s.newTransition(o, domain.StatusConfirmed, "payment received", nil))
	if err != nil {
		if errors.Is(err, domain.ErrOrderStatusChanged) {
			return s.orders.GetByNumber(ctx, o.Number)
		}
		return nil, err
	}
	return confirmed, nil
}

// ExpireUnpaidOrders cancels online orders that stayed unpaid past the
// payment timeout and returns how many were cancelled.
func (s *OrderService) ExpireUnpaidOrders(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.paymentTimeout)
	cancelled := 0

	for {
		batch, err := s.orders.ListExpiredUnpaid(ctx, cutoff, expireBatchSize)
		if err != nil {
			return cancelled, err
		}

		progressed := 0
		for i := range batch {
			o := &batch[i]
			t := s.newTransition(o, domain.StatusCancelled, "payment timed out", nil)
			t.RequireUnpaid = true
			if _, err := s.transition(ctx, o.Number, t); err != nil {
				if errors.Is(err, domain.ErrOrderStatusChanged) {
					continue
				}
				return cancelled, err
			}
			cancelled++
			progressed++
		}

		if len(batch) < expireBatchSize || progressed == 0 {
			return cancelled, nil
		}
	}
}

func (s *OrderService) publish(ctx context.Context, t domain.OrderEventType, o *domain.Order) {
	if err := s.publisher.PublishOrderEvent(ctx, domain.NewOrderEvent(t, o, s.clock.Now())); err != nil {
		slog.WarnContext(ctx, "Failed to publish order event", "order_number", o.Number, "type", t, "error", err)
	}
}

func normalizeOrderNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}
