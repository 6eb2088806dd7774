package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// orderNumberPolicy retries placement when a generated number collides.
var orderNumberPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: 10 * time.Millisecond,
	MaxBackoff:     80 * time.Millisecond,
}

type CheckoutConfig struct {
	Currency           string
	OrderNumberPrefix  string
	ShippingFeeInside  int64
	ShippingFeeOutside int64
	FreeShippingMin    int64
	BaseURL            string
}

type Quote struct {
	Subtotal    int64  `json:"subtotal"`
	Discount    int64  `json:"discount"`
	ShippingFee int64  `json:"shipping_fee"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
	CouponCode  string `json:"coupon_code,omitempty"`
}

type PlaceOrderRequest struct {
	CartID        uuid.UUID
	UserID        *uuid.UUID
	Shipping      domain.ShippingAddress
	PaymentMethod domain.PaymentMethod
	CouponCode    string
	Notes         string
}

type PlaceOrderResult struct {
	Order      *domain.Order `json:"order"`
	PaymentURL string        `json:"payment_url,omitempty"`
}

type CheckoutService struct {
	carts     *CartService
	coupons   *CouponService
	orders    domain.OrderRepository
	publisher domain.OrderEventPublisher
	gateway   domain.PaymentGateway
	stock     stockCache
	cfg       CheckoutConfig
	clock     clockwork.Clock
	metrics   *metrics.StoreMetrics
	digits    func() int
}

// NewCheckoutService wires checkout. gateway may be nil, which disables
// online payment. cache, when set, is told about every product whose stock
// an order claims.
func NewCheckoutService(carts *CartService, coupons *CouponService, orders domain.OrderRepository, cache domain.ProductCache, publisher domain.OrderEventPublisher, gateway domain.PaymentGateway, cfg CheckoutConfig, clock clockwork.Clock, m *metrics.StoreMetrics) *CheckoutService {
	return &CheckoutService{
		carts:     carts,
		coupons:   coupons,
		orders:    orders,
		publisher: publisher,
		gateway:   gateway,
		stock:     stockCache{products: carts.products, cache: cache},
		cfg:       cfg,
		clock:     clock,
		metrics:   m,
		digits:    func() int { return rand.IntN(1_000_000) },
	}
}

// PaymentsEnabled reports whether online payment can be chosen.
func (s *CheckoutService) PaymentsEnabled() bool {
	return s.gateway != nil
}

// Quote prices the available lines of the cart for zone.
func (s *CheckoutService) Quote(ctx context.Context, cartID uuid.UUID, couponCode string, zone domain.ShippingZone) (*Quote, error) {
	if !zone.Valid() {
		return nil, apperrors.ValidationError("zone must be inside_city or outside_city").WithField("field", "zone")
	}
	view, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	q, _, err := s.quote(ctx, view, couponCode, zone)
	return q, err
}

func (s *CheckoutService) quote(ctx context.Context, view *domain.CartView, couponCode string, zone domain.ShippingZone) (*Quote, *domain.Coupon, error) {
	lines := view.AvailableLines()
	if len(lines) == 0 {
		return nil, nil, apperrors.ValidationError("cart is empty")
	}

	q := &Quote{Subtotal: view.Subtotal, Currency: s.cfg.Currency}

	var coupon *domain.Coupon
	if code := strings.TrimSpace(couponCode); code != "" {
		c, discount, err := s.coupons.Validate(ctx, code, q.Subtotal)
		if err != nil {
			return nil, nil, err
		}
		coupon = c
		q.Discount = discount
		q.CouponCode = c.Code
	}

	q.ShippingFee = s.shippingFee(zone, q.Subtotal-q.Discount)
	q.Total = q.Subtotal - q.Discount + q.ShippingFee
	return q, coupon, nil
}

func (s *CheckoutService) shippingFee(zone domain.ShippingZone, discounted int64) int64 {
	if s.cfg.FreeShippingMin > 0 && discounted >= s.cfg.FreeShippingMin {
		return 0
	}
	if zone == domain.ZoneInsideCity {
		return s.cfg.ShippingFeeInside
	}
	return s.cfg.ShippingFeeOutside
}

// PlaceOrder turns the cart into an order. Stock and coupon usage are
// claimed in the same transaction that inserts the order. For online
// payment the result carries the gateway redirect URL.
func (s *CheckoutService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	shipping, err := validateShipping(req.Shipping)
	if err != nil {
		return nil, err
	}
	if !req.PaymentMethod.Valid() {
		return nil, apperrors.ValidationError("payment_method must be cod or online").WithField("field", "payment_method")
	}
	if req.PaymentMethod == domain.PaymentOnline && s.gateway == nil {
		return nil, apperrors.ValidationError("online payment is not available").WithField("field", "payment_method")
	}
	notes := strings.TrimSpace(req.Notes)
	if err := requireLength("notes", notes, 0, 500); err != nil {
		return nil, err
	}

	view, err := s.carts.Get(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	if names := view.UnavailableNames(); len(names) > 0 {
		return nil, apperrors.ValidationError("some items are no longer available").WithField("unavailable", names)
	}
	q, coupon, err := s.quote(ctx, view, req.CouponCode, shipping.Zone)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		UserID:        req.UserID,
		Status:        domain.StatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.PaymentUnpaid,
		Shipping:      shipping,
		Items:         orderItems(view.Lines),
		Subtotal:      q.Subtotal,
		Discount:      q.Discount,
		ShippingFee:   q.ShippingFee,
		Total:         q.Total,
		Notes:         notes,
	}
	if coupon != nil {
		order.CouponID = &coupon.ID
		order.CouponCode = coupon.Code
	}

	if err := s.create(ctx, order); err != nil {
		return nil, err
	}

	s.afterPlacement(ctx, view, order)

	result := &PlaceOrderResult{Order: order}
	if order.PaymentMethod == domain.PaymentOnline {
		session, err := s.gateway.CreateSession(ctx, s.paymentRequest(order))
		if err != nil {
			slog.ErrorContext(ctx, "Failed to create payment session", "order_number", order.Number, "error", err)
			return nil, apperrors.ExternalError("payment gateway unavailable, the order is saved as unpaid", err).
				WithField("order_number", order.Number)
		}
		result.PaymentURL = session.RedirectURL
	}
	return result, nil
}

// create persists the order, drawing a fresh number whenever the previous
// one collides.
func (s *CheckoutService) create(ctx context.Context, order *domain.Order) error {
	policy := orderNumberPolicy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "Order number collision, retrying", "attempt", attempt, "number", order.Number, "backoff", backoff)
	}

	err := retry.DoVoid(ctx, policy, retry.On(domain.ErrOrderNumberTaken), func(int) error {
		order.Number = s.newOrderNumber()
		return s.orders.Create(ctx, order)
	})
	if err == nil {
		return nil
	}

	var stockErr *domain.StockError
	switch {
	case errors.Is(err, retry.ErrExhausted):
		return apperrors.InternalError("could not allocate an order number", err)
	case errors.As(err, &stockErr):
		return apperrors.ValidationError("insufficient stock").
			WithField("product_id", stockErr.ProductID).
			WithField("available", stockErr.Available).
			WithCause(err)
	case errors.Is(err, domain.ErrCouponUsageExhausted):
		s.coupons.observeRejection("exhausted")
		return apperrors.ValidationError(domain.ErrCouponUsageExhausted.Error()).
			WithField("reason", "exhausted").
			WithCause(err)
	}

	var permanent *retry.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

// newOrderNumber formats PREFIX + YYMMDD + "-" + six random digits, dated
// by the service clock in UTC.
func (s *CheckoutService) newOrderNumber() string {
	return fmt.Sprintf("%s%s-%06d", s.cfg.OrderNumberPrefix, s.clock.Now().UTC().Format("060102"), s.digits())
}

// afterPlacement runs the side effects that must not fail the order.
func (s *CheckoutService) afterPlacement(ctx context.Context, view *domain.CartView, order *domain.Order) {
	if err := s.carts.Clear(ctx, view.ID); err != nil {
		slog.WarnContext(ctx, "Failed to clear cart after order", "cart_id", view.ID.String(), "order_number", order.Number, "error", err)
	}

	slugs := make([]string, 0, len(view.Lines))
	for _, l := range view.Lines {
		slugs = append(slugs, l.Slug)
	}
	s.stock.invalidate(ctx, slugs...)

	event := domain.NewOrderEvent(domain.EventOrderCreated, order, s.clock.Now())
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		slog.WarnContext(ctx, "Failed to publish order event", "order_number", order.Number, "error", err)
	}

	if s.metrics != nil {
		s.metrics.OrdersPlaced.WithLabelValues(string(order.PaymentMethod)).Inc()
		if order.CouponID != nil {
			s.metrics.CouponRedemptions.Inc()
		}
	}

	slog.InfoContext(ctx, "Order placed",
		"order_number", order.Number,
		"total", order.Total,
		"payment_method", order.PaymentMethod,
		"items", len(order.Items),
	)
}

func (s *CheckoutService) paymentRequest(o *domain.Order) domain.PaymentSessionRequest {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	number := url.QueryEscape(o.Number)
	return domain.PaymentSessionRequest{
		OrderNumber:   o.Number,
		Amount:        o.Total,
		Currency:      s.cfg.Currency,
		SuccessURL:    base + "/checkout/success?order=" + number,
		FailURL:       base + "/checkout/failed?order=" + number,
		CallbackURL:   base + "/api/payments/callback",
		CustomerName:  o.Shipping.Name,
		CustomerPhone: o.Shipping.Phone,
		CustomerEmail: o.Shipping.Email,
	}
}

func orderItems(lines []domain.CartLine) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, domain.OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			SKU:       l.SKU,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal,
		})
	}
	return items
}

func validateShipping(in domain.ShippingAddress) (domain.ShippingAddress, error) {
	out := domain.ShippingAddress{
		Name:  strings.TrimSpace(in.Name),
		Email: normalizeEmail(in.Email),
		Line1: strings.TrimSpace(in.Line1),
		City:  strings.TrimSpace(in.City),
		Zone:  in.Zone,
	}

	if err := requireLength("name", out.Name, 1, 100); err != nil {
		return out, err
	}
	phone, ok := normalizePhone(in.Phone)
	if !ok {
		return out, apperrors.ValidationError("phone must be a Bangladeshi mobile number").WithField("field", "phone")
	}
	out.Phone = phone
	if out.Email != "" && !validEmail(out.Email) {
		return out, apperrors.ValidationError("email is not valid").WithField("field", "email")
	}
	if err := requireLength("line1", out.Line1, 1, 200); err != nil {
		return out, err
	}
	if err := requireLength("city", out.City, 1, 100); err != nil {
		return out, err
	}
	if !out.Zone.Valid() {
		return out, apperrors.ValidationError("zone must be inside_city or outside_city").WithField("field", "zone")
	}
	return out, nil
}
