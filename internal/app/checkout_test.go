package app

import (
	"context"
	"errors"
	"testing"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCheckoutConfig = CheckoutConfig{
	Currency:           "BDT",
	OrderNumberPrefix:  "RM",
	ShippingFeeInside:  60,
	ShippingFeeOutside: 120,
	FreeShippingMin:    5000,
	BaseURL:            "https://rupomoti.test/",
}

type checkoutFixture struct {
	svc       *CheckoutService
	store     *memCartStore
	orders    *mockOrderRepo
	publisher *recordingPublisher
	cache     *mockProductCache
	metrics   *metrics.StoreMetrics
	cartID    uuid.UUID
	product   *domain.Product
}

func newCheckoutFixture(t *testing.T, gateway domain.PaymentGateway, coupons *mockCouponRepo) *checkoutFixture {
	t.Helper()

	product := &domain.Product{ID: uuid.New(), Name: "Pearl Necklace", Slug: "pearl-necklace", SKU: "PN-1", Price: 1500, Stock: 10, Active: true}
	store := newMemCartStore()
	cartID := uuid.New()
	require.NoError(t, store.SetQuantity(context.Background(), cartID, product.ID, 2))

	if coupons == nil {
		coupons = &mockCouponRepo{}
	}
	clock := clockwork.NewFakeClockAt(testNow)
	m := metrics.NewStoreMetrics(prometheus.NewRegistry())
	orders := &mockOrderRepo{}
	publisher := &recordingPublisher{}
	cache := &mockProductCache{}

	svc := NewCheckoutService(
		NewCartService(store, productCatalog(product)),
		NewCouponService(coupons, clock, m),
		orders, cache, publisher, gateway, testCheckoutConfig, clock, m,
	)
	svc.digits = func() int { return 42 }

	return &checkoutFixture{svc: svc, store: store, orders: orders, publisher: publisher, cache: cache, metrics: m, cartID: cartID, product: product}
}

func validShipping() domain.ShippingAddress {
	return domain.ShippingAddress{
		Name:  "Nusrat Jahan",
		Phone: "+880 1712-345678",
		Line1: "House 12, Road 5, Dhanmondi",
		City:  "Dhaka",
		Zone:  domain.ZoneInsideCity,
	}
}

func TestQuote(t *testing.T) {
	f := newCheckoutFixture(t, nil, nil)

	q, err := f.svc.Quote(context.Background(), f.cartID, "", domain.ZoneOutsideCity)

	require.NoError(t, err)
	assert.Equal(t, &Quote{Subtotal: 3000, ShippingFee: 120, Total: 3120, Currency: "BDT"}, q)
}

func TestQuote_FreeShippingAfterDiscount(t *testing.T) {
	coupons := &mockCouponRepo{getByCodeFn: func(_ context.Context, code string) (*domain.Coupon, error) {
		return &domain.Coupon{ID: uuid.New(), Code: code, Type: domain.DiscountFixed, Value: 500, Active: true}, nil
	}}
	f := newCheckoutFixture(t, nil, coupons)
	require.NoError(t, f.store.SetQuantity(context.Background(), f.cartID, f.product.ID, 4))

	q, err := f.svc.Quote(context.Background(), f.cartID, "", domain.ZoneInsideCity)
	require.NoError(t, err)
	assert.Zero(t, q.ShippingFee, "6000 meets the free shipping minimum")

	q, err = f.svc.Quote(context.Background(), f.cartID, "save500", domain.ZoneInsideCity)
	require.NoError(t, err)
	assert.Equal(t, int64(500), q.Discount)
	assert.Zero(t, q.ShippingFee, "5500 after discount still qualifies")
	assert.Equal(t, "SAVE500", q.CouponCode)

	require.NoError(t, f.store.SetQuantity(context.Background(), f.cartID, f.product.ID, 3))
	q, err = f.svc.Quote(context.Background(), f.cartID, "SAVE500", domain.ZoneInsideCity)
	require.NoError(t, err)
	assert.Equal(t, int64(60), q.ShippingFee, "4000 after discount pays shipping")
	assert.Equal(t, int64(4500-500+60), q.Total)
}

func TestQuote_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(t, nil, nil)

	_, err := f.svc.Quote(context.Background(), uuid.New(), "", domain.ZoneInsideCity)

	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
}

func TestPlaceOrder_COD(t *testing.T) {
	f := newCheckoutFixture(t, nil, nil)
	var persisted *domain.Order
	f.orders.createFn = func(_ context.Context, o *domain.Order) error {
		persisted = o
		return nil
	}
	userID := uuid.New()

	res, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CartID:        f.cartID,
		UserID:        &userID,
		Shipping:      validShipping(),
		PaymentMethod: domain.PaymentCOD,
		Notes:         "  call before delivery ",
	})

	require.NoError(t, err)
	o := res.Order
	assert.Same(t, persisted, o)
	assert.Equal(t, "RM250314-000042", o.Number)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, domain.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, "01712345678", o.Shipping.Phone)
	assert.Equal(t, "call before delivery", o.Notes)
	assert.Equal(t, int64(3060), o.Total)
	require.Len(t, o.Items, 1)
	assert.Equal(t, domain.OrderItem{ProductID: f.product.ID, Name: "Pearl Necklace", SKU: "PN-1", UnitPrice: 1500, Quantity: 2, LineTotal: 3000}, o.Items[0])
	assert.Empty(t, res.PaymentURL)

	items, _ := f.store.Items(context.Background(), f.cartID)
	assert.Empty(t, items, "cart is cleared")
	assert.Equal(t, []domain.OrderEventType{domain.EventOrderCreated}, f.publisher.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersPlaced.WithLabelValues("cod")))
	assert.Equal(t, []string{"pearl-necklace"}, f.cache.invalidated, "claimed stock evicts the cached product")
}

func TestPlaceOrder_RetriesNumberCollision(t *testing.T) {
	f := newCheckoutFixture(t, nil, nil)
	next := 0
	f.svc.digits = func() int { next++; return next }
	var attempts []string
	f.orders.createFn = func(_ context.Context, o *domain.Order) error {
		attempts = append(attempts, o.Number)
		if len(attempts) < 3 {
			return domain.ErrOrderNumberTaken
		}
		return nil
	}

	res, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{CartID: f.cartID, Shipping: validShipping(), PaymentMethod: domain.PaymentCOD})

	require.NoError(t, err)
	assert.Equal(t, []string{"RM250314-000001", "RM250314-000002", "RM250314-000003"}, attempts)
	assert.Equal(t, "RM250314-000003", res.Order.Number)
}

func TestPlaceOrder_NumberExhaustionIsInternal(t *testing.T) {
	f := newCheckoutFixture(t, nil, nil)
	calls := 0
	f.orders.createFn = func(context.Context, *domain.Order) error {
		calls++
		return domain.ErrOrderNumberTaken
	}

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{CartID: f.cartID, Shipping: validShipping(), PaymentMethod: domain.PaymentCOD})

	assert.True(t, apperrors.IsType(err, apperrors.TypeInternal))
	assert.Equal(t, 5, calls)
	items, _ := f.store.Items(context.Background(), f.cartID)
	assert.NotEmpty(t, items, "cart is kept when placement fails")
}

func TestPlaceOrder_StockRaceIsValidation(t *testing.T) {
	f := newCheckoutFixture(t, nil, nil)
	f.orders.createFn = func(context.Context, *domain.Order) error {
		return &domain.StockError{ProductID: f.product.ID, Requested: 2, Available: 1}
	}

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{CartID: f.cartID, Shipping: validShipping(), PaymentMethod: domain.PaymentCOD})

	var se *apperrors.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, apperrors.TypeValidation, se.Type)
	assert.Equal(t, 1, se.Context["available"])
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestPlaceOrder_OtherErrorsStopImmediately(t *testing.T) {
	f := newCheckoutFixture(t, nil, nil)
	boom := errors.New("connection reset")
	calls := 0
	f.orders.createFn = func(context.Context, *domain.Order) error {
		calls++
		return boom
	}

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{CartID: f.cartID, Shipping: validShipping(), PaymentMethod: domain.PaymentCOD})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPlaceOrder_InputValidation(t *testing.T) {
	tests := []struct {
		name string
		req  func(f *checkoutFixture) PlaceOrderRequest
	}{
		{"bad phone", func(f *checkoutFixture) PlaceOrderRequest {
			s := validShipping()
			s.Phone = "12345"
			return PlaceOrderRequest{CartID: f.cartID, Shipping: s, PaymentMethod: domain.PaymentCOD}
		}},
		{"missing city", func(f *checkoutFixture) PlaceOrderRequest {
			s := validShipping()
			s.City = " "
			return PlaceOrderRequest{CartID: f.cartID, Shipping: s, PaymentMethod: domain.PaymentCOD}
		}},
		{"bad email", func(f *checkoutFixture) PlaceOrderRequest {
			s := validShipping()
			s.Email = "nope"
			return PlaceOrderRequest{CartID: f.cartID, Shipping: s, PaymentMethod: domain.PaymentCOD}
		}},
		{"bad zone", func(f *checkoutFixture) PlaceOrderRequest {
			s := validShipping()
			s.Zone = "moon"
			return PlaceOrderRequest{CartID: f.cartID, Shipping: s, PaymentMethod: domain.PaymentCOD}
		}},
		{"unknown payment method", func(f *checkoutFixture) PlaceOrderRequest {
			return PlaceOrderRequest{CartID: f.cartID, Shipping: validShipping(), PaymentMethod: "barter"}
		}},
		{"online without gateway", func(f *checkoutFixture) PlaceOrderRequest {
			return PlaceOrderRequest{CartID: f.cartID, Shipping: validShipping(), PaymentMethod: domain.PaymentOnline}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(t, nil, nil)
			f.orders.createFn = func(context.Context, *domain.Order) error {
				t.Fatal("order must not be created")
				return nil
			}

			_, err := f.svc.PlaceOrder(context.Background(), tt.req(f))

			assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "got %v", err)
		})
	}
}

func TestPlaceOrder_UnavailableLinesListed(t *testing.T) {
	f := newCheckoutFixture(t, nil, nil)
	require.NoError(t, f.store.SetQuantity(context.Background(), f.cartID, f.product.ID, 11))

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{CartID: f.cartID, Shipping: validShipping(), PaymentMethod: domain.PaymentCOD})

	var se *apperrors.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"Pearl Necklace"}, se.Context["unavailable"])
}

func TestPlaceOrder_Online(t *testing.T) {
	var sent domain.PaymentSessionRequest
	gw := &mockGateway{createSessionFn: func(_ context.Context, req domain.PaymentSessionRequest) (*domain.PaymentSession, error) {
		sent = req
		return &domain.PaymentSession{SessionID: "s1", RedirectURL: "https://pay.test/s1"}, nil
	}}
	f := newCheckoutFixture(t, gw, nil)

	res, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{CartID: f.cartID, Shipping: validShipping(), PaymentMethod: domain.PaymentOnline})

	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/s1", res.PaymentURL)
	assert.Equal(t, res.Order.Total, sent.Amount)
	assert.Equal(t, "BDT", sent.Currency)
	assert.Equal(t, "https://rupomoti.test/api/payments/callback", sent.CallbackURL)
	assert.Equal(t, "https://rupomoti.test/checkout/success?order=RM250314-000042", sent.SuccessURL)
}

func TestPlaceOrder_OnlineGatewayFailureKeepsOrder(t *testing.T) {
	gw := &mockGateway{createSessionFn: func(context.Context, domain.PaymentSessionRequest) (*domain.PaymentSession, error) {
		return nil, domain.ErrPaymentUnavailable
	}}
	f := newCheckoutFixture(t, gw, nil)
	created := false
	f.orders.createFn = func(context.Context, *domain.Order) error {
		created = true
		return nil
	}

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{CartID: f.cartID, Shipping: validShipping(), PaymentMethod: domain.PaymentOnline})

	var se *apperrors.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, apperrors.TypeExternal, se.Type)
	assert.Equal(t, "RM250314-000042", se.Context["order_number"])
	assert.True(t, created)
}

func TestPlaceOrder_CouponRecorded(t *testing.T) {
	couponID := uuid.New()
	coupons := &mockCouponRepo{getByCodeFn: func(_ context.Context, code string) (*domain.Coupon, error) {
		return &domain.Coupon{ID: couponID, Code: code, Type: domain.DiscountPercentage, Value: 10, Active: true}, nil
	}}
	f := newCheckoutFixture(t, nil, coupons)

	res, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{CartID: f.cartID, Shipping: validShipping(), PaymentMethod: domain.PaymentCOD, CouponCode: "TEN"})

	require.NoError(t, err)
	assert.Equal(t, &couponID, res.Order.CouponID)
	assert.Equal(t, int64(300), res.Order.Discount)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CouponRedemptions))
}

func TestPlaceOrder_CouponExhaustedAtCommit(t *testing.T) {
	coupons := &mockCouponRepo{getByCodeFn: func(_ context.Context, code string) (*domain.Coupon, error) {
		return &domain.Coupon{ID: uuid.New(), Code: code, Type: domain.DiscountFixed, Value: 100, Active: true}, nil
	}}
	f := newCheckoutFixture(t, nil, coupons)
	f.orders.createFn = func(context.Context, *domain.Order) error {
		return domain.ErrCouponUsageExhausted
	}

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{CartID: f.cartID, Shipping: validShipping(), PaymentMethod: domain.PaymentCOD, CouponCode: "LAST"})

	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
	assert.ErrorIs(t, err, domain.ErrCouponUsageExhausted)
}
