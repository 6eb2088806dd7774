package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/app"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/config"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var errNotImplemented = errors.New("not implemented")

// --- Mock implementations ---

type mockCatalog struct {
	listCategoriesFn  func(ctx context.Context) ([]domain.Category, error)
	createCategoryFn  func(ctx context.Context, in app.CategoryInput) (*domain.Category, error)
	listProductsFn    func(ctx context.Context, f domain.ProductFilter) (domain.Page[domain.Product], error)
	listAllProductsFn func(ctx context.Context, f domain.ProductFilter) (domain.Page[domain.Product], error)
	getBySlugFn       func(ctx context.Context, slug string) (*domain.Product, error)
	createProductFn   func(ctx context.Context, in app.ProductInput) (*domain.Product, error)
	deleteProductFn   func(ctx context.Context, id uuid.UUID) (bool, error)
	adjustStockFn     func(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

func (m *mockCatalog) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx)
	}
	return nil, nil
}

func (m *mockCatalog) CreateCategory(ctx context.Context, in app.CategoryInput) (*domain.Category, error) {
	if m.createCategoryFn != nil {
		return m.createCategoryFn(ctx, in)
	}
	return nil, errNotImplemented
}

func (m *mockCatalog) UpdateCategory(context.Context, uuid.UUID, app.CategoryInput) (*domain.Category, error) {
	return nil, errNotImplemented
}

func (m *mockCatalog) DeleteCategory(context.Context, uuid.UUID) error { return errNotImplemented }

func (m *mockCatalog) ListProducts(ctx context.Context, f domain.ProductFilter) (domain.Page[domain.Product], error) {
	if m.listProductsFn != nil {
		return m.listProductsFn(ctx, f)
	}
	return domain.NewPage[domain.Product](nil, 0, f.PageRequest), nil
}

func (m *mockCatalog) ListAllProducts(ctx context.Context, f domain.ProductFilter) (domain.Page[domain.Product], error) {
	if m.listAllProductsFn != nil {
		return m.listAllProductsFn(ctx, f)
	}
	return domain.NewPage[domain.Product](nil, 0, f.PageRequest), nil
}

func (m *mockCatalog) GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	if m.getBySlugFn != nil {
		return m.getBySlugFn(ctx, slug)
	}
	return nil, domain.ErrProductNotFound
}

func (m *mockCatalog) GetProduct(context.Context, uuid.UUID) (*domain.Product, error) {
	return nil, domain.ErrProductNotFound
}

func (m *mockCatalog) CreateProduct(ctx context.Context, in app.ProductInput) (*domain.Product, error) {
	if m.createProductFn != nil {
		return m.createProductFn(ctx, in)
	}
	return nil, errNotImplemented
}

func (m *mockCatalog) UpdateProduct(context.Context, uuid.UUID, app.ProductInput) (*domain.Product, error) {
	return nil, errNotImplemented
}

func (m *mockCatalog) DeleteProduct(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.deleteProductFn != nil {
		return m.deleteProductFn(ctx, id)
	}
	return false, errNotImplemented
}

func (m *mockCatalog) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	if m.adjustStockFn != nil {
		return m.adjustStockFn(ctx, id, delta)
	}
	return 0, errNotImplemented
}

type mockCart struct {
	getFn     func(ctx context.Context, cartID uuid.UUID) (*domain.CartView, error)
	addItemFn func(ctx context.Context, cartID, productID uuid.UUID, qty int) (*domain.CartView, error)
	clearFn   func(ctx context.Context, cartID uuid.UUID) error
}

func (m *mockCart) Get(ctx context.Context, cartID uuid.UUID) (*domain.CartView, error) {
	if m.getFn != nil {
		return m.getFn(ctx, cartID)
	}
	return &domain.CartView{ID: cartID, Lines: []domain.CartLine{}}, nil
}

func (m *mockCart) AddItem(ctx context.Context, cartID, productID uuid.UUID, qty int) (*domain.CartView, error) {
	if m.addItemFn != nil {
		return m.addItemFn(ctx, cartID, productID, qty)
	}
	return &domain.CartView{ID: cartID}, nil
}

func (m *mockCart) SetQuantity(_ context.Context, cartID, _ uuid.UUID, _ int) (*domain.CartView, error) {
	return &domain.CartView{ID: cartID}, nil
}

func (m *mockCart) RemoveItem(_ context.Context, cartID, _ uuid.UUID) (*domain.CartView, error) {
	return &domain.CartView{ID: cartID}, nil
}

func (m *mockCart) Clear(ctx context.Context, cartID uuid.UUID) error {
	if m.clearFn != nil {
		return m.clearFn(ctx, cartID)
	}
	return nil
}

type mockCheckout struct {
	quoteFn      func(ctx context.Context, cartID uuid.UUID, couponCode string, zone domain.ShippingZone) (*app.Quote, error)
	placeOrderFn func(ctx context.Context, req app.PlaceOrderRequest) (*app.PlaceOrderResult, error)
}

func (m *mockCheckout) Quote(ctx context.Context, cartID uuid.UUID, couponCode string, zone domain.ShippingZone) (*app.Quote, error) {
	if m.quoteFn != nil {
		return m.quoteFn(ctx, cartID, couponCode, zone)
	}
	return nil, errNotImplemented
}

func (m *mockCheckout) PlaceOrder(ctx context.Context, req app.PlaceOrderRequest) (*app.PlaceOrderResult, error) {
	if m.placeOrderFn != nil {
		return m.placeOrderFn(ctx, req)
	}
	return nil, errNotImplemented
}

type mockOrders struct {
	trackFn          func(ctx context.Context, number, phone string) (*domain.Order, error)
	listForUserFn    func(ctx context.Context, userID uuid.UUID, page domain.PageRequest) (domain.Page[domain.Order], error)
	cancelFn         func(ctx context.Context, userID uuid.UUID, number string) (*domain.Order, error)
	listFn           func(ctx context.Context, f domain.OrderFilter) (domain.Page[domain.Order], error)
	updateStatusFn   func(ctx context.Context, actorID uuid.UUID, number string, to domain.OrderStatus, note string) (*domain.Order, error)
	confirmPaymentFn func(ctx context.Context, sessionID, number string) (*domain.Order, error)
}

func (m *mockOrders) Track(ctx context.Context, number, phone string) (*domain.Order, error) {
	if m.trackFn != nil {
		return m.trackFn(ctx, number, phone)
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrders) ListForUser(ctx context.Context, userID uuid.UUID, page domain.PageRequest) (domain.Page[domain.Order], error) {
	if m.listForUserFn != nil {
		return m.listForUserFn(ctx, userID, page)
	}
	return domain.NewPage[domain.Order](nil, 0, page), nil
}

func (m *mockOrders) GetForUser(context.Context, uuid.UUID, string) (*app.OrderDetail, error) {
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrders) CancelByCustomer(ctx context.Context, userID uuid.UUID, number string) (*domain.Order, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, userID, number)
	}
	return nil, errNotImplemented
}

func (m *mockOrders) List(ctx context.Context, f domain.OrderFilter) (domain.Page[domain.Order], error) {
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	return domain.NewPage[domain.Order](nil, 0, f.PageRequest), nil
}

func (m *mockOrders) Get(context.Context, string) (*app.OrderDetail, error) {
	return nil, domain.ErrOrderNotFound
}

func (m *mockOrders) UpdateStatus(ctx context.Context, actorID uuid.UUID, number string, to domain.OrderStatus, note string) (*domain.Order, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, actorID, number, to, note)
	}
	return nil, errNotImplemented
}

func (m *mockOrders) MarkPayment(context.Context, string, domain.PaymentStatus, string) (*domain.Order, error) {
	return nil, errNotImplemented
}

func (m *mockOrders) ConfirmPayment(ctx context.Context, sessionID, number string) (*domain.Order, error) {
	if m.confirmPaymentFn != nil {
		return m.confirmPaymentFn(ctx, sessionID, number)
	}
	return nil, errNotImplemented
}

type mockCoupons struct {
	listFn func(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Coupon], error)
}

func (m *mockCoupons) List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Coupon], error) {
	if m.listFn != nil {
		return m.listFn(ctx, page)
	}
	return domain.NewPage[domain.Coupon](nil, 0, page), nil
}

func (m *mockCoupons) Get(context.Context, uuid.UUID) (*domain.Coupon, error) {
	return nil, domain.ErrCouponNotFound
}

func (m *mockCoupons) Create(context.Context, app.CouponInput) (*domain.Coupon, error) {
	return nil, errNotImplemented
}

func (m *mockCoupons) Update(context.Context, uuid.UUID, app.CouponInput) (*domain.Coupon, error) {
	return nil, errNotImplemented
}

func (m *mockCoupons) Delete(context.Context, uuid.UUID) error { return errNotImplemented }

type mockMedia struct {
	uploadFn func(ctx context.Context, filename, alt string, r io.Reader) (*domain.Media, error)
	openFn   func(ctx context.Context, id uuid.UUID) (*domain.Media, io.ReadCloser, error)
	deleteFn func(ctx context.Context, id uuid.UUID) error
}

func (m *mockMedia) Upload(ctx context.Context, filename, alt string, r io.Reader) (*domain.Media, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, filename, alt, r)
	}
	return nil, errNotImplemented
}

func (m *mockMedia) List(_ context.Context, page domain.PageRequest) (domain.Page[domain.Media], error) {
	return domain.NewPage[domain.Media](nil, 0, page), nil
}

func (m *mockMedia) Open(ctx context.Context, id uuid.UUID) (*domain.Media, io.ReadCloser, error) {
	if m.openFn != nil {
		return m.openFn(ctx, id)
	}
	return nil, nil, domain.ErrMediaNotFound
}

func (m *mockMedia) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return errNotImplemented
}

type mockReviews struct {
	submitFn   func(ctx context.Context, userID uuid.UUID, slug string, in app.ReviewInput) (*domain.Review, error)
	moderateFn func(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) (*domain.Review, error)
}

func (m *mockReviews) Submit(ctx context.Context, userID uuid.UUID, slug string, in app.ReviewInput) (*domain.Review, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, userID, slug, in)
	}
	return nil, errNotImplemented
}

func (m *mockReviews) ListForProduct(_ context.Context, _ string, page domain.PageRequest) (domain.Page[domain.Review], error) {
	return domain.NewPage[domain.Review](nil, 0, page), nil
}

func (m *mockReviews) List(_ context.Context, _ domain.ReviewStatus, page domain.PageRequest) (domain.Page[domain.Review], error) {
	return domain.NewPage[domain.Review](nil, 0, page), nil
}

func (m *mockReviews) Moderate(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) (*domain.Review, error) {
	if m.moderateFn != nil {
		return m.moderateFn(ctx, id, status)
	}
	return nil, errNotImplemented
}

func (m *mockReviews) Delete(context.Context, uuid.UUID) error { return errNotImplemented }

// mockUsers resolves sessions against an in-memory set of users.
type mockUsers struct {
	users          map[uuid.UUID]*domain.User
	authenticateFn func(ctx context.Context, email, password string) (*domain.User, error)
	setActiveFn    func(ctx context.Context, actor *domain.User, id uuid.UUID, active bool) (*domain.User, error)
}

func newMockUsers(users ...*domain.User) *mockUsers {
	m := &mockUsers{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUsers) Register(_ context.Context, in app.RegisterInput) (*domain.User, error) {
	u := &domain.User{ID: uuid.New(), Email: in.Email, Name: in.Name, Role: domain.RoleCustomer, Active: true}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUsers) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, email, password)
	}
	return nil, domain.ErrInvalidCredentials
}

func (m *mockUsers) Get(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUsers) UpdateProfile(_ context.Context, id uuid.UUID, name, phone string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Name, u.Phone = name, phone
	return u, nil
}

func (m *mockUsers) ChangePassword(context.Context, uuid.UUID, string, string) error { return nil }

func (m *mockUsers) List(_ context.Context, f domain.UserFilter) (domain.Page[domain.User], error) {
	return domain.NewPage[domain.User](nil, 0, f.PageRequest), nil
}

func (m *mockUsers) SetRole(_ context.Context, _ *domain.User, id uuid.UUID, role domain.Role) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Role = role
	return u, nil
}

func (m *mockUsers) SetActive(ctx context.Context, actor *domain.User, id uuid.UUID, active bool) (*domain.User, error) {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, actor, id, active)
	}
	return nil, errNotImplemented
}

type mockDashboard struct{}

func (mockDashboard) Stats(context.Context) (*domain.DashboardStats, error) {
	return &domain.DashboardStats{OrdersByStatus: map[domain.OrderStatus]int{domain.StatusPending: 2}}, nil
}

// --- Test helpers ---

func testUser(role domain.Role) *domain.User {
	return &domain.User{ID: uuid.New(), Email: string(role) + "@example.com", Name: string(role), Role: role, Active: true}
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:         "test",
		Port:           "0",
		BaseURL:        "http://localhost:8080",
		SessionSecret:  "test-secret-key-32-bytes-long!!!",
		SessionMaxAge:  time.Hour,
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}
}

func testServices() Services {
	return Services{
		Catalog:   &mockCatalog{},
		Cart:      &mockCart{},
		Checkout:  &mockCheckout{},
		Orders:    &mockOrders{},
		Coupons:   &mockCoupons{},
		Media:     &mockMedia{},
		Reviews:   &mockReviews{},
		Users:     newMockUsers(),
		Dashboard: mockDashboard{},
	}
}

func newTestServer(t *testing.T, svc Services, opts ...func(*Options)) *Server {
	t.Helper()
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return NewServer(testConfig(), svc, o)
}

func withHealthChecks(checks ...HealthCheck) func(*Options) {
	return func(o *Options) { o.HealthChecks = checks }
}

// client replays cookies between requests against the full router.
type client struct {
	t       *testing.T
	srv     *Server
	cookies map[string]*http.Cookie
	csrf    string
}

func newClient(t *testing.T, srv *Server) *client {
	return &client{t: t, srv: srv, cookies: make(map[string]*http.Cookie)}
}

func (cl *client) do(req *http.Request) *httptest.ResponseRecorder {
	cl.t.Helper()
	for _, c := range cl.cookies {
		req.AddCookie(c)
	}
	if cl.csrf != "" {
		req.Header.Set("X-CSRF-Token", cl.csrf)
	}
	if req.Header.Get(echo.HeaderContentType) == "" && req.Body != nil && req.Body != http.NoBody {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	rec := httptest.NewRecorder()
	cl.srv.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(cl.cookies, c.Name)
			continue
		}
		cl.cookies[c.Name] = c
	}
	return rec
}
