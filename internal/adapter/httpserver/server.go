package httpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/app"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/config"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
)

type catalogService interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, in app.CategoryInput) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, in app.CategoryInput) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	ListProducts(ctx context.Context, f domain.ProductFilter) (domain.Page[domain.Product], error)
	ListAllProducts(ctx context.Context, f domain.ProductFilter) (domain.Page[domain.Product], error)
	GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	CreateProduct(ctx context.Context, in app.ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in app.ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) (bool, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

type cartService interface {
	Get(ctx context.Context, cartID uuid.UUID) (*domain.CartView, error)
	AddItem(ctx context.Context, cartID, productID uuid.UUID, qty int) (*domain.CartView, error)
	SetQuantity(ctx context.Context, cartID, productID uuid.UUID, qty int) (*domain.CartView, error)
	RemoveItem(ctx context.Context, cartID, productID uuid.UUID) (*domain.CartView, error)
	Clear(ctx context.Context, cartID uuid.UUID) error
}

type checkoutService interface {
	Quote(ctx context.Context, cartID uuid.UUID, couponCode string, zone domain.ShippingZone) (*app.Quote, error)
	PlaceOrder(ctx context.Context, req app.PlaceOrderRequest) (*app.PlaceOrderResult, error)
}

type orderService interface {
	Track(ctx context.Context, number, phone string) (*domain.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page domain.PageRequest) (domain.Page[domain.Order], error)
	GetForUser(ctx context.Context, userID uuid.UUID, number string) (*app.OrderDetail, error)
	CancelByCustomer(ctx context.Context, userID uuid.UUID, number string) (*domain.Order, error)
	List(ctx context.Context, f domain.OrderFilter) (domain.Page[domain.Order], error)
	Get(ctx context.Context, number string) (*app.OrderDetail, error)
	UpdateStatus(ctx context.Context, actorID uuid.UUID, number string, to domain.OrderStatus, note string) (*domain.Order, error)
	MarkPayment(ctx context.Context, number string, status domain.PaymentStatus, ref string) (*domain.Order, error)
	ConfirmPayment(ctx context.Context, sessionID, number string) (*domain.Order, error)
}

type couponService interface {
	List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Coupon], error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Coupon, error)
	Create(ctx context.Context, in app.CouponInput) (*domain.Coupon, error)
	Update(ctx context.Context, id uuid.UUID, in app.CouponInput) (*domain.Coupon, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type mediaService interface {
	Upload(ctx context.Context, filename, alt string, r io.Reader) (*domain.Media, error)
	List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Media], error)
	Open(ctx context.Context, id uuid.UUID) (*domain.Media, io.ReadCloser, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type reviewService interface {
	Submit(ctx context.Context, userID uuid.UUID, productSlug string, in app.ReviewInput) (*domain.Review, error)
	ListForProduct(ctx context.Context, productSlug string, page domain.PageRequest) (domain.Page[domain.Review], error)
	List(ctx context.Context, status domain.ReviewStatus, page domain.PageRequest) (domain.Page[domain.Review], error)
	Moderate(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) (*domain.Review, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type userService interface {
	Register(ctx context.Context, in app.RegisterInput) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) (*domain.User, error)
	ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error
	List(ctx context.Context, f domain.UserFilter) (domain.Page[domain.User], error)
	SetRole(ctx context.Context, actor *domain.User, id uuid.UUID, role domain.Role) (*domain.User, error)
	SetActive(ctx context.Context, actor *domain.User, id uuid.UUID, active bool) (*domain.User, error)
}

type dashboardService interface {
	Stats(ctx context.Context) (*domain.DashboardStats, error)
}

// Services groups the application services the HTTP layer calls into.
type Services struct {
	Catalog   catalogService
	Cart      cartService
	Checkout  checkoutService
	Orders    orderService
	Coupons   couponService
	Media     mediaService
	Reviews   reviewService
	Users     userService
	Dashboard dashboardService
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	svc    Services

	liveOrders     http.Handler
	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics

	sessionStore *sessions.CookieStore
	healthChecks []HealthCheck
	startTime    time.Time
}

// Options carries the optional collaborators of a Server. Nil fields
// disable the matching route or middleware.
type Options struct {
	LiveOrders     http.Handler
	MetricsHandler http.Handler
	HTTPMetrics    *metrics.HTTPMetrics
	HealthChecks   []HealthCheck
}

func NewServer(cfg *config.Config, svc Services, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		svc:            svc,
		liveOrders:     opts.LiveOrders,
		metricsHandler: opts.MetricsHandler,
		httpMetrics:    opts.HTTPMetrics,
		sessionStore:   setupSessionStore(cfg),
		healthChecks:   opts.HealthChecks,
		startTime:      time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
