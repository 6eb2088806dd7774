package cli

import (
	"context"
	"fmt"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/adapter/postgres"
	"github.com/ahsanhabibakik/rupomoti/internal/adapter/redis"
	"github.com/ahsanhabibakik/rupomoti/internal/app"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/config"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/logging"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/password"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type catalogWriter interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, in app.CategoryInput) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, in app.CategoryInput) (*domain.Category, error)
	CreateProduct(ctx context.Context, in app.ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in app.ProductInput) (*domain.Product, error)
}

// productFinder looks products up by slug regardless of their active flag.
type productFinder interface {
	GetBySlug(ctx context.Context, slug string) (*domain.Product, error)
}

type adminCreator interface {
	CreateAdmin(ctx context.Context, email, name, plain string) (*domain.User, error)
}

type orderLister interface {
	List(ctx context.Context, f domain.OrderFilter) (domain.Page[domain.Order], error)
}

type couponLister interface {
	List(ctx context.Context, page domain.PageRequest) (domain.Page[domain.Coupon], error)
}

// Env is everything a command may touch. Each command uses only the fields
// it needs.
type Env struct {
	Catalog  catalogWriter
	Products productFinder
	Users    adminCreator
	Orders   orderLister
	Coupons  couponLister
	Migrate  func(ctx context.Context) (int32, error)
	Currency string
}

// Opener connects an Env and returns a cleanup function.
type Opener func(ctx context.Context) (*Env, func(), error)

// OpenDatabase builds an Env on top of PostgreSQL. When REDIS_URL is set,
// catalog writes also evict the product cache of running servers.
func OpenDatabase(ctx context.Context) (*Env, func(), error) {
	cfg, err := config.LoadForTools()
	if err != nil {
		return nil, nil, err
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, nil)
	if err != nil {
		return nil, nil, err
	}
	cleanup := pool.Close

	products := postgres.NewProductRepo(pool)
	var cache domain.ProductCache = uncachedProducts{products: products}
	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		cleanup = func() {
			_ = rdb.Close()
			pool.Close()
		}
		cacheMetrics := metrics.NewCacheMetrics(metrics.NewRegistry())
		productCache := redis.NewProductCache(rdb, products, cfg.ProductCacheTTL, cacheMetrics)
		cache = redis.NewCatalogInvalidation(rdb, productCache, cacheMetrics)
	}

	clock := clockwork.NewRealClock()
	env := &Env{
		Catalog:  app.NewCatalogService(postgres.NewCategoryRepo(pool), products, postgres.NewMediaRepo(pool), cache),
		Products: products,
		Users:    app.NewUserService(postgres.NewUserRepo(pool), password.NewHasher(0)),
		Orders:   app.NewOrderService(postgres.NewOrderRepo(pool), nil, nil, nil, nil, clock, nil, cfg.PaymentTimeout),
		Coupons:  app.NewCouponService(postgres.NewCouponRepo(pool), clock, nil),
		Migrate: func(ctx context.Context) (int32, error) {
			if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
				return 0, err
			}
			return postgres.SchemaVersion(ctx, pool)
		},
		Currency: cfg.Currency,
	}
	return env, cleanup, nil
}

// uncachedProducts reads straight from the repository when no Redis is
// configured.
type uncachedProducts struct {
	products productFinder
}

func (u uncachedProducts) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	return u.products.GetBySlug(ctx, slug)
}

func (uncachedProducts) Invalidate(context.Context, ...string) error { return nil }
