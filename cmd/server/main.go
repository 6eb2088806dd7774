package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/blobstore"
	"github.com/ahsanhabibakik/rupomoti/internal/adapter/httpserver"
	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/adapter/payment"
	"github.com/ahsanhabibakik/rupomoti/internal/adapter/postgres"
	"github.com/ahsanhabibakik/rupomoti/internal/adapter/redis"
	"github.com/ahsanhabibakik/rupomoti/internal/adapter/scheduler"
	"github.com/ahsanhabibakik/rupomoti/internal/adapter/websocket"
	"github.com/ahsanhabibakik/rupomoti/internal/app"
	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/config"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/logging"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/password"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/version"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout     = 10 * time.Second
	cacheEvictInterval  = time.Minute
	expireOrdersTimeout = time.Minute
	purgeMediaTimeout   = 5 * time.Minute
)

type appMetrics struct {
	registry *prometheus.Registry
	http     *metrics.HTTPMetrics
	store    *metrics.StoreMetrics
	cache    *metrics.CacheMetrics
	breaker  *metrics.BreakerMetrics
	redis    *metrics.RedisMetrics
	db       *metrics.DBMetrics
	ws       *metrics.WebSocketMetrics
}

func setupMetrics() appMetrics {
	reg := metrics.NewRegistry()
	return appMetrics{
		registry: reg,
		http:     metrics.NewHTTPMetrics(reg),
		store:    metrics.NewStoreMetrics(reg),
		cache:    metrics.NewCacheMetrics(reg),
		breaker:  metrics.NewBreakerMetrics(reg),
		redis:    metrics.NewRedisMetrics(reg),
		db:       metrics.NewDBMetrics(reg),
		ws:       metrics.NewWebSocketMetrics(reg),
	}
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.DBMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewMetricsTracer(m))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config, m appMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL,
		redis.NewMetricsHook(m.redis),
		redis.NewCircuitBreakerHook(m.breaker),
	)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// setupGateway returns nil when online payment is not configured, so the
// interface stays a true nil.
func setupGateway(cfg *config.Config, m appMetrics) domain.PaymentGateway {
	if !cfg.PaymentsEnabled() {
		slog.Info("Online payment disabled, only cash on delivery is offered")
		return nil
	}
	return payment.NewGateway(cfg.PaymentGatewayURL, cfg.PaymentGatewayKey, m.store, m.breaker)
}

func setupScheduler(cfg *config.Config, m *metrics.StoreMetrics, orders *app.OrderService, media *app.MediaService) *scheduler.Scheduler {
	sched := scheduler.New(m)
	jobs := []scheduler.Job{
		{
			Name:    "expire_unpaid_orders",
			Spec:    cfg.JobExpireOrdersSpec,
			Timeout: expireOrdersTimeout,
			Run:     orders.ExpireUnpaidOrders,
		},
		{
			Name:    "purge_orphan_media",
			Spec:    cfg.JobPurgeMediaSpec,
			Timeout: purgeMediaTimeout,
			Run: func(ctx context.Context) (int, error) {
				return media.PurgeOrphans(ctx, cfg.MediaOrphanAge)
			},
		},
	}
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			slog.Error("Failed to register job", "job", job.Name, "error", err)
			os.Exit(1)
		}
	}
	return sched
}

type shutdownDeps struct {
	server     *httpserver.Server
	scheduler  *scheduler.Scheduler
	hub        *websocket.Hub
	background context.CancelFunc
	subscribed *errgroup.Group
}

func runGracefulShutdown(deps shutdownDeps) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := deps.server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		deps.scheduler.Stop(shutdownCtx)

		deps.background()
		if err := deps.subscribed.Wait(); err != nil {
			slog.Error("Subscriber stopped with error", "error", err)
		}
		deps.hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().Version)

	m := setupMetrics()

	pool := setupDB(cfg, m.db)
	defer pool.Close()

	rdb := setupRedis(cfg, m)
	defer func() { _ = rdb.Close() }()

	blobs, err := blobstore.New(cfg)
	if err != nil {
		slog.Error("Failed to open media storage", "backend", cfg.MediaBackend, "error", err)
		os.Exit(1)
	}

	// Repositories
	users := postgres.NewUserRepo(pool)
	categories := postgres.NewCategoryRepo(pool)
	products := postgres.NewProductRepo(pool)
	mediaRepo := postgres.NewMediaRepo(pool)
	coupons := postgres.NewCouponRepo(pool)
	orders := postgres.NewOrderRepo(pool)
	reviews := postgres.NewReviewRepo(pool)
	stats := postgres.NewStatsRepo(pool)

	// Redis-backed infrastructure
	productCache := redis.NewProductCache(rdb, products, cfg.ProductCacheTTL, m.cache)
	stopEviction := productCache.StartEvictionTimer(cacheEvictInterval)
	defer stopEviction()
	catalogCache := redis.NewCatalogInvalidation(rdb, productCache, m.cache)
	cartStore := redis.NewCartStore(rdb, cfg.CartTTL)
	orderFeed := redis.NewOrderFeed(rdb)

	hub := websocket.NewHub(m.ws)
	liveOrders := websocket.NewHandler(hub, websocket.NewCheckOrigin(cfg.BaseURL, !cfg.IsProduction()))

	gateway := setupGateway(cfg, m)

	// Application services
	catalogSvc := app.NewCatalogService(categories, products, mediaRepo, catalogCache)
	cartSvc := app.NewCartService(cartStore, products)
	couponSvc := app.NewCouponService(coupons, clock, m.store)
	checkoutSvc := app.NewCheckoutService(cartSvc, couponSvc, orders, catalogCache, orderFeed, gateway, app.CheckoutConfig{
		Currency:           cfg.Currency,
		OrderNumberPrefix:  cfg.OrderNumberPrefix,
		ShippingFeeInside:  cfg.ShippingFeeInside,
		ShippingFeeOutside: cfg.ShippingFeeOutside,
		FreeShippingMin:    cfg.FreeShippingMin,
		BaseURL:            cfg.BaseURL,
	}, clock, m.store)
	orderSvc := app.NewOrderService(orders, products, catalogCache, orderFeed, gateway, clock, m.store, cfg.PaymentTimeout)
	mediaSvc := app.NewMediaService(mediaRepo, blobs, clock, cfg.MediaMaxBytes)
	reviewSvc := app.NewReviewService(reviews, products, orders, users, catalogCache)
	userSvc := app.NewUserService(users, password.NewHasher(0))
	dashboardSvc := app.NewDashboardService(stats, clock, cfg.LowStockThreshold)

	// Background subscribers: cache invalidation and the live order feed.
	bgCtx, cancelBackground := context.WithCancel(context.Background())
	subscribed, subCtx := errgroup.WithContext(bgCtx)
	subscribed.Go(func() error { return catalogCache.Start(subCtx, nil) })
	subscribed.Go(func() error { return orderFeed.Subscribe(subCtx, nil, hub.BroadcastOrderEvent) })

	sched := setupScheduler(cfg, m.store, orderSvc, mediaSvc)
	sched.Start()

	srv := httpserver.NewServer(cfg, httpserver.Services{
		Catalog:   catalogSvc,
		Cart:      cartSvc,
		Checkout:  checkoutSvc,
		Orders:    orderSvc,
		Coupons:   couponSvc,
		Media:     mediaSvc,
		Reviews:   reviewSvc,
		Users:     userSvc,
		Dashboard: dashboardSvc,
	}, httpserver.Options{
		LiveOrders:     liveOrders,
		MetricsHandler: metrics.Handler(m.registry),
		HTTPMetrics:    m.http,
		HealthChecks: []httpserver.HealthCheck{
			{Name: "postgres", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
	})

	done := runGracefulShutdown(shutdownDeps{
		server:     srv,
		scheduler:  sched,
		hub:        hub,
		background: cancelBackground,
		subscribed: subscribed,
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
