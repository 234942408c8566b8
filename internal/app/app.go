package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/tresses/internal/domain/auth"
	"github.com/xenking/tresses/internal/domain/cart"
	"github.com/xenking/tresses/internal/domain/checkout"
	"github.com/xenking/tresses/internal/domain/coupon"
	"github.com/xenking/tresses/internal/domain/fx"
	"github.com/xenking/tresses/internal/domain/money"
	"github.com/xenking/tresses/internal/domain/order"
	"github.com/xenking/tresses/internal/domain/payment"
	"github.com/xenking/tresses/internal/handler"
	"github.com/xenking/tresses/internal/repository"
	"github.com/xenking/tresses/pkg/health"
	"github.com/xenking/tresses/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	policy, err := cfg.CheckoutPolicy()
	if err != nil {
		return errors.Wrap(err, "checkout policy")
	}
	base, err := money.ParseCurrency(cfg.Checkout.BaseCurrency)
	if err != nil {
		return errors.Wrap(err, "base currency")
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	rdb, err := newRedis(ctx, lg, m, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)
	rateStore := repository.NewRateRepository(pool)
	rateRepo := fx.NewCachedRepository(rateStore, rdb, cfg.Rates.CacheTTL)

	// Domain services.
	metrics, err := checkout.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "checkout metrics")
	}
	rates := fx.NewLoader(rateRepo, base, cfg.Rates.Freshness, metrics)
	carts := cart.NewService(cartRepo, productRepo)
	orders := order.NewService(orderRepo)
	checkoutSvc := checkout.NewService(policy, checkout.Deps{
		Rates:    rates,
		Carts:    carts,
		Coupons:  coupon.NewRepoValidator(couponRepo),
		Orders:   orderRepo,
		Payments: orders,
		Gateways: newGateways(lg, cfg),
		Metrics:  metrics,
		Tracer:   m.TracerProvider(),
	})

	// Health check service.
	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Add(health.Readiness, "rates", 5*time.Second, func(ctx context.Context) error {
		_, err := rateStore.ActiveRates(ctx)
		return err
	})
	if rdb != nil {
		healthSvc.Add(health.Readiness, "redis", 2*time.Second, health.RedisCheck(rdb))
	}
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP handlers.
	h := handler.New(handler.Config{
		ImageBaseURL:  cfg.ImageBaseURL,
		RateFreshness: cfg.Rates.Freshness,
	}, handler.Deps{
		Products: productRepo,
		Carts:    carts,
		Checkout: checkoutSvc,
		Orders:   orders,
		Rates:    rates,
		Auth:     auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
	})

	// Route-aware middleware must run inside chi to see the matched pattern.
	r := chi.NewRouter()
	r.Use(
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.Origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
			ExposedHeaders:   []string{httpmiddleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(r)

	limiter, err := newLimiter(ctx, cfg.RateLimit, rdb)
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("tresses-api", m.MeterProvider(), m.TracerProvider()),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Limiter: limiter,
			}),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRedis returns nil when no address is configured. An unreachable server
// is logged, not fatal: the rate cache falls through to Postgres.
func newRedis(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		lg.Info("Redis disabled")
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := redisotel.InstrumentTracing(client, redisotel.WithTracerProvider(m.TracerProvider())); err != nil {
		return nil, errors.Wrap(err, "instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client, redisotel.WithMeterProvider(m.MeterProvider())); err != nil {
		return nil, errors.Wrap(err, "instrument redis metrics")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		lg.Warn("Redis unreachable at startup", zap.String("addr", cfg.Addr), zap.Error(err))
	}
	return client, nil
}

// newGateways registers the providers that have credentials configured.
func newGateways(lg *zap.Logger, cfg *Config) payment.Registry {
	var gateways []payment.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateways = append(gateways, payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			BaseURL:       cfg.Stripe.BaseURL,
		}, payment.NewHTTPClient(cfg.Stripe.Timeout)))
	}
	if cfg.Paystack.SecretKey != "" {
		gateways = append(gateways, payment.NewPaystackGateway(payment.PaystackConfig{
			SecretKey: cfg.Paystack.SecretKey,
			BaseURL:   cfg.Paystack.BaseURL,
			Currency:  money.Currency(strings.ToUpper(cfg.Paystack.Currency)),
		}, payment.NewHTTPClient(cfg.Paystack.Timeout)))
	}
	if len(gateways) == 0 {
		lg.Warn("No payment provider configured; checkout will reject every provider")
	}
	return payment.NewRegistry(gateways...)
}

func newLimiter(ctx context.Context, cfg RateLimitConfig, rdb *redis.Client) (httpmiddleware.Limiter, error) {
	switch cfg.Backend {
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis rate limiter needs a redis address")
		}
		return httpmiddleware.NewRedisLimiter(rdb, cfg.Max, cfg.Window), nil
	default:
		l := httpmiddleware.NewMemoryLimiter(cfg.Max, cfg.Window)
		go l.RunSweeper(ctx)
		return l, nil
	}
}
