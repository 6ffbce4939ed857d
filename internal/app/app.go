package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/order"
	"github.com/xenking/kart-store/internal/handler"
	"github.com/xenking/kart-store/internal/storage/memcache"
	"github.com/xenking/kart-store/internal/storage/postgres"
	"github.com/xenking/kart-store/pkg/health"
	"github.com/xenking/kart-store/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	products := postgres.NewProductRepository(pool)
	carts := postgres.NewCartRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	apikeys := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	cartSvc := cart.NewService(carts, products, memcache.New(cfg.Cache.Size, cfg.Cache.TTL))
	orderSvc, err := order.NewService(cartSvc, products, products, orders, order.Options{
		Transactor:     postgres.NewTxManager(pool),
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
		DefaultCountry: cfg.Checkout.DefaultCountry,
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.NewHandler(handler.Config{ImageBaseURL: cfg.ImageBaseURL}, products, cartSvc, orderSvc)
	authn := handler.NewAuthenticator(apikeys, []byte(cfg.APIKeyPepper))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(newRouter(h, authn, healthSvc),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           24 * time.Hour,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument("kart-api", m),
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

// newRouter mounts the health endpoints at the root and the API under /api. Request
// logging and route labels run inside chi so they can see the matched
// pattern.
func newRouter(h *handler.Handler, authn *handler.Authenticator, hc *health.Health) http.Handler {
	root := chi.NewRouter()
	root.Use(
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	root.Get("/livez", hc.LiveEndpoint)
	root.Get("/readyz", hc.ReadyEndpoint)
	root.Mount("/api", h.Routes(authn.Middleware))
	return root
}

