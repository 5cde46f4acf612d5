package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/order"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/point"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/stock"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/handler"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/storage/postgres"
	"github.com/yoobinbkk/loopers-ecommerce-project/pkg/health"
	"github.com/yoobinbkk/loopers-ecommerce-project/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	shippingFee, err := cfg.Order.Fee()
	if err != nil {
		return err
	}

	if cfg.DB.MigrateOnStart {
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		lg.Info("Migrations applied")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DB.MaxConns)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()
	db := postgres.NewDB(pool)

	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name:    "postgres",
		Probe:   health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(pool),
	})
	healthSvc.Register(health.Check{
		Name:  "goroutines",
		Probe: health.Liveness,
		Func:  health.GoroutineCountCheck(10000),
	})
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories and ledgers.
	users := postgres.NewUserRepository(db)
	stockLedger := stock.NewLedger(postgres.NewStockRepository(db))
	pointLedger := point.NewLedger(postgres.NewPointRepository(db))
	couponLedger := coupon.NewLedger(postgres.NewCouponRepository(db))

	orderService, err := order.NewService(order.Deps{
		Tx:       db,
		Users:    users,
		Products: postgres.NewProductRepository(db),
		Stock:    stockLedger,
		Points:   pointLedger,
		Coupons:  couponLedger,
		Orders:   postgres.NewOrderRepository(db),
	},
		order.WithShippingFee(shippingFee),
		order.WithMeterProvider(m.MeterProvider()),
		order.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests())
	healthSvc.Mount(r)
	handler.New(orderService, users, pointLedger, couponLedger).Mount(r,
		httpmiddleware.Throttle(ctx, httpmiddleware.ThrottleConfig{
			Limit:  cfg.Throttle.Limit,
			Window: cfg.Throttle.Window,
		}),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(r,
				httpmiddleware.Recovery(),
				httpmiddleware.RequestID(),
				httpmiddleware.InjectLogger(zctx.From(ctx)),
			),
			"shop-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}
	healthSvc.SetReady(true)

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
