package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/int-market-project/international-market/internal/domain/checkout"
	"github.com/int-market-project/international-market/internal/domain/coupon"
	"github.com/int-market-project/international-market/internal/domain/order"
	"github.com/int-market-project/international-market/internal/domain/payment"
	"github.com/int-market-project/international-market/internal/events"
	"github.com/int-market-project/international-market/internal/handler"
	"github.com/int-market-project/international-market/internal/notify"
	"github.com/int-market-project/international-market/internal/storage/postgres"
	"github.com/int-market-project/international-market/internal/stripe"
	"github.com/int-market-project/international-market/pkg/health"
	"github.com/int-market-project/international-market/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	draftRepo := postgres.NewDraftRepository(pool)
	txRepo := postgres.NewTransactionRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Optional collaborators, enabled by config.
	var bus order.Events
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaBus := events.NewKafkaBus(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kafkaBus.Close(); err != nil {
				lg.Warn("close kafka bus", zap.Error(err))
			}
		}()
		bus = kafkaBus
		lg.Info("Order events enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	var provider payment.Provider
	if cfg.Stripe.SecretKey != "" {
		provider = stripe.New(stripe.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
		})
		lg.Info("Online payments enabled")
	}

	var mailer *notify.Mailer
	if smtpCfg := (notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}); smtpCfg.Enabled() {
		mailer = notify.NewMailer(smtpCfg)
		lg.Info("Status emails enabled", zap.String("host", cfg.SMTP.Host))
	}

	// Domain services.
	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return errors.Wrapf(err, "parse tax rate %q", cfg.TaxRate)
	}
	calc := checkout.NewCalculator(taxRate)
	engine := coupon.NewEngine(couponRepo)
	materializer := order.NewMaterializer(orderRepo, bus)
	states := order.NewStateMachine(orderRepo, txRepo, bus)
	builder := checkout.NewBuilder(productRepo, engine, settingsRepo, calc)
	coordinator := checkout.NewCoordinator(
		checkout.CoordinatorConfig{
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		},
		draftRepo, engine, materializer, orderRepo, txRepo, customerRepo, provider,
	)

	// HTTP handlers.
	h := handler.NewHandler(
		builder, coordinator,
		couponRepo, engine, calc, settingsRepo,
		orderRepo, states, txRepo, customerRepo,
		provider, mailer,
		apikeyRepo, []byte(cfg.APIKeyPepper),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(mux, "market-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key", "X-Customer-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
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
