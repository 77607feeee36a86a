package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apporder "github.com/erp/fulfillment/internal/application/order"
	apppayment "github.com/erp/fulfillment/internal/application/payment"
	"github.com/erp/fulfillment/internal/infrastructure/auth"
	"github.com/erp/fulfillment/internal/infrastructure/cache"
	"github.com/erp/fulfillment/internal/infrastructure/config"
	"github.com/erp/fulfillment/internal/infrastructure/event"
	"github.com/erp/fulfillment/internal/infrastructure/logger"
	"github.com/erp/fulfillment/internal/infrastructure/migration"
	"github.com/erp/fulfillment/internal/infrastructure/payment"
	"github.com/erp/fulfillment/internal/infrastructure/persistence"
	"github.com/erp/fulfillment/internal/infrastructure/scheduler"
	"github.com/erp/fulfillment/internal/infrastructure/telemetry"
	"github.com/erp/fulfillment/internal/infrastructure/telemetry/business"
	"github.com/erp/fulfillment/internal/interfaces/http/handler"
	"github.com/erp/fulfillment/internal/interfaces/http/middleware"
	"github.com/erp/fulfillment/internal/interfaces/http/router"
	"github.com/erp/fulfillment/migrations"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const telemetryShutdownTimeout = 10 * time.Second

//	@title			Fulfillment API
//	@version		1.0
//	@description	Orders, payments and the payment gateway callback.
//	@BasePath		/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// Telemetry comes first so the final logger can tee into the OTLP log bridge
	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize logger provider", zap.Error(err))
	}

	log, err := logger.New(logCfg, loggerProvider.Core(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = log.Sync()
	}()

	profiler, err := telemetry.NewProfiler(cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	log.Info("Starting fulfillment service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("event_transport", cfg.Event.Transport),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	sqlDB, err := db.SQL()
	if err != nil {
		log.Fatal("Failed to get sql.DB", zap.Error(err))
	}

	if cfg.Database.MigrateOnStart {
		migrator, err := migration.New(sqlDB, migrations.FS, log)
		if err != nil {
			log.Fatal("Failed to create migrator", zap.Error(err))
		}
		if err := migrator.Up(); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	dbInstrumentation, err := telemetry.NewDBInstrumentation(cfg.Telemetry, meterProvider, log)
	if err != nil {
		log.Fatal("Failed to create database instrumentation", zap.Error(err))
	}
	if err := dbInstrumentation.Register(db.DB); err != nil {
		log.Fatal("Failed to register database instrumentation", zap.Error(err))
	}
	meter := meterProvider.Meter(telemetry.TracerName)
	poolMetrics, err := telemetry.RegisterDBPoolMetrics(meter, sqlDB)
	if err != nil {
		log.Fatal("Failed to register database pool metrics", zap.Error(err))
	}
	defer func() {
		_ = poolMetrics.Unregister()
	}()
	log.Info("Database connected")

	metrics, err := business.NewMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create business metrics", zap.Error(err))
	}

	// After-commit work runs on a bounded pool
	poolConfig := scheduler.DefaultWorkerPoolConfig()
	poolConfig.Workers = cfg.Event.Workers
	poolConfig.QueueSize = cfg.Event.QueueSize
	workerPool, err := scheduler.NewWorkerPool(poolConfig, log.Named("worker_pool"))
	if err != nil {
		log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	if err := workerPool.Start(ctx); err != nil {
		log.Fatal("Failed to start worker pool", zap.Error(err))
	}

	eventBus := event.NewInMemoryEventBus(log.Named("event_bus"))
	serializer := event.NewFulfillmentSerializer()
	uow := persistence.NewUnitOfWork(db.DB, event.NewOutboxPublisher(serializer, cfg.Event.MaxRetries), log,
		persistence.WithHookRunner(workerPool),
		persistence.WithLocalPublisher(eventBus),
	)

	// Repositories
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	stockRepo := persistence.NewGormStockRepository(db.DB)
	couponRepo := persistence.NewGormCouponRepository(db.DB)
	pointRepo := persistence.NewGormPointRepository(db.DB)
	inboxRepo := persistence.NewGormInboxRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	// Application services
	gateway := payment.NewGatewayClient(cfg.Gateway, log.Named("gateway"), payment.WithCallObserver(metrics))
	orderService := apporder.NewService(orderRepo, stockRepo, couponRepo, uow, log,
		apporder.WithObserver(metrics))
	paymentService := apppayment.NewService(paymentRepo, orderRepo, stockRepo, couponRepo, orderService, uow, log,
		apppayment.WithObserver(metrics))
	orchestrator := apppayment.NewOrchestrator(paymentService, orderRepo, stockRepo, couponRepo, pointRepo, gateway, uow, log)
	reconciler := apppayment.NewReconciler(paymentService, gateway, cfg.Reconciliation.BatchSize, log.Named("reconciler"))
	reconciler.SetObserver(metrics)

	idempotencyStore, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.IsProduction()),
	).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()
	callbackService := apppayment.NewCallbackService(paymentService, gateway, idempotencyStore, log.Named("callback"))

	// Saga: PaymentReady runs once per event behind the inbox
	guard := event.NewInboxGuard(orchestrator, uow, inboxRepo, serializer, log)
	eventBus.Subscribe(guard)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	log.Info("Event handlers registered", zap.Strings("payment_saga_events", guard.EventTypes()))

	// Outbox relay
	transport, err := event.NewTransport(cfg, eventBus, log.Named("transport"))
	if err != nil {
		log.Fatal("Failed to create event transport", zap.Error(err))
	}
	relayConfig := event.DefaultRelayConfig()
	relayConfig.BatchSize = cfg.Event.BatchSize
	relayConfig.PollInterval = cfg.Event.PollInterval
	relayConfig.CleanupEnabled = cfg.Event.CleanupEnabled
	relayConfig.CleanupRetention = cfg.Event.CleanupRetention
	relayConfig.ProcessingLease = cfg.Event.ProcessingLease
	relay := event.NewOutboxRelay(outboxRepo, transport, serializer, relayConfig, log.Named("outbox_relay"))
	relay.SetObserver(metrics)
	if cfg.Event.ProcessorEnabled {
		if err := relay.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox relay", zap.Error(err))
		}
	}

	// Reconciliation of payments stuck waiting on the gateway
	var reconcileTrigger *scheduler.FixedDelayTrigger
	if cfg.Reconciliation.Enabled {
		reconcileTrigger = scheduler.NewFixedDelayTrigger(scheduler.FixedDelayConfig{
			Name:         "payment_reconciliation",
			InitialDelay: cfg.Reconciliation.InitialDelay,
			Delay:        cfg.Reconciliation.Interval,
		}, reconciler.Run, log.Named("reconciliation"))
		if err := reconcileTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start reconciliation", zap.Error(err))
		}
	}

	// HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(cfg.Telemetry.ServiceName, tracerProvider.IsEnabled()))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.SecureWithConfig(middleware.SecurityConfig{
		HSTSEnabled:           cfg.IsProduction(),
		HSTSMaxAge:            middleware.DefaultSecurityConfig().HSTSMaxAge,
		HSTSIncludeSubdomains: true,
	}))
	engine.Use(middleware.HTTPMetrics(meter, log))
	engine.Use(middleware.Profiling(profiler.IsEnabled()))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	verifier := auth.NewJWTVerifier(cfg.JWT)
	jwtConfig := middleware.DefaultJWTConfig(verifier)
	jwtConfig.Optional = !cfg.IsProduction()
	jwtConfig.Logger = log
	if !verifier.Enabled() {
		log.Warn("JWT secret not configured, identity comes from the X-USER-ID header only")
	}
	apiMiddleware := []gin.HandlerFunc{middleware.JWTAuthMiddlewareWithConfig(jwtConfig)}

	serverCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		go limiter.Run(serverCtx)
		// gateway callbacks are exempt
		apiMiddleware = append(apiMiddleware, middleware.RateLimit(limiter, middleware.CallbackPathPrefix))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	base := handler.BaseHandler{AllowHeaderIdentity: !cfg.IsProduction()}
	router.Mount(engine, router.Handlers{
		Orders:    handler.NewOrderHandler(base, orderService),
		Payments:  handler.NewPaymentHandler(base, paymentService),
		Callbacks: handler.NewCallbackHandler(callbackService),
	}, handler.NewHealthHandler(db), apiMiddleware...)
	if !cfg.IsProduction() {
		router.MountDocs(engine)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Stop taking requests, then drain background work from the outside in
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	stopBackground()
	if reconcileTrigger != nil {
		if err := reconcileTrigger.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping reconciliation", zap.Error(err))
		}
	}
	if cfg.Event.ProcessorEnabled {
		if err := relay.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping outbox relay", zap.Error(err))
		}
	}
	if err := transport.Close(); err != nil {
		log.Error("Error closing event transport", zap.Error(err))
	}
	if err := workerPool.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping worker pool", zap.Error(err))
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}

	shutdownTelemetry(log, profiler, tracerProvider, meterProvider, loggerProvider)
	log.Info("Server exited gracefully")
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdownTelemetry flushes profiles, spans, metrics and logs in that order
func shutdownTelemetry(log *zap.Logger, profiler *telemetry.Profiler, providers ...shutdowner) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()

	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	for _, p := range providers {
		if err := p.Shutdown(ctx); err != nil {
			log.Error("Error shutting down telemetry provider", zap.Error(err))
		}
	}
}
