package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shopops/automator/internal/agents"
	"github.com/shopops/automator/internal/application/engine"
	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/shared"
	"github.com/shopops/automator/internal/infrastructure/approval"
	"github.com/shopops/automator/internal/infrastructure/archive"
	"github.com/shopops/automator/internal/infrastructure/cache"
	"github.com/shopops/automator/internal/infrastructure/config"
	"github.com/shopops/automator/internal/infrastructure/escalation"
	"github.com/shopops/automator/internal/infrastructure/event"
	"github.com/shopops/automator/internal/infrastructure/gateways"
	"github.com/shopops/automator/internal/infrastructure/logger"
	"github.com/shopops/automator/internal/infrastructure/persistence"
	"github.com/shopops/automator/internal/infrastructure/providers/rest"
	"github.com/shopops/automator/internal/infrastructure/providers/sandbox"
	"github.com/shopops/automator/internal/infrastructure/ratelimit"
	"github.com/shopops/automator/internal/infrastructure/scheduler"
	"github.com/shopops/automator/internal/infrastructure/telemetry"
	"github.com/shopops/automator/internal/interfaces/http/handler"
	"github.com/shopops/automator/internal/interfaces/http/middleware"
	"github.com/shopops/automator/internal/interfaces/http/router"
)

// version is stamped at build time via -ldflags "-X main.version=..."
var version = "dev"

// sandboxSeed keeps the fake provider fleet deterministic across restarts
const sandboxSeed = 1

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Directory containing config.toml")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting shop automator",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.Int("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Initialize telemetry providers. Disabled providers are no-ops, so the
	// wiring below never branches on cfg.Telemetry.Enabled again.
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer func() {
		if err := loggerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	// Forward log entries to the collector alongside the local output
	if loggerProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: loggerProvider,
			Level:          zapcore.InfoLevel,
		})
		log = log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, otelCore)
		}))
	}

	profilerConfig := telemetry.DefaultProfilerConfig()
	profilerConfig.Enabled = cfg.Telemetry.ProfilingEnabled
	profilerConfig.ServerAddress = cfg.Telemetry.ProfilingServerAddr
	profilerConfig.ApplicationName = cfg.Telemetry.ServiceName
	profiler, err := telemetry.NewProfiler(profilerConfig, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))

	// Initialize the audit store
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			DBName:          cfg.Database.DBName,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThreshold,
		}, log)
		if err := plugin.Register(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}

	if cfg.Telemetry.Enabled {
		sqlDB, err := db.DB.DB()
		if err != nil {
			log.Fatal("Failed to get underlying sql.DB", zap.Error(err))
		}
		poolCollector, err := telemetry.NewDBPoolCollector(
			meterProvider.Meter("automator"), sqlDB,
			telemetry.DBPoolCollectorConfig{DBName: cfg.Database.DBName}, log)
		if err != nil {
			log.Warn("Failed to create database pool collector", zap.Error(err))
		} else {
			poolCollector.Start(ctx)
			defer poolCollector.Stop()
		}
	}

	history := persistence.NewGormHistoryRepository(db.DB)
	if err := history.Migrate(); err != nil {
		log.Fatal("Failed to migrate audit tables", zap.Error(err))
	}

	// Applied-plan ledger: Redis when configured, in-memory otherwise
	var ledger shared.IdempotencyStore
	if cfg.Redis.Enabled {
		ledger, err = cache.NewLedgerFactory(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cache.WithLogger(log)).Create()
		if err != nil {
			log.Fatal("Failed to create applied-plan ledger", zap.Error(err))
		}
	} else {
		log.Info("using in-memory applied-plan ledger, applied plans are forgotten on restart")
		ledger = cache.NewInMemoryLedger()
	}

	// Start event bus
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	if cfg.Telemetry.Enabled {
		engineMetrics, err := telemetry.NewEngineMetrics(meterProvider.Meter("automator"), log)
		if err != nil {
			log.Warn("Failed to create engine metrics", zap.Error(err))
		} else {
			eventBus.Subscribe(engineMetrics, engineMetrics.EventTypes()...)
		}
	}

	// Build the provider fleet behind pacing and retry
	pacer := ratelimit.NewPacer(ratelimit.Config{
		DefaultInterval: cfg.Providers.DefaultPaceInterval,
		PerProvider:     cfg.Providers.Pace,
	})
	guard := gateways.NewGuard(pacer, gateways.RetryPolicy{
		MaxAttempts:    cfg.Providers.RetryMaxAttempts,
		InitialBackoff: cfg.Providers.RetryInitialBackoff,
		MaxBackoff:     cfg.Providers.RetryMaxBackoff,
	}, log)

	fleet, err := buildGateways(&cfg.Providers, guard)
	if err != nil {
		log.Fatal("Failed to build provider gateways", zap.Error(err))
	}
	log.Info("Provider gateways ready",
		zap.String("storefront", fleet.storefront.Provider()),
		zap.Int("suppliers", len(fleet.suppliers)),
		zap.String("messaging", fleet.messaging.Provider()),
		zap.String("ad_platform", fleet.adPlatform.Provider()),
		zap.String("payment", fleet.payment.Provider()),
	)

	// Approval store and signed grants. Without a secret the grant flow is
	// off and approvals arrive with an approver name only.
	approvals := approval.NewInMemoryStore()
	var grants *approval.GrantService
	if cfg.Approval.GrantSecret != "" {
		grants = approval.NewGrantService(approval.GrantConfig{
			Secret: cfg.Approval.GrantSecret,
			Issuer: cfg.Approval.Issuer,
			TTL:    cfg.Approval.GrantTTL,
		})
		notifier := approval.NewNotifier(grants, fleet.messaging, cfg.Escalation.Contact, log)
		eventBus.Subscribe(notifier, notifier.EventTypes()...)
	} else {
		log.Warn("approval grants disabled, no approval.grant_secret configured")
	}

	escalator := escalation.NewMessagingEscalator(fleet.messaging, cfg.Escalation.Contact, log)

	// Optional S3 result archive
	var resultArchive engine.ResultArchive
	if cfg.Archive.Enabled {
		s3Archive, err := archive.NewS3Archive(&cfg.Archive, archive.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create result archive", zap.Error(err))
		}
		resultArchive = s3Archive
		log.Info("Result archive enabled", zap.String("bucket", cfg.Archive.Bucket))
	}

	// Register the agent fleet
	registry := agent.NewRegistry()
	if err := agents.Register(registry, agents.Deps{
		Storefront: fleet.storefront,
		Suppliers:  fleet.suppliers,
		Messaging:  fleet.messaging,
		AdPlatform: fleet.adPlatform,
		Payment:    fleet.payment,
		OpsContact: cfg.Escalation.Contact,
		Logger:     log,
	}); err != nil {
		log.Fatal("Failed to register agents", zap.Error(err))
	}
	log.Info("Agents registered", zap.Any("types", registry.Types()))

	// Assemble the engine
	engineSvc, err := engine.NewService(engine.Config{
		Workers:     cfg.Engine.Workers,
		PlanTTL:     cfg.Engine.PlanTTL,
		ApprovalTTL: cfg.Engine.ApprovalTTL,
	}, engine.Deps{
		Registry:  registry,
		Approvals: approvals,
		Ledger:    ledger,
		History:   history,
		Bus:       eventBus,
		Escalator: escalator,
		Archive:   resultArchive,
		Logger:    log,
	})
	if err != nil {
		log.Fatal("Failed to create engine", zap.Error(err))
	}

	// Recurring plan submissions (if enabled)
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(&cfg.Scheduler, engineSvc, log)
		if err != nil {
			log.Fatal("Failed to create scheduler", zap.Error(err))
		}
		if err := sched.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				log.Error("Error stopping scheduler", zap.Error(err))
			}
		}()
		log.Info("Scheduler started", zap.Int("jobs", len(cfg.Scheduler.Jobs)))
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ginEngine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := ginEngine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Root middleware: recovery, request logging and the body cap apply to
	// everything, probes included
	ginEngine.Use(logger.Recovery(log))
	ginEngine.Use(logger.GinMiddleware(log))
	ginEngine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodyBytes))

	// Health check endpoint, outside API versioning and outside tracing
	ginEngine.GET("/healthz", healthHandler(db))

	// The API group carries the observability chain: the tracing middleware
	// opens the span, the injector and error marker enrich it while it is
	// still recording.
	r := router.NewRouter(ginEngine, router.WithAPIVersion("v1"))
	r.Use(
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.TracingAttributeInjector(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: meterProvider,
			ServiceName:   cfg.Telemetry.ServiceName,
			Enabled:       cfg.Telemetry.Enabled,
		}),
		middleware.ProfilingWithConfig(middleware.ProfilingConfig{
			Enabled: cfg.Telemetry.ProfilingEnabled,
		}),
	)

	r.Register(handler.NewAutomationHandler(engineSvc, grants))
	r.Register(handler.NewSystemHandler(version))
	if sched != nil {
		r.Register(handler.NewSchedulerHandler(sched))
	}
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.App.Port),
		Handler:        ginEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// gatewayFleet is the guarded provider set shared by every agent
type gatewayFleet struct {
	storefront gateway.Storefront
	suppliers  []gateway.Supplier
	messaging  gateway.Messaging
	adPlatform gateway.AdPlatform
	payment    gateway.Payment
}

// buildGateways assembles one gateway per family from the provider
// configuration and wraps each in the guard. Families without configuration
// fall back to the sandbox fleet, so a bare config still serves the full
// plan lifecycle against fake providers.
func buildGateways(cfg *config.ProvidersConfig, guard *gateways.Guard) (*gatewayFleet, error) {
	box := sandbox.NewFleet(sandboxSeed)
	fleet := &gatewayFleet{}

	switch cfg.Storefront.Kind {
	case "rest":
		sf, err := rest.NewStorefront(restConfig(cfg.Storefront))
		if err != nil {
			return nil, fmt.Errorf("storefront: %w", err)
		}
		fleet.storefront = sf
	case "sandbox", "":
		fleet.storefront = box.Storefront
	default:
		return nil, fmt.Errorf("storefront: unknown provider kind %q", cfg.Storefront.Kind)
	}

	if len(cfg.Suppliers) == 0 {
		fleet.suppliers = []gateway.Supplier{gateways.WrapSupplier(box.Supplier, guard)}
	}
	for i, sc := range cfg.Suppliers {
		var sup gateway.Supplier
		switch sc.Kind {
		case "rest":
			s, err := rest.NewSupplier(restConfig(sc))
			if err != nil {
				return nil, fmt.Errorf("supplier %d: %w", i, err)
			}
			sup = s
		case "sandbox", "":
			name := sc.Name
			if name == "" {
				name = fmt.Sprintf("sandbox-supply-%d", i+1)
			}
			sup = sandbox.NewSupplier(name, sandboxSeed+int64(i)+1)
		default:
			return nil, fmt.Errorf("supplier %d: unknown provider kind %q", i, sc.Kind)
		}
		fleet.suppliers = append(fleet.suppliers, gateways.WrapSupplier(sup, guard))
	}

	switch cfg.Messaging.Kind {
	case "rest":
		m, err := rest.NewMessaging(restConfig(cfg.Messaging))
		if err != nil {
			return nil, fmt.Errorf("messaging: %w", err)
		}
		fleet.messaging = m
	case "sandbox", "":
		fleet.messaging = box.Messaging
	default:
		return nil, fmt.Errorf("messaging: unknown provider kind %q", cfg.Messaging.Kind)
	}

	switch cfg.AdPlatform.Kind {
	case "rest":
		ap, err := rest.NewAdPlatform(restConfig(cfg.AdPlatform))
		if err != nil {
			return nil, fmt.Errorf("ad platform: %w", err)
		}
		fleet.adPlatform = ap
	case "sandbox", "":
		fleet.adPlatform = box.AdPlatform
	default:
		return nil, fmt.Errorf("ad platform: unknown provider kind %q", cfg.AdPlatform.Kind)
	}

	switch cfg.Payment.Kind {
	case "rest":
		p, err := rest.NewPayment(restConfig(cfg.Payment))
		if err != nil {
			return nil, fmt.Errorf("payment: %w", err)
		}
		fleet.payment = p
	case "sandbox", "":
		fleet.payment = box.Payment
	default:
		return nil, fmt.Errorf("payment: unknown provider kind %q", cfg.Payment.Kind)
	}

	fleet.storefront = gateways.WrapStorefront(fleet.storefront, guard)
	fleet.messaging = gateways.WrapMessaging(fleet.messaging, guard)
	fleet.adPlatform = gateways.WrapAdPlatform(fleet.adPlatform, guard)
	fleet.payment = gateways.WrapPayment(fleet.payment, guard)
	return fleet, nil
}

func restConfig(pc config.ProviderConfig) rest.Config {
	return rest.Config{
		Name:    pc.Name,
		BaseURL: pc.BaseURL,
		Token:   pc.Token,
		Timeout: pc.Timeout,
	}
}

// healthHandler answers liveness probes; unhealthy means the audit store is
// unreachable
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(c.Request.Context()); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
