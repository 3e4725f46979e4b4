package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/config"
	"github.com/bloodlink/bloodlink/internal/domain/inbox"
	"github.com/bloodlink/bloodlink/internal/domain/labrange"
	"github.com/bloodlink/bloodlink/internal/domain/patient"
	"github.com/bloodlink/bloodlink/internal/domain/responsibility"
	"github.com/bloodlink/bloodlink/internal/domain/staff"
	"github.com/bloodlink/bloodlink/internal/domain/workflow"
	"github.com/bloodlink/bloodlink/internal/platform/audit"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/internal/platform/cache"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/internal/platform/events"
	"github.com/bloodlink/bloodlink/internal/platform/middleware"
	"github.com/bloodlink/bloodlink/internal/platform/notification"
	"github.com/bloodlink/bloodlink/internal/platform/reporting"
	"github.com/bloodlink/bloodlink/internal/platform/telemetry"
	"github.com/bloodlink/bloodlink/internal/platform/websocket"
)

const auditBuffer = 1024

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// authMiddleware picks dev header auth or JWT validation.
func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	return rl
}

// newKV returns redis when configured and reachable, otherwise a no-op
// cache. A cache outage never blocks startup.
func newKV(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.KV, func()) {
	if !cfg.CacheEnabled() {
		return cache.NopKV{}, func() {}
	}
	client, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid REDIS_URL, caching disabled")
		return cache.NopKV{}, func() {}
	}
	kv := cache.NewRedisKV(client)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := kv.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable at startup, continuing")
	} else {
		logger.Info().Msg("connected to redis")
	}
	return kv, func() { _ = client.Close() }
}

func newPublisher(cfg *config.Config) events.Publisher {
	if !cfg.EventsEnabled() {
		return events.NopPublisher{}
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}

// services is the wired application graph.
type services struct {
	staff     *staff.Service
	patients  *patient.Service
	registry  *responsibility.Registry
	inbox     *inbox.Service
	engine    *workflow.Engine
	reports   *reporting.Service
	labRanges *labrange.Service
}

func buildServices(pool *pgxpool.Pool, cfg *config.Config, kv cache.KV, pub events.Publisher,
	hub *websocket.Hub, auditStore audit.Store, tp *telemetry.TelemetryProvider, logger zerolog.Logger) (*services, error) {
	policy, err := workflow.ParsePolicy(cfg.WorkflowPolicy)
	if err != nil {
		return nil, err
	}

	patientRepo := patient.NewRepoPG(pool)
	labRepo := patient.NewLabTestRepoPG(pool)
	eventRepo := patient.NewEventRepoPG(pool)

	staffSvc := staff.NewService(staff.NewRepoPG(pool))
	registry := responsibility.NewRegistry(responsibility.NewRepoPG(pool), staffSvc, patientRepo, tp, logger)
	patientSvc := patient.NewService(patientRepo, labRepo, eventRepo, registry, kv, cfg.PatientCacheTTL, logger)
	inboxSvc := inbox.NewService(inbox.NewRepoPG(pool), staffSvc, hub, logger)
	dispatcher := notification.NewDispatcher(registry, inboxSvc, tp, logger)

	engine := workflow.NewEngine(workflow.Deps{
		Tx:        db.PoolTxRunner{Pool: pool},
		Patients:  patientRepo,
		LabTests:  labRepo,
		Events:    eventRepo,
		Policy:    policy,
		Notifier:  dispatcher,
		Publisher: pub,
		Push:      hub,
		Cache:     patientSvc,
		Metrics:   tp,
		Logger:    logger,
	})

	return &services{
		staff:     staffSvc,
		patients:  patientSvc,
		registry:  registry,
		inbox:     inboxSvc,
		engine:    engine,
		reports:   reporting.NewService(reporting.NewStorePG(pool), auditStore),
		labRanges: labrange.NewService(labrange.NewRepoPG(pool), logger),
	}, nil
}

// newCLIPatientService wires the patient service for offline commands:
// no cache and no responsibility lookups beyond the database.
func newCLIPatientService(cfg *config.Config, h *poolHandle) *patient.Service {
	logger := newLogger(cfg.Env)
	patientRepo := patient.NewRepoPG(h.Pool)
	staffSvc := staff.NewService(staff.NewRepoPG(h.Pool))
	registry := responsibility.NewRegistry(responsibility.NewRepoPG(h.Pool), staffSvc, patientRepo, nil, logger)
	return patient.NewService(patientRepo, patient.NewLabTestRepoPG(h.Pool), patient.NewEventRepoPG(h.Pool),
		registry, cache.NopKV{}, 0, logger)
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger = newLogger(cfg.Env).With().Str("service", "bloodlink").Logger()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    "bloodlink",
		Environment:    cfg.Env,
		MetricsEnabled: telemetry.BoolPtr(cfg.MetricsEnabled),
	})
	tp.RegisterDBPool(func() (int32, int32, int32) {
		s := pool.Stat()
		return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
	})

	kv, closeKV := newKV(ctx, cfg, logger)
	defer closeKV()

	pub := newPublisher(cfg)
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Error().Err(err).Msg("close event publisher")
		}
	}()

	hub := websocket.NewHub(logger)
	auditStore := audit.NewStorePG(pool)
	recorder := audit.NewRecorder(auditStore, auditBuffer, tp, logger)

	svcs, err := buildServices(pool, cfg, kv, pub, hub, auditStore, tp, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire services")
	}
	logger.Info().Str("policy", svcs.engine.Policy().Name()).Msg("workflow policy loaded")

	e := newEcho(cfg, pool, kv, hub, recorder, svcs, tp, logger)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		logger.Info().Str("addr", addr).Str("auth", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("audit flush incomplete")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newEcho(cfg *config.Config, pool *pgxpool.Pool, kv cache.KV, hub *websocket.Hub, sink audit.Sink,
	svcs *services, tp *telemetry.TelemetryProvider, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Dev-Email", "X-Dev-Role"},
	}))
	e.Use(middleware.BodyLimit("1M", "10M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(tp.MetricsMiddleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, db.Check{Name: "redis", Ping: kv.Ping}))
	if cfg.MetricsEnabled {
		e.GET("/metrics", tp.PrometheusHandler())
	}

	authMW := authMiddleware(cfg)

	api := e.Group("/api/v1", authMW, audit.Middleware(sink))
	api.Use(middleware.RateLimit(rateLimitConfig(cfg)))

	staff.NewHandler(svcs.staff).RegisterRoutes(api)
	patient.NewHandler(svcs.patients).RegisterRoutes(api)
	responsibility.NewHandler(svcs.registry).RegisterRoutes(api)
	inbox.NewHandler(svcs.inbox).RegisterRoutes(api)
	workflow.NewHandler(svcs.engine).RegisterRoutes(api)
	reporting.NewHandler(svcs.reports).RegisterRoutes(api)
	labrange.NewHandler(svcs.labRanges).RegisterRoutes(api)

	websocket.NewWebSocketHandler(hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""), authMW)

	return e
}
