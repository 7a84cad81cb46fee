package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/posture-risk/internal/analysis"
	"github.com/ZanzyTHEbar/posture-risk/internal/cache"
	"github.com/ZanzyTHEbar/posture-risk/internal/config"
	apperrors "github.com/ZanzyTHEbar/posture-risk/internal/errors"
	"github.com/ZanzyTHEbar/posture-risk/internal/middleware"
	"github.com/ZanzyTHEbar/posture-risk/internal/monitoring"
	"github.com/ZanzyTHEbar/posture-risk/internal/pipeline"
	"github.com/ZanzyTHEbar/posture-risk/internal/pose"
	"github.com/ZanzyTHEbar/posture-risk/internal/ratelimit"
	"github.com/ZanzyTHEbar/posture-risk/internal/resilience"
	"github.com/ZanzyTHEbar/posture-risk/internal/security"
)

const (
	serviceName    = "posture-risk"
	serviceVersion = "1.0.0"
)

func main() {
	env, err := config.LoadEnv(".env")
	if err != nil {
		slog.Error("Failed to load .env", "error", err)
		os.Exit(1)
	}

	appLogger := monitoring.NewLogger(env.LogLevel)
	slog.SetDefault(appLogger.Logger)

	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}

	cfg, err := config.Load(env.ConfigPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", env.ConfigPath, "error", err)
		os.Exit(1)
	}
	for _, w := range cfg.Warnings {
		appLogger.ConfigLogger(w.Field, w.Detail)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	appMetrics := monitoring.NewMetrics()

	redisClient, err := ratelimit.NewRedisClient(ctx, env.RedisAddr, env.RedisPassword, env.RedisDB)
	if err != nil {
		slog.Warn("Redis unavailable, continuing with in-memory rate limiting", "error", err)
	}

	limiterConfig := ratelimit.DefaultConfig()
	limiterConfig.IPLimit = env.RateLimit
	limiter := ratelimit.NewRateLimiter(redisClient, limiterConfig, appMetrics)

	deps := resilience.NewDegradationManager(resilience.DefaultDegradationConfig())
	if redisClient.IsEnabled() {
		deps.RegisterService("redis", redisClient.HealthCheck)
		go deps.StartHealthChecks(ctx)
	}

	alerts := monitoring.NewAlertManager(appMetrics, appLogger, 30*time.Second)
	for _, rule := range monitoring.DefaultAlertRules() {
		alerts.AddRule(rule)
	}
	alerts.AddNotifier(monitoring.NewLogNotifier(appLogger))
	go alerts.Start(ctx)

	go monitoring.NewRuntimeSampler(appMetrics, appLogger, 15*time.Second).Run(ctx)

	srv, err := newServer(cfg, env, appMetrics, appLogger)
	if err != nil {
		slog.Error("Failed to initialize scorer", "error", err)
		os.Exit(1)
	}
	srv.limiter = limiter
	srv.dependencies = deps
	srv.alerts = alerts

	httpServer := &http.Server{
		Addr:              ":" + env.Port,
		Handler:           setupRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server",
			"port", env.Port,
			"model", cfg.Model.Name,
			"confidence_threshold", cfg.Decoder.ConfidenceThreshold,
			"batch_workers", env.BatchWorkers)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	stop()
	limiter.Close()
	srv.cache.Close()
	apperrors.SafeClose(redisClient, "redis")

	slog.Info("Server exited")
}

// newServer builds the processing components from the loaded configuration.
// Rate limiting, dependency health and alerting are optional and set by the
// caller.
func newServer(cfg *config.Config, env config.Server, metrics *monitoring.Metrics, logger *monitoring.Logger) (*server, error) {
	scorer, err := analysis.NewScorer(cfg.Scoring)
	if err != nil {
		return nil, err
	}

	return &server{
		cfg:         cfg,
		pipeline:    pipeline.New(pose.NewDecoder(cfg.Decoder), pipeline.WithWorkers(env.BatchWorkers)),
		scorer:      scorer,
		metrics:     metrics,
		logger:      logger,
		tracer:      monitoring.NewTracer(serviceName, logger),
		cache:       cache.NewCache(env.CacheTTL, 5*time.Minute),
		compression: middleware.NewCompression(middleware.DefaultCompressionConfig()),
		security:    security.DefaultConfig(),
		origins:     env.AllowedOrigins,
	}, nil
}
