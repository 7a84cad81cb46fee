package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ZanzyTHEbar/posture-risk/internal/analysis"
	"github.com/ZanzyTHEbar/posture-risk/internal/cache"
	"github.com/ZanzyTHEbar/posture-risk/internal/config"
	apperrors "github.com/ZanzyTHEbar/posture-risk/internal/errors"
	"github.com/ZanzyTHEbar/posture-risk/internal/middleware"
	"github.com/ZanzyTHEbar/posture-risk/internal/monitoring"
	"github.com/ZanzyTHEbar/posture-risk/internal/pipeline"
	"github.com/ZanzyTHEbar/posture-risk/internal/ratelimit"
	"github.com/ZanzyTHEbar/posture-risk/internal/resilience"
	"github.com/ZanzyTHEbar/posture-risk/internal/security"
)

// server holds everything the handlers need.
type server struct {
	cfg         *config.Config
	pipeline    *pipeline.Pipeline
	scorer      *analysis.Scorer
	metrics     *monitoring.Metrics
	logger      *monitoring.Logger
	tracer      *monitoring.Tracer
	cache       *cache.Cache
	compression *middleware.Compression
	security    security.Config
	origins     []string

	// Optional; nil disables the feature.
	limiter      *ratelimit.RateLimiter
	dependencies *resilience.DegradationManager
	alerts       *monitoring.AlertManager
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", monitoring.RequestIDHeader},
		ExposeHeaders: []string{monitoring.RequestIDHeader, "X-Trace-ID", "X-Cache", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}

	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cfg
}

func setupRouter(s *server) *gin.Engine {
	r := gin.New()

	r.Use(apperrors.RecoveryHandler())
	r.Use(apperrors.ErrorHandler())
	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.TracingMiddleware(s.tracer))
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.logger))
	r.Use(security.SecurityHeadersMiddleware(s.security.EnableHSTS))
	r.Use(cors.New(corsConfig(s.origins)))
	r.Use(s.compression.Handler())
	if s.limiter != nil {
		r.Use(s.limiter.IPRateLimitMiddleware())
	}

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/config", s.handleConfig)
	if s.limiter != nil {
		r.GET("/ratelimit/status", s.limiter.HandleRateLimitStatus())
	}

	process := r.Group("/process")
	process.Use(security.RequireJSON(), s.security.BodyLimit(), s.security.Timeout())
	{
		process.POST("/tensor", s.handleTensor)
		process.POST("/batch", s.handleBatch)
		process.POST("/risk", s.cache.Middleware(s.metrics, s.logger, s.recordCachedAssessment), s.handleRisk)
		process.POST("/image", s.handleImage)
		process.POST("/upload", s.handleUpload)
	}
	// Video uploads are multipart, so this route skips the JSON checks.
	r.POST("/process/video", s.handleVideo)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
