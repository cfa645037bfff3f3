// Package api assembles the HTTP router of the incident service.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/2001118301/bullying-detection-system/internal/api/handler"
)

// Options controls the cross-cutting middleware of the router.
type Options struct {
	CORSOrigins    []string
	RateLimitRPS   int
	MaxUploadBytes int64
	FrontendDir    string
}

// Handlers are the route owners mounted by NewRouter.
type Handlers struct {
	Auth     *handler.AuthHandler
	Reports  *handler.ReportHandler
	Ledger   *handler.LedgerHandler
	Evidence *handler.EvidenceHandler
}

// NewRouter builds the Gin engine. Routes are served under /api/v1 and,
// for the bundled frontend, at their original flat paths. ctx bounds
// background work started by middleware.
func NewRouter(ctx context.Context, opts Options, h Handlers, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))

	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	if opts.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = opts.MaxUploadBytes
		limit := opts.MaxUploadBytes
		router.Use(func(c *gin.Context) {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
			c.Next()
		})
	}

	if opts.RateLimitRPS > 0 {
		router.Use(handler.RateLimiter(ctx, opts.RateLimitRPS, opts.RateLimitRPS*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", h.Ledger.Health)
	router.GET("/readyz", h.Ledger.Ready)
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	h.Auth.Register(v1)
	h.Reports.Register(v1)
	h.Ledger.Register(v1)

	root := &router.RouterGroup
	h.Auth.Register(root)
	h.Reports.RegisterCompat(root)
	h.Evidence.Register(root)

	if opts.FrontendDir != "" {
		router.Static("/frontend", opts.FrontendDir)
	}
	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
