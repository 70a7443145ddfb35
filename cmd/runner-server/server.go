package main

import (
	"context"
	"net/http"
	"time"

	"liverun/internal/common/cache"
	"liverun/internal/common/http/middleware"
	"liverun/internal/runner/admission"
	"liverun/internal/runner/language"
	"liverun/internal/runner/observer"
	"liverun/internal/runner/session"
	"liverun/internal/runner/transport"
	pkgerrors "liverun/pkg/errors"
	"liverun/pkg/utils/logger"
	"liverun/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const readinessTimeout = time.Second

type routerDeps struct {
	registry *language.Registry
	sessions *session.Manager
	limiter  admission.Limiter
	recorder observer.Recorder
	metrics  *prometheus.Registry
	// cache is nil when the rate limit is kept in process.
	cache cache.Cache
}

func buildHTTPServer(cfg *AppConfig, deps routerDeps) *http.Server {
	return &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        buildRouter(cfg, deps),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
}

func buildRouter(cfg *AppConfig, deps routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceContextMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORS))
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/readyz", readiness(deps.cache))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.metrics, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	api.GET("/languages", transport.Languages(deps.registry))

	ws := transport.NewHandler(cfg.WebSocket, deps.sessions)
	router.GET("/ws", admission.Middleware(deps.limiter, deps.recorder), ws.Serve)

	router.NoRoute(func(c *gin.Context) { response.NotFound(c, "route not found") })
	return router
}

func readiness(store cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.Status(http.StatusOK)
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			response.Error(c, pkgerrors.Wrap(err, pkgerrors.ServiceUnavailable))
			return
		}
		c.Status(http.StatusOK)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
