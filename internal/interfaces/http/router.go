// Package http wires the gin router fronting the security pipeline.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tavnit/docshield/internal/config"
	"github.com/tavnit/docshield/internal/interfaces/http/handlers"
	"github.com/tavnit/docshield/internal/interfaces/http/middleware"
	"github.com/tavnit/docshield/pkg/logger"
)

// Router owns the HTTP server lifecycle.
type Router struct {
	engine *gin.Engine
	cfg    config.ServerConfig
	log    logger.Logger
	server *http.Server

	generate *handlers.GenerateHandler
	health   *handlers.HealthHandler
	stats    *handlers.StatsHandler
}

// NewRouter assembles middleware and routes.
func NewRouter(
	cfg config.ServerConfig,
	log logger.Logger,
	generate *handlers.GenerateHandler,
	health *handlers.HealthHandler,
	stats *handlers.StatsHandler,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine:   engine,
		cfg:      cfg,
		log:      log,
		generate: generate,
		health:   health,
		stats:    stats,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.AccessLog(r.log))
	r.engine.Use(middleware.Flood(r.cfg.FloodRPS, r.cfg.FloodBurst))

	r.engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Request-ID", "X-Client-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	r.engine.GET("/healthz", r.health.Healthz)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if r.cfg.EnablePprof {
		pprof.Register(r.engine)
	}

	v1 := r.engine.Group("/v1")
	{
		v1.POST("/documents/generate", r.generate.Generate)
		v1.GET("/security/stats", r.stats.Stats)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "the requested resource was not found",
		})
	})
}

// Handler exposes the engine for tests.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Start blocks serving HTTP until the listener fails or Stop is called.
func (r *Router) Start() error {
	addr := fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port)
	r.server = &http.Server{
		Addr:           addr,
		Handler:        r.engine,
		ReadTimeout:    time.Duration(r.cfg.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(r.cfg.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	r.log.Info(context.Background(), "http server starting", logger.Fields{"addr": addr})
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests.
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
