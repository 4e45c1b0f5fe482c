package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tavnit/docshield/internal/audit"
	"github.com/tavnit/docshield/internal/config"
	httpiface "github.com/tavnit/docshield/internal/interfaces/http"
	"github.com/tavnit/docshield/internal/interfaces/http/handlers"
	"github.com/tavnit/docshield/internal/memory"
	"github.com/tavnit/docshield/internal/monitoring"
	"github.com/tavnit/docshield/internal/ratelimit"
	"github.com/tavnit/docshield/internal/security"
	"github.com/tavnit/docshield/pkg/clock"
	"github.com/tavnit/docshield/pkg/logger"
)

var version = "dev"

func main() {
	startupLogger, err := monitoring.NewZapLogger(monitoring.LogConfig{Level: "info"})
	if err != nil {
		log.Fatalf("failed to create startup logger: %v", err)
	}

	loader := config.NewLoader(startupLogger)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	ctx := context.Background()

	tracing, err := monitoring.NewTracingManager(cfg.Tracing, appLogger)
	if err != nil {
		appLogger.Error(ctx, "failed to initialize tracing", err)
		return
	}

	clk := clock.NewSystem()

	trail, err := audit.NewLogger(cfg.Audit, clk, appLogger)
	if err != nil {
		appLogger.Error(ctx, "failed to open audit trail", err)
		return
	}

	paths, err := security.NewFSPathSanitizer(cfg.Security.AllowedRoots)
	if err != nil {
		appLogger.Error(ctx, "failed to configure path sanitizer", err)
		return
	}

	var verifier security.TemplateVerifier
	if cfg.Security.ManifestPath != "" {
		verifier, err = security.NewManifestVerifier(
			cfg.Security.ManifestPath,
			time.Duration(cfg.Security.VerifierCacheTTL)*time.Second,
		)
		if err != nil {
			appLogger.Error(ctx, "failed to load template manifest", err)
			return
		}
	}

	var pii security.PIIHandler
	if cfg.Security.RedactPII {
		pii = security.NewRegexPIIHandler()
	}

	metrics := monitoring.NewMetrics(nil)

	manager, err := security.NewManager(security.Deps{
		Limiter:         ratelimit.New(cfg.RateLimit, clk),
		Memory:          memory.New(cfg.Memory, clk),
		SanitizerConfig: cfg.Sanitizer,
		Trail:           trail,
		Paths:           paths,
		Verifier:        verifier,
		PII:             pii,
		Logger:          appLogger,
		Metrics:         metrics,
		Tracing:         tracing,
		Clock:           clk,
	})
	if err != nil {
		appLogger.Error(ctx, "failed to assemble security pipeline", err)
		return
	}

	loader.OnSanitizerChange(func(c config.Config) {
		manager.UpdateSanitizerConfig(c.Sanitizer)
		appLogger.Info(ctx, "sanitizer configuration applied", logger.Fields{
			"detect_homographs": c.Sanitizer.DetectHomographs,
		})
	})

	router := httpiface.NewRouter(
		cfg.Server,
		appLogger,
		handlers.NewGenerateHandler(manager, appLogger),
		handlers.NewHealthHandler(version),
		handlers.NewStatsHandler(manager),
	)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader.Watch(runCtx)

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(router.Start)

	// Daily retention sweep over the audit archives.
	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				removed, err := trail.Cleanup()
				if err != nil {
					appLogger.Error(gCtx, "audit retention sweep failed", err)
					continue
				}
				if removed > 0 {
					appLogger.Info(gCtx, "audit archives removed", logger.Fields{"count": removed})
				}
			}
		}
	})

	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info(ctx, "shutting down")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
		)
		defer cancel()

		if err := router.Stop(shutdownCtx); err != nil {
			appLogger.Error(ctx, "http server shutdown failed", err)
		}
		if err := trail.Close(); err != nil {
			appLogger.Error(ctx, "audit trail close failed", err)
		}
		return tracing.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error(ctx, "service exited with error", err)
	}
}
