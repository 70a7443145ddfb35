package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"liverun/internal/common/cache"
	"liverun/internal/runner/admission"
	"liverun/internal/runner/engine"
	"liverun/internal/runner/language"
	"liverun/internal/runner/observer"
	"liverun/internal/runner/session"
	"liverun/internal/runner/workspace"
	"liverun/pkg/utils/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/runner_server.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "runner server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	registry, err := language.NewRegistry(appCfg.Languages)
	if err != nil {
		return fmt.Errorf("init languages failed: %w", err)
	}
	eng, err := engine.NewEngine(appCfg.Engine)
	if err != nil {
		return fmt.Errorf("init engine failed: %w", err)
	}
	workspaces, err := workspace.NewManager(appCfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("init workspaces failed: %w", err)
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := observer.NewPrometheus(metrics)

	var store cache.Cache
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis failed: %w", err)
		}
		defer func() { _ = redisCache.Close() }()
		store = redisCache
	}

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	limiter := newLimiter(rootCtx, appCfg.Rate, store)

	sessions := session.NewManager(session.Config{
		Registry:      registry,
		Workspaces:    workspaces,
		Engine:        eng,
		Limits:        appCfg.Limits,
		Recorder:      recorder,
		IdleTimeout:   appCfg.Session.IdleTimeout,
		DrainGrace:    appCfg.Session.DrainGrace,
		TeardownGrace: appCfg.Session.TeardownGrace,
	})

	httpServer := buildHTTPServer(appCfg, routerDeps{
		registry: registry,
		sessions: sessions,
		limiter:  limiter,
		recorder: recorder,
		metrics:  metrics,
		cache:    store,
	})

	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "runner http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("workspace_root", workspaces.Root()),
			zap.String("limiter", appCfg.Engine.Limiter),
			zap.Int("languages", len(registry.List())),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, appCfg.Server.ShutdownTimeout)
	defer drainCancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	// Hijacked WebSocket connections are not tracked by http.Server.
	if err := sessions.Shutdown(drainCtx); err != nil {
		logger.Error(ctx, "session shutdown incomplete", zap.Error(err))
	}
	return serveErr
}

// newLimiter builds the admission limiter; the local variant needs its idle clients swept.
func newLimiter(ctx context.Context, cfg admission.Config, store cache.Cache) admission.Limiter {
	var ops cache.BasicOps
	if store != nil {
		ops = store
	}
	limiter := admission.New(cfg, ops)
	if local, ok := limiter.(*admission.LocalLimiter); ok {
		interval := cfg.Window
		if interval <= 0 {
			interval = time.Minute
		}
		local.StartSweeper(ctx, interval)
	}
	return limiter
}
