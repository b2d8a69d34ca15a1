package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mhollis/netatmo-publisher/internal/client"
	"github.com/mhollis/netatmo-publisher/internal/config"
	"github.com/mhollis/netatmo-publisher/internal/httpapi"
	"github.com/mhollis/netatmo-publisher/internal/observability"
	"github.com/mhollis/netatmo-publisher/internal/run"
	"github.com/mhollis/netatmo-publisher/internal/scheduler"
	"github.com/mhollis/netatmo-publisher/internal/state"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var (
		store     state.Store
		statePing func() error
	)
	switch cfg.StateBackend {
	case "sqlite":
		s, err := state.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("sqlite state store", zap.Error(err))
		}
		store = s
		logger.Info("state backend: sqlite", zap.String("path", cfg.SQLitePath))
	case "memcached":
		s, err := state.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached state store", zap.Error(err))
		}
		store = s
		statePing = s.Ping
		logger.Info("state backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		store = state.NewMemoryStore()
		logger.Info("state backend: memory")
	}

	credentials, err := client.NewCredentialCache(cfg.TokenURL, cfg.TokenTimeout)
	if err != nil {
		logger.Fatal("credential cache", zap.Error(err))
	}
	fetcher, err := client.NewStationFetcher(cfg.MeasureURL, cfg.FetchTimeout)
	if err != nil {
		logger.Fatal("station fetcher", zap.Error(err))
	}

	coordinator := run.New(run.Config{
		References:  cfg.StationReferences,
		Naming:      cfg.NamingPolicy,
		MaxInFlight: cfg.MaxInFlight,
		RatePerSec:  cfg.FetchRatePerSec,
		RetryDelay:  cfg.RetryDelay,
		Epsilon:     cfg.Epsilon,
	}, credentials, fetcher, store, logger)

	handler := httpapi.NewHandler(coordinator, logger, statePing)
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpapi.NewRouter(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(cfg.PollInterval, logger)
	if err := sched.Start(ctx, func(runCtx context.Context) {
		coordinator.RunOnce(runCtx)
	}); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if err := store.Close(); err != nil {
		logger.Error("state store close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
