// Command server exposes tenant rule sets over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/liamcoop/easyrules/internal/config"
	"github.com/liamcoop/easyrules/internal/logger"
	"github.com/liamcoop/easyrules/multitenantengine"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := NewServer(cfg, registry, logger.Logger)
	if err != nil {
		logger.Fatal("Failed to create server", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RulesDir != "" {
		tenants, err := server.engineManager.LoadDirectory(ctx, cfg.RulesDir)
		if err != nil {
			logger.Fatal("Failed to load tenants", "dir", cfg.RulesDir, "error", err)
		}
		logger.Info("Loaded tenants", "count", len(tenants), "tenants", tenants)
	}

	if cfg.Watch {
		watcher, err := multitenantengine.NewWatcher(server.engineManager, cfg.RulesDir, cfg.Debounce, logger.Logger)
		if err != nil {
			logger.Fatal("Failed to watch tenants", "dir", cfg.RulesDir, "error", err)
		}
		watcher.Start(ctx)
		defer func() {
			if err := watcher.Stop(); err != nil {
				logger.Warn("Watcher shutdown error", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		logger.Error("Logger shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
