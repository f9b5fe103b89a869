package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linem-davton/graphdraw/pkg/api"
	"github.com/linem-davton/graphdraw/pkg/config"
	"github.com/linem-davton/graphdraw/pkg/interchange"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/scheduler"
	"github.com/linem-davton/graphdraw/pkg/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "graphdraw-d: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.File.Log.Logging())
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Daemon failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx := context.Background()

	backend, err := cfg.File.Store.Open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()
	logger.Info("Store opened", "backend", backend.Name())

	mode, err := config.ResolveMode(ctx, cfg.File.Server, store.NewPreferences(backend))
	if err != nil {
		return fmt.Errorf("resolve scheduler mode: %w", err)
	}
	schedClient := scheduler.NewClient(cfg.File.Server.Endpoints, mode)
	logger.Info("Scheduler server selected", "mode", mode, "base", cfg.File.Server.Base(mode))

	schema, err := interchange.LoadValidator(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	registry := api.NewRegistry(api.RegistryConfig{
		Size:      cfg.SessionSize,
		TTL:       cfg.SessionTTL,
		Models:    store.NewModels(backend),
		Scheduler: schedClient,
		Logger:    logger,
	})
	// Flushes live sessions to the store before the backend closes.
	defer registry.Close()

	def := &defaultSession{registry: registry, logger: logger}
	if _, err := def.Get(ctx); err != nil {
		return fmt.Errorf("create default session: %w", err)
	}

	var watcher *modelWatcher
	if cfg.WatchPath != "" {
		watcher, err = newModelWatcher(cfg.WatchPath, cfg.Debounce,
			interchange.ImportOptions{Validator: schema}, def.Get, logger)
		if err != nil {
			return err
		}
		watcher.Start()
		defer watcher.Close()
	}

	srv := api.NewServer(api.Config{
		Addr:           cfg.Addr,
		Registry:       registry,
		Validator:      schedClient,
		Schema:         schema,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	if cfg.TLSCertFile != "" {
		srv.SetTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				if watcher == nil {
					logger.Info("SIGHUP ignored, no watched model file")
					continue
				}
				if err := watcher.Reload(ctx); err != nil {
					logger.Warn("Model reload failed", "path", cfg.WatchPath, "error", err)
				}
				continue
			}
			logger.Info("Shutdown initiated", "signal", sig.String())
			stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			err := srv.Stop(stopCtx)
			cancel()
			if err != nil {
				logger.Error("Server shutdown failed", "error", err)
			}
			logger.Info("Shutdown complete", "sessions", registry.Len())
			return nil
		}
	}
}
