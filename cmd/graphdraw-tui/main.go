package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/linem-davton/graphdraw/pkg/config"
	"github.com/linem-davton/graphdraw/pkg/editor"
	"github.com/linem-davton/graphdraw/pkg/interchange"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/scheduler"
	"github.com/linem-davton/graphdraw/pkg/store"
	"github.com/linem-davton/graphdraw/pkg/tui"
)

const saveTimeout = 5 * time.Second

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
		fmt.Fprintf(os.Stderr, "graphdraw-tui: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "graphdraw-tui: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	ctx := context.Background()

	logger, closeLog, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	backend, err := cfg.File.Store.Open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()
	models := store.NewModels(backend)

	mode, err := config.ResolveMode(ctx, cfg.File.Server, store.NewPreferences(backend))
	if err != nil {
		return fmt.Errorf("resolve scheduler mode: %w", err)
	}
	files, err := cfg.File.Files.Open()
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}
	schema, err := interchange.LoadValidator(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	sess := editor.NewSession(uuid.NewString())
	if cfg.Seed {
		m, ok, err := models.Load(ctx, cfg.Key)
		if err != nil {
			return err
		}
		if ok {
			if err := sess.Replace(m); err != nil {
				return fmt.Errorf("stored model %q: %w", cfg.Key, err)
			}
		}
	}

	client := scheduler.NewClient(cfg.File.Server.Endpoints, mode)
	dispatcher := scheduler.NewDispatcher(client, sess.ApplySchedule, logger)
	defer dispatcher.Close()
	sess.SetScheduler(dispatcher)
	if sess.Snapshot().Schedulable() {
		_ = sess.RequestSchedule()
	}
	logger.Info("Editor started", "sessionID", sess.ID(), "key", cfg.Key, "mode", mode)

	m := tui.New(tui.Options{
		Session:   sess,
		Retrier:   dispatcher,
		Files:     files,
		Models:    models,
		Key:       cfg.Key,
		Validator: schema,
		Logger:    logger,
	})
	defer m.Close()

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run editor: %w", err)
	}

	if snapshot := sess.Snapshot(); snapshot.Schedulable() {
		saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
		defer cancel()
		if err := models.Save(saveCtx, cfg.Key, snapshot); err != nil {
			return err
		}
		logger.Info("Model saved", "key", cfg.Key)
	}
	return nil
}

func openLog(cfg Config) (*slog.Logger, func(), error) {
	if cfg.LogFile == "" {
		return logging.Discard(), func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return logging.New(f, cfg.File.Log.Logging()), func() { f.Close() }, nil
}
