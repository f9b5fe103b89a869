package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/linem-davton/graphdraw/pkg/api"
	"github.com/linem-davton/graphdraw/pkg/editor"
	"github.com/linem-davton/graphdraw/pkg/interchange"
	"github.com/linem-davton/graphdraw/pkg/store"
)

// defaultSession is the session bound to the default storage key. It is
// recreated, seeded from the store, whenever the registry has evicted it.
type defaultSession struct {
	mu       sync.Mutex
	registry *api.Registry
	id       string
	logger   *slog.Logger
}

func (d *defaultSession) Get(ctx context.Context) (*editor.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.id != "" {
		if sess, err := d.registry.Get(d.id); err == nil {
			return sess, nil
		}
	}
	sess, err := d.registry.Create(ctx, store.DefaultKey, true)
	if err != nil {
		return nil, err
	}
	d.id = sess.ID()
	d.logger.Info("Default session ready", "sessionID", d.id)
	return sess, nil
}

// modelWatcher re-imports a model file into a session whenever the file is
// written. Bursts of events inside the debounce window cause one import.
type modelWatcher struct {
	path     string
	debounce time.Duration
	opts     interchange.ImportOptions
	target   func(ctx context.Context) (*editor.Session, error)
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

func newModelWatcher(path string, debounce time.Duration, opts interchange.ImportOptions, target func(context.Context) (*editor.Session, error), logger *slog.Logger) (*modelWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory so editors that replace the file by rename are
	// still seen.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return &modelWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		opts:     opts,
		target:   target,
		logger:   logger,
		watcher:  fsWatcher,
		stopCh:   make(chan struct{}),
	}, nil
}

func (w *modelWatcher) Start() {
	w.wg.Add(1)
	go w.loop()
	w.logger.Info("Watching model file", "path", w.path)
}

func (w *modelWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Debug("Model file changed", "path", event.Name, "op", event.Op.String())
				w.Trigger()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", "error", err)

		case <-w.stopCh:
			return
		}
	}
}

// Trigger schedules a debounced reload.
func (w *modelWatcher) Trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.Reload(context.Background()); err != nil {
			w.logger.Warn("Model reload failed", "path", w.path, "error", err)
		}
	})
}

// Reload imports the file and replaces the target session's models.
func (w *modelWatcher) Reload(ctx context.Context) error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", w.path, err)
	}
	m, err := interchange.Import(data, w.opts)
	if err != nil {
		return err
	}
	sess, err := w.target(ctx)
	if err != nil {
		return err
	}
	if err := sess.Replace(m); err != nil {
		return err
	}
	w.logger.Info("Model reloaded", "path", w.path, "sessionID", sess.ID(),
		"tasks", len(m.Application.Tasks), "nodes", len(m.Platform.Nodes))
	return nil
}

func (w *modelWatcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	close(w.stopCh)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
