package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/linem-davton/graphdraw/pkg/editor"
	"github.com/linem-davton/graphdraw/pkg/metrics"
	"github.com/linem-davton/graphdraw/pkg/model"
	"github.com/linem-davton/graphdraw/pkg/scheduler"
	"github.com/linem-davton/graphdraw/pkg/store"
)

// ErrSessionNotFound is returned for unknown or evicted session ids.
var ErrSessionNotFound = errors.New("session not found")

const (
	defaultCacheSize = 128
	defaultTTL       = 30 * time.Minute
	saveTimeout      = 5 * time.Second
)

// RegistryConfig configures the session cache.
type RegistryConfig struct {
	Size int
	TTL  time.Duration
	// Models receives auto-saves and evicted sessions. Only sessions whose
	// models are both non-empty are written. Nil disables storage.
	Models store.ModelStore
	// Scheduler is shared by every session's dispatcher. Nil disables
	// scheduling.
	Scheduler scheduler.JobScheduler
	Logger    *slog.Logger
}

type entry struct {
	session    *editor.Session
	dispatcher *scheduler.Dispatcher
	key        string
	stop       func()
}

// Registry holds the live editing sessions in a bounded, expiring cache.
type Registry struct {
	cache     *expirable.LRU[string, *entry]
	models    store.ModelStore
	scheduler scheduler.JobScheduler
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Size <= 0 {
		cfg.Size = defaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Registry{
		models:    cfg.Models,
		scheduler: cfg.Scheduler,
		logger:    cfg.Logger,
	}
	r.cache = expirable.NewLRU[string, *entry](cfg.Size, r.evicted, cfg.TTL)
	return r
}

// Create starts a session bound to the storage key. With seed set, the
// model stored under key is loaded first when present.
func (r *Registry) Create(ctx context.Context, key string, seed bool) (*editor.Session, error) {
	if key == "" {
		key = store.DefaultKey
	}
	sess := editor.NewSession(uuid.NewString())
	e := &entry{session: sess, key: key}

	if seed && r.models != nil {
		m, ok, err := r.models.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := sess.Replace(m); err != nil {
				return nil, err
			}
		}
	}

	if r.scheduler != nil {
		e.dispatcher = scheduler.NewDispatcher(r.scheduler, sess.ApplySchedule, r.logger.With("sessionID", sess.ID()))
		sess.SetScheduler(e.dispatcher)
		if seed && sess.Snapshot().Schedulable() {
			sess.RequestSchedule()
		}
	}
	e.stop = sess.Subscribe(func(c editor.Change) { r.autosave(e, c) })

	r.cache.Add(sess.ID(), e)
	metrics.SessionsActive.Inc()
	r.logger.Info("Session created", "sessionID", sess.ID(), "key", key, "seeded", seed)
	return sess, nil
}

// Get returns the session with id and renews its expiry.
func (r *Registry) Get(id string) (*editor.Session, error) {
	e, ok := r.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	r.cache.Add(id, e)
	return e.session, nil
}

// Retry re-issues the last scheduling request of session id.
func (r *Registry) Retry(ctx context.Context, id string) error {
	e, ok := r.cache.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	if e.dispatcher == nil {
		return e.session.RequestSchedule()
	}
	if err := e.dispatcher.Retry(ctx); err != nil {
		if errors.Is(err, scheduler.ErrNothingToRetry) {
			return e.session.RequestSchedule()
		}
		return err
	}
	return nil
}

// Remove evicts session id, saving it first when both models are non-empty.
func (r *Registry) Remove(id string) bool {
	return r.cache.Remove(id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int { return r.cache.Len() }

// Close evicts every session. Sessions with both models non-empty are saved.
func (r *Registry) Close() {
	r.cache.Purge()
}

func (r *Registry) autosave(e *entry, c editor.Change) {
	switch c.Kind {
	case editor.ChangeTopology, editor.ChangeField, editor.ChangeReplace:
	default:
		return
	}
	snapshot := e.session.Snapshot()
	if !snapshot.Schedulable() {
		return
	}
	r.save(e.key, e.session.ID(), snapshot)
}

func (r *Registry) evicted(id string, e *entry) {
	metrics.SessionsActive.Dec()
	if e.stop != nil {
		e.stop()
	}
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
	if snapshot := e.session.Snapshot(); snapshot.Schedulable() {
		r.save(e.key, id, snapshot)
	}
	r.logger.Info("Session evicted", "sessionID", id, "key", e.key)
}

func (r *Registry) save(key, id string, m model.CombinedModel) {
	if r.models == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := r.models.Save(ctx, key, m); err != nil {
		r.logger.Warn("Failed to save session", "sessionID", id, "key", key, "error", err)
	}
}
