// Package store is the keyed "local storage" of graphdraw: JSON documents
// saved under a key, last write wins, no versioning.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linem-davton/graphdraw/pkg/metrics"
	"github.com/linem-davton/graphdraw/pkg/model"
)

// DefaultKey is where the editor keeps its working model.
const DefaultKey = "model"

// Backend stores opaque JSON documents by key.
type Backend interface {
	// Name labels the backend in metrics and logs.
	Name() string
	Put(ctx context.Context, key string, doc []byte) error
	// Get reports ok=false when key has never been written.
	Get(ctx context.Context, key string) (doc []byte, ok bool, err error)
	Close() error
}

// ModelStore saves and loads combined models by key.
type ModelStore interface {
	Save(ctx context.Context, key string, m model.CombinedModel) error
	Load(ctx context.Context, key string) (model.CombinedModel, bool, error)
}

// Models adapts a Backend to ModelStore.
type Models struct {
	backend Backend
}

// NewModels wraps b.
func NewModels(b Backend) *Models {
	return &Models{backend: b}
}

// Backend returns the wrapped backend.
func (s *Models) Backend() Backend { return s.backend }

// Save encodes m and writes it under key.
func (s *Models) Save(ctx context.Context, key string, m model.CombinedModel) error {
	if err := checkKey(key); err != nil {
		return err
	}
	doc, err := json.Marshal(m.Clone())
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	err = s.backend.Put(ctx, key, doc)
	metrics.StoreOperations.WithLabelValues(s.backend.Name(), "save", metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	return nil
}

// Load reads the model stored under key. A missing key is not an error.
func (s *Models) Load(ctx context.Context, key string) (model.CombinedModel, bool, error) {
	if err := checkKey(key); err != nil {
		return model.CombinedModel{}, false, err
	}
	doc, ok, err := s.backend.Get(ctx, key)
	metrics.StoreOperations.WithLabelValues(s.backend.Name(), "load", metrics.Result(err)).Inc()
	if err != nil {
		return model.CombinedModel{}, false, fmt.Errorf("load %q: %w", key, err)
	}
	if !ok {
		return model.CombinedModel{}, false, nil
	}
	var m model.CombinedModel
	if err := json.Unmarshal(doc, &m); err != nil {
		return model.CombinedModel{}, false, fmt.Errorf("%w: stored model %q: %v", model.ErrParse, key, err)
	}
	return m.Clone(), true, nil
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("store key is required")
	}
	return nil
}
