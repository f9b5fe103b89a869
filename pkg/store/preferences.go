package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ServerKey holds the selected scheduler mode.
const ServerKey = "server"

// Preferences keeps small editor settings next to the model.
type Preferences struct {
	backend Backend
}

// NewPreferences wraps b.
func NewPreferences(b Backend) *Preferences {
	return &Preferences{backend: b}
}

// SaveServerMode records the scheduler mode ("remote" or "local").
func (p *Preferences) SaveServerMode(ctx context.Context, mode string) error {
	doc, err := json.Marshal(mode)
	if err != nil {
		return err
	}
	if err := p.backend.Put(ctx, ServerKey, doc); err != nil {
		return fmt.Errorf("save server mode: %w", err)
	}
	return nil
}

// ServerMode returns the recorded mode, or fallback when none is stored.
func (p *Preferences) ServerMode(ctx context.Context, fallback string) (string, error) {
	doc, ok, err := p.backend.Get(ctx, ServerKey)
	if err != nil {
		return fallback, fmt.Errorf("load server mode: %w", err)
	}
	if !ok {
		return fallback, nil
	}
	var mode string
	if err := json.Unmarshal(doc, &mode); err != nil || mode == "" {
		return fallback, nil
	}
	return mode, nil
}
