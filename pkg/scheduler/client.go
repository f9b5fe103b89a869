// Package scheduler talks to the external scheduling service and keeps only
// the newest answer when requests overlap.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/linem-davton/graphdraw/pkg/model"
)

// Client calls the scheduling service over HTTP. It never retries.
type Client struct {
	endpoints Endpoints
	http      *http.Client

	mu   sync.RWMutex
	mode Mode
}

// NewClient creates a client for endpoints, starting in mode.
func NewClient(endpoints Endpoints, mode Mode) *Client {
	if mode == "" {
		mode = ModeRemote
	}
	return &Client{
		endpoints: endpoints,
		mode:      mode,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// Mode returns the active server mode.
func (c *Client) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// SetMode switches between the remote and local server.
func (c *Client) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// ScheduleJobs posts m to the schedule endpoint.
func (c *Client) ScheduleJobs(ctx context.Context, m model.CombinedModel) (model.ScheduleResult, error) {
	var result model.ScheduleResult
	if err := c.post(ctx, c.endpoints.SchedulePath, m, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ValidateGraph asks the service for cycles in app. Links are sent as
// receiver->sender pairs, matching the service's graph orientation.
func (c *Client) ValidateGraph(ctx context.Context, app model.ApplicationModel, highlighted []model.TaskID) (ValidationResult, error) {
	req := validateRequest{
		Nodes:       make([]validateNode, 0, len(app.Tasks)),
		Links:       make([]validateLink, 0, len(app.Messages)),
		Highlighted: highlighted,
	}
	if req.Highlighted == nil {
		req.Highlighted = []model.TaskID{}
	}
	for _, t := range app.Tasks {
		req.Nodes = append(req.Nodes, validateNode{TaskID: t.ID})
	}
	for _, m := range app.Messages {
		req.Links = append(req.Links, validateLink{Source: m.Receiver, Target: m.Sender})
	}

	var result ValidationResult
	if err := c.post(ctx, c.endpoints.ValidatePath, req, &result); err != nil {
		return ValidationResult{}, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := c.endpoints.Base(c.Mode()) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &model.ConnectionError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &model.ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &model.HTTPError{Status: resp.StatusCode, Body: string(snippet)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
