// Package client is the Go SDK for the graphdraw-d HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/linem-davton/graphdraw/pkg/api"
	"github.com/linem-davton/graphdraw/pkg/generator"
	"github.com/linem-davton/graphdraw/pkg/model"
)

// DefaultEndpoint is where graphdraw-d listens by default.
const DefaultEndpoint = "http://127.0.0.1:8090"

// Client is the graphdraw SDK client.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a new graphdraw client.
// endpoint defaults to DefaultEndpoint if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Endpoint returns the daemon base URL.
func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) sessionPath(id string, parts ...string) string {
	p := "/v1/sessions/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// do sends a JSON request and decodes a JSON answer into out. Non-2xx
// answers are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw, err = io.ReadAll(resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// CreateSession starts a session bound to storage key. With seed set it
// starts from the stored model.
func (c *Client) CreateSession(ctx context.Context, key string, seed bool) (api.SessionState, error) {
	var st api.SessionState
	err := c.do(ctx, http.MethodPost, "/v1/sessions", map[string]any{"key": key, "seed": seed}, &st)
	return st, err
}

// GetSession fetches the full state of a session.
func (c *Client) GetSession(ctx context.Context, id string) (api.SessionState, error) {
	var st api.SessionState
	err := c.do(ctx, http.MethodGet, c.sessionPath(id), nil, &st)
	return st, err
}

// DeleteSession ends a session. The daemon saves it first when both
// models are non-empty.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.sessionPath(id), nil, nil)
}

// AddTask adds a task. Nil fields take the editor defaults.
func (c *Client) AddTask(ctx context.Context, id string, t TaskSpec) (model.TaskID, error) {
	var res api.IDResponse
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "tasks"), t, &res)
	return model.TaskID(res.ID), err
}

// AddMessage adds a message from sender to receiver.
func (c *Client) AddMessage(ctx context.Context, id string, m MessageSpec) (model.MessageID, error) {
	var res api.IDResponse
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "messages"), m, &res)
	return model.MessageID(res.ID), err
}

// DeleteTask removes a task and its messages.
func (c *Client) DeleteTask(ctx context.Context, id string, task model.TaskID) error {
	return c.do(ctx, http.MethodDelete, c.sessionPath(id, "tasks", fmt.Sprint(task)), nil, nil)
}

// UpdateTask sets "wcet" or "deadline" of a task.
func (c *Client) UpdateTask(ctx context.Context, id string, task model.TaskID, field string, value float64) error {
	return c.do(ctx, http.MethodPatch, c.sessionPath(id, "tasks", fmt.Sprint(task)),
		map[string]any{"field": field, "value": value}, nil)
}

// AddNode adds a platform node of type t.
func (c *Client) AddNode(ctx context.Context, id string, t model.NodeType) (model.NodeID, error) {
	var res api.IDResponse
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "nodes"), map[string]string{"type": string(t)}, &res)
	return model.NodeID(res.ID), err
}

// AddLink adds a link start->end.
func (c *Client) AddLink(ctx context.Context, id string, l LinkSpec) (model.LinkID, error) {
	var res api.IDResponse
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "links"), l, &res)
	return model.LinkID(res.ID), err
}

// DeleteNode removes a node and its links.
func (c *Client) DeleteNode(ctx context.Context, id string, node model.NodeID) error {
	return c.do(ctx, http.MethodDelete, c.sessionPath(id, "nodes", fmt.Sprint(node)), nil, nil)
}

// DeleteLink removes the link start->end.
func (c *Client) DeleteLink(ctx context.Context, id string, start, end model.NodeID) error {
	path := fmt.Sprintf("%s?start=%d&end=%d", c.sessionPath(id, "links"), start, end)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// GenerateApplication replaces the application model with a random one.
func (c *Client) GenerateApplication(ctx context.Context, id string, p generator.ApplicationParams) (api.SessionState, error) {
	var st api.SessionState
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "generate", "application"), p, &st)
	return st, err
}

// GeneratePlatform replaces the platform model with a random one.
func (c *Client) GeneratePlatform(ctx context.Context, id string, p generator.PlatformParams) (api.SessionState, error) {
	var st api.SessionState
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "generate", "platform"), p, &st)
	return st, err
}

// Export downloads the session model as the updated_data.json document.
func (c *Client) Export(ctx context.Context, id string) ([]byte, error) {
	var doc []byte
	err := c.do(ctx, http.MethodGet, c.sessionPath(id, "export"), nil, &doc)
	return doc, err
}
