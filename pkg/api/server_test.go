package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linem-davton/graphdraw/pkg/editor"
	"github.com/linem-davton/graphdraw/pkg/interchange"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/model"
	"github.com/linem-davton/graphdraw/pkg/scheduler"
	"github.com/linem-davton/graphdraw/pkg/store"
)

type fixedScheduler struct {
	result model.ScheduleResult
	err    error
}

func (f fixedScheduler) ScheduleJobs(context.Context, model.CombinedModel) (model.ScheduleResult, error) {
	return f.result, f.err
}

type fixedValidator struct {
	res scheduler.ValidationResult
}

func (f fixedValidator) ValidateGraph(context.Context, model.ApplicationModel, []model.TaskID) (scheduler.ValidationResult, error) {
	return f.res, nil
}

type harness struct {
	t      *testing.T
	srv    *Server
	ts     *httptest.Server
	models *store.Models
}

func newHarness(t *testing.T, cfg RegistryConfig, opts ...func(*Config)) *harness {
	t.Helper()
	if cfg.Models == nil {
		cfg.Models = store.NewModels(store.NewMemory())
	}
	cfg.Logger = logging.Discard()
	reg := NewRegistry(cfg)
	c := Config{Registry: reg, Logger: logging.Discard()}
	for _, o := range opts {
		o(&c)
	}
	srv := NewServer(c)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		reg.Close()
	})
	return &harness{t: t, srv: srv, ts: ts, models: cfg.Models.(*store.Models)}
}

func (h *harness) do(method, path string, body any) (int, []byte) {
	h.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(h.t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rd)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, data
}

func (h *harness) create() string {
	h.t.Helper()
	status, body := h.do("POST", "/v1/sessions", nil)
	require.Equal(h.t, http.StatusCreated, status, string(body))
	var st SessionState
	require.NoError(h.t, json.Unmarshal(body, &st))
	return st.ID
}

func (h *harness) state(id string) SessionState {
	h.t.Helper()
	status, body := h.do("GET", "/v1/sessions/"+id, nil)
	require.Equal(h.t, http.StatusOK, status, string(body))
	var st SessionState
	require.NoError(h.t, json.Unmarshal(body, &st))
	return st
}

func errorOf(t *testing.T, body []byte) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e), string(body))
	return e
}

func TestSecureHeaders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	secureHandler := withSecureHeaders(handler)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	secureHandler.ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"Content-Security-Policy":   "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:;",
		"Strict-Transport-Security": "max-age=63072000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Referrer-Policy":           "no-referrer",
	}
	for key, expected := range expectedHeaders {
		if got := w.Header().Get(key); got != expected {
			t.Errorf("Header %s: expected %q, got %q", key, expected, got)
		}
	}
}

func TestHealthAndTraceID(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	req, _ := http.NewRequest("GET", h.ts.URL+"/v1/health", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "trace-123", resp.Header.Get("X-Trace-ID"))

	status, body := h.do("GET", "/v1/schema", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"application"`)
}

func TestEditingScenario(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	id := h.create()
	base := "/v1/sessions/" + id

	status, body := h.do("POST", base+"/tasks", nil)
	require.Equal(t, http.StatusCreated, status, string(body))
	status, _ = h.do("POST", base+"/tasks", map[string]float64{"wcet": 20, "mcet": 10, "deadline": 100})
	require.Equal(t, http.StatusCreated, status)

	status, body = h.do("POST", base+"/messages", map[string]int{"sender": 0, "receiver": 1})
	require.Equal(t, http.StatusCreated, status, string(body))

	st := h.state(id)
	require.Len(t, st.Model.Application.Tasks, 2)
	assert.Equal(t, editor.Defaults.TaskWCET, st.Model.Application.Tasks[0].WCET)
	assert.Equal(t, float64(20), st.Model.Application.Tasks[1].WCET)
	assert.Equal(t, editor.Defaults.MessageSize, st.Model.Application.Messages[0].Size)
	require.NotNil(t, st.Selection.Task)
	assert.Equal(t, model.TaskID(1), *st.Selection.Task)

	status, body = h.do("PATCH", base+"/tasks/0", map[string]any{"field": "wcet", "value": 42})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, float64(42), h.state(id).Model.Application.Tasks[0].WCET)

	status, _ = h.do("DELETE", base+"/tasks/0", nil)
	require.Equal(t, http.StatusNoContent, status)
	st = h.state(id)
	assert.Len(t, st.Model.Application.Tasks, 1)
	assert.Empty(t, st.Model.Application.Messages)
}

func TestPlatformEditing(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	base := "/v1/sessions/" + h.create()

	for _, typ := range []string{"compute", "1", "compute"} {
		status, body := h.do("POST", base+"/nodes", map[string]string{"type": typ})
		require.Equal(t, http.StatusCreated, status, string(body))
	}
	status, body := h.do("POST", base+"/links", map[string]int{"start_node": 0, "end_node": 1})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = h.do("PATCH", base+"/links/0", map[string]any{"field": "bandwidth", "value": 77})
	require.Equal(t, http.StatusOK, status, string(body))

	status, _ = h.do("DELETE", base+"/links?start=0&end=1", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = h.do("DELETE", base+"/nodes/2", nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	base := "/v1/sessions/" + h.create()
	h.do("POST", base+"/tasks", nil)
	h.do("POST", base+"/tasks", nil)
	h.do("POST", base+"/messages", map[string]int{"sender": 0, "receiver": 1})
	h.do("POST", base+"/nodes", map[string]string{"type": "compute"})
	h.do("POST", base+"/nodes", map[string]string{"type": "compute"})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"self message", "POST", "/messages", map[string]int{"sender": 0, "receiver": 0}, 422, "self_loop"},
		{"duplicate message", "POST", "/messages", map[string]int{"sender": 0, "receiver": 1}, 409, "duplicate_edge"},
		{"missing task", "POST", "/messages", map[string]int{"sender": 0, "receiver": 9}, 404, "referential_error"},
		{"bad node type", "POST", "/nodes", map[string]string{"type": "gpu"}, 422, "invalid_parameters"},
		{"compute to compute", "POST", "/links", map[string]int{"start_node": 0, "end_node": 1}, 422, "endpoint_constraint"},
		{"malformed body", "POST", "/tasks", "{", 400, "parse_error"},
		{"unknown field", "PATCH", "/tasks/0", map[string]any{"field": "mcet", "value": 1}, 422, "invalid_parameters"},
		{"missing value", "PATCH", "/tasks/0", map[string]any{"field": "wcet"}, 422, "invalid_parameters"},
		{"delete missing task", "DELETE", "/tasks/7", nil, 404, "referential_error"},
		{"non-integer id", "DELETE", "/tasks/x", nil, 400, "parse_error"},
		{"bad app params", "POST", "/generate/application", map[string]int{"n": 5, "max_wcet": 10, "min_wcet": 20}, 422, "invalid_parameters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := h.do(tt.method, base+tt.path, tt.body)
			assert.Equal(t, tt.status, status, string(body))
			assert.Equal(t, tt.code, errorOf(t, body).Error)
		})
	}

	status, body := h.do("GET", "/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "session_not_found", errorOf(t, body).Error)
}

func TestImportExport(t *testing.T) {
	schema, err := interchange.BundledValidator()
	require.NoError(t, err)
	h := newHarness(t, RegistryConfig{}, func(c *Config) { c.Schema = schema })
	base := "/v1/sessions/" + h.create()

	status, body := h.do("POST", base+"/example", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	resp, err := http.Get(h.ts.URL + base + "/export")
	require.NoError(t, err)
	exported, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, `attachment; filename="updated_data.json"`, resp.Header.Get("Content-Disposition"))

	other := "/v1/sessions/" + h.create()
	status, body = h.do("POST", other+"/import", string(exported))
	require.Equal(t, http.StatusOK, status, string(body))
	example, _ := editor.Example()
	assert.Len(t, h.state(strings.TrimPrefix(other, "/v1/sessions/")).Model.Platform.Nodes, len(example.Platform.Nodes))

	bad := `{"application":{"tasks":[],"messages":[]},"platform":{"nodes":[{"id":0,"type":"gpu"}],"links":[]}}`
	status, body = h.do("POST", other+"/import", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	e := errorOf(t, body)
	assert.Equal(t, "schema_error", e.Error)
	assert.NotEmpty(t, e.Details)

	status, body = h.do("POST", other+"/import", "not json")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "parse_error", errorOf(t, body).Error)
}

func TestGenerate(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	id := h.create()
	base := "/v1/sessions/" + id

	status, body := h.do("POST", base+"/generate/application", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	status, body = h.do("POST", base+"/generate/platform", map[string]int{"compute": 2, "routers": 1, "sensors": 1, "actuators": 1})
	require.Equal(t, http.StatusOK, status, string(body))

	st := h.state(id)
	assert.NotEmpty(t, st.Model.Application.Tasks)
	assert.Len(t, st.Model.Platform.Nodes, 5)
}

func TestSchedulingFlow(t *testing.T) {
	result := model.ScheduleResult{"edf": {Name: "EDF", Schedule: []model.JobInterval{{TaskID: 0, NodeID: 0, StartTime: 0, EndTime: 10}}}}
	h := newHarness(t, RegistryConfig{Scheduler: fixedScheduler{result: result}})
	id := h.create()

	status, _ := h.do("POST", "/v1/sessions/"+id+"/example", nil)
	require.Equal(t, http.StatusOK, status)

	require.Eventually(t, func() bool {
		st := h.state(id)
		return len(st.Schedule) == 1 && !st.SchedulePending
	}, 2*time.Second, 10*time.Millisecond)

	status, body := h.do("POST", "/v1/sessions/"+id+"/schedule/retry", nil)
	assert.Equal(t, http.StatusAccepted, status, string(body))
}

func TestSchedulingFailureIsRecorded(t *testing.T) {
	h := newHarness(t, RegistryConfig{Scheduler: fixedScheduler{err: &model.ConnectionError{Err: errors.New("refused")}}})
	id := h.create()
	h.do("POST", "/v1/sessions/"+id+"/example", nil)

	require.Eventually(t, func() bool {
		return h.state(id).ScheduleError == "Error Connecting to Server"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRetryWithEmptyModel(t *testing.T) {
	h := newHarness(t, RegistryConfig{Scheduler: fixedScheduler{}})
	id := h.create()
	status, body := h.do("POST", "/v1/sessions/"+id+"/schedule/retry", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "nothing_to_schedule", errorOf(t, body).Error)
}

func TestValidateGraph(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	id := h.create()
	status, _ := h.do("POST", "/v1/sessions/"+id+"/validate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	v := fixedValidator{res: scheduler.ValidationResult{Error: "Graph has cycles", Cycles: [][]model.TaskID{{0, 1}}}}
	h = newHarness(t, RegistryConfig{}, func(c *Config) { c.Validator = v })
	id = h.create()
	status, body := h.do("POST", "/v1/sessions/"+id+"/validate", map[string]any{"highlighted": []int{0}})
	require.Equal(t, http.StatusOK, status, string(body))
	var res ValidateResponse
	require.NoError(t, json.Unmarshal(body, &res))
	assert.False(t, res.Valid)
	assert.Equal(t, "Graph has cycles", res.Message)
	assert.Equal(t, [][]model.TaskID{{0, 1}}, res.Cycles)
}

func TestSelection(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	id := h.create()
	base := "/v1/sessions/" + id
	h.do("POST", base+"/tasks", nil)
	h.do("POST", base+"/tasks", nil)

	status, body := h.do("PUT", base+"/selection", map[string]any{"pane": "application", "task": 0})
	require.Equal(t, http.StatusOK, status, string(body))
	st := h.state(id)
	assert.Equal(t, editor.PaneApplication, st.Selection.Pane)
	assert.Equal(t, model.TaskID(0), *st.Selection.Task)

	status, _ = h.do("PUT", base+"/selection", map[string]any{"pane": "sideways"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestAutosaveAndSeed(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	id := h.create()
	h.do("POST", "/v1/sessions/"+id+"/example", nil)

	saved, ok, err := h.models.Load(context.Background(), store.DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	example, _ := editor.Example()
	assert.Len(t, saved.Application.Tasks, len(example.Application.Tasks))

	status, body := h.do("POST", "/v1/sessions", createSessionRequest{Seed: true})
	require.Equal(t, http.StatusCreated, status)
	var st SessionState
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Len(t, st.Model.Application.Tasks, len(example.Application.Tasks))
	assert.NotEqual(t, id, st.ID)
}

func TestEvictionSavesSession(t *testing.T) {
	models := store.NewModels(store.NewMemory())
	reg := NewRegistry(RegistryConfig{Size: 1, Models: models, Logger: logging.Discard()})
	defer reg.Close()
	ctx := context.Background()

	first, err := reg.Create(ctx, "first", false)
	require.NoError(t, err)
	// Overwrite the autosaved copy so only eviction can restore it.
	require.NoError(t, first.LoadExample())
	require.NoError(t, models.Save(ctx, "first", model.NewCombinedModel()))

	_, err = reg.Create(ctx, "second", false)
	require.NoError(t, err)
	_, err = reg.Get(first.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	saved, ok, err := models.Load(ctx, "first")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, saved.Application.Tasks, "evicted session was not saved")
	assert.Equal(t, 1, reg.Len())
}

func TestStream(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	id := h.create()

	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + fmt.Sprintf("/v1/sessions/%s/stream", id)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var f StreamFrame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "connected", f.Type)

	h.do("POST", "/v1/sessions/"+id+"/tasks", nil)
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, string(editor.ChangeTopology), f.Type)
	assert.Equal(t, uint64(1), f.Revision)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrReferential, 404},
		{fmt.Errorf("%w: x", model.ErrSelfLoop), 422},
		{model.ErrEndpointConstraint, 422},
		{model.ErrInvalidParameters, 422},
		{model.ErrDuplicateEdge, 409},
		{model.ErrParse, 400},
		{&model.SchemaError{Errors: []string{"a"}, Err: model.ErrReferential}, 422},
		{&model.HTTPError{Status: 500}, 502},
		{errors.New("boom"), 500},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
