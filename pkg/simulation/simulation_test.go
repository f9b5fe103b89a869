package simulation

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linem-davton/graphdraw/pkg/api"
	"github.com/linem-davton/graphdraw/pkg/logging"
)

func newDaemon(t *testing.T) (*httptest.Server, *api.Registry) {
	t.Helper()
	reg := api.NewRegistry(api.RegistryConfig{Logger: logging.Discard()})
	srv := api.NewServer(api.Config{Registry: reg, Logger: logging.Discard()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		reg.Close()
	})
	return ts, reg
}

func TestRunScenario_AddOnly(t *testing.T) {
	ts, reg := newDaemon(t)
	s := Scenario{
		Name:     "add tasks",
		Duration: 300 * time.Millisecond,
		Seed:     1,
		Editors: []EditorConfig{
			{Name: "writers", Count: 2, Behavior: BehaviorGreedy, Actions: []Action{ActionAddTask, ActionAddNode}},
		},
		Invariants: []Invariant{
			{Metric: "success_rate", Condition: "==", Value: 1, Scope: "writers"},
			{Metric: "error_rate", Condition: "<", Value: 0.01},
		},
	}
	require.NoError(t, s.Validate())

	res := RunScenario(context.Background(), s, ts.URL, logging.Discard())

	assert.True(t, res.Success, "invariants: %+v", res.Invariants)
	assert.Positive(t, res.TotalRequests)
	assert.Equal(t, res.TotalRequests, res.TotalSucceeded)
	assert.Equal(t, res.TotalRequests, res.EditorStats["writers"].Requests)
	assert.Zero(t, res.Actions[ActionAddMessage])
	assert.Equal(t, 0, reg.Len(), "editors delete their sessions")
}

func TestRunScenario_DefaultMix(t *testing.T) {
	ts, _ := newDaemon(t)
	s := Scenario{
		Name:     "mixed",
		Duration: 400 * time.Millisecond,
		Seed:     7,
		Editors: []EditorConfig{
			{Name: "editors", Count: 3, Behavior: BehaviorPeriodic, Rate: 50},
		},
		Invariants: []Invariant{
			{Metric: "error_rate", Condition: "==", Value: 0, Scope: "global"},
		},
	}
	res := RunScenario(context.Background(), s, ts.URL, logging.Discard())

	assert.True(t, res.Success, "invariants: %+v", res.Invariants)
	assert.Equal(t, res.TotalRequests, res.TotalSucceeded+res.TotalRejected)
}

func TestRunScenario_UnreachableDaemon(t *testing.T) {
	s := Scenario{
		Name:     "offline",
		Duration: 200 * time.Millisecond,
		Editors:  []EditorConfig{{Name: "e", Count: 1, Behavior: BehaviorGreedy}},
		Invariants: []Invariant{
			{Metric: "error_rate", Condition: "<", Value: 0.5},
		},
	}
	res := RunScenario(context.Background(), s, "http://127.0.0.1:1", logging.Discard())
	assert.False(t, res.Success)
	assert.Equal(t, uint64(1), res.TotalErrors, "a failed session start is one error")
}

func TestEvaluateInvariants(t *testing.T) {
	res := &SimulationResult{
		TotalRequests:  10,
		TotalSucceeded: 7,
		TotalRejected:  3,
		EditorStats:    map[string]*EditorStats{"a": {Requests: 4, Rejected: 1, Succeeded: 3}},
	}
	evaluateInvariants(res, []Invariant{
		{Metric: "success_rate", Condition: ">=", Value: 0.7},
		{Metric: "rejection_rate", Condition: "<", Value: 0.25, Scope: "a"},
		{Metric: "error_rate", Condition: ">", Value: 0},
		{Metric: "success_rate", Condition: ">", Value: 0, Scope: "missing"},
	})

	require.Len(t, res.Invariants, 4)
	assert.True(t, res.Invariants[0].Passed)
	assert.Equal(t, "0.7000", res.Invariants[0].Actual)
	assert.False(t, res.Invariants[1].Passed, "0.25 is not below 0.25")
	assert.False(t, res.Invariants[2].Passed)
	assert.Equal(t, "N/A", res.Invariants[3].Actual)
}

func TestScenario_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{
		{name: "default", mutate: func(*Scenario) {}},
		{name: "no duration", mutate: func(s *Scenario) { s.Duration = 0 }, wantErr: "duration must be positive"},
		{name: "no editors", mutate: func(s *Scenario) { s.Editors = nil }, wantErr: "at least one editor group"},
		{name: "zero rate", mutate: func(s *Scenario) { s.Editors[0].Rate = 0 }, wantErr: "rate must be positive"},
		{name: "bad behavior", mutate: func(s *Scenario) { s.Editors[0].Behavior = "lazy" }, wantErr: "unknown behavior"},
		{name: "bad action", mutate: func(s *Scenario) { s.Editors[0].Actions = []Action{"drag"} }, wantErr: "unknown action"},
		{name: "duplicate group", mutate: func(s *Scenario) { s.Editors = append(s.Editors, s.Editors[0]) }, wantErr: "duplicate name"},
		{name: "bad metric", mutate: func(s *Scenario) { s.Invariants[0].Metric = "latency_p99" }, wantErr: "unknown metric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultScenario()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	doc := `name: burst
duration: 2s
seed: 9
editors:
  - name: bursty
    count: 2
    behavior: bursty
    burst: 5
    actions: [add_task, add_message]
invariants:
  - metric: error_rate
    condition: "<"
    value: 0.05
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, s.Duration)
	assert.Equal(t, uint64(9), s.Seed)
	assert.Equal(t, []Action{ActionAddTask, ActionAddMessage}, s.Editors[0].Actions)

	require.NoError(t, os.WriteFile(path, []byte("name: x\nagents: []\n"), 0o644))
	_, err = LoadScenario(path)
	assert.ErrorContains(t, err, "failed to parse scenario file")
}
