// Package simulation drives a graphdraw-d daemon with concurrent simulated
// editors and checks the outcome against scenario invariants.
package simulation

import (
	"time"
)

// SimulationResult captures the final state of the simulation for reporting
type SimulationResult struct {
	ScenarioName   string                  `json:"scenario_name"`
	Duration       time.Duration           `json:"duration"`
	TotalRequests  uint64                  `json:"total_requests"`
	TotalSucceeded uint64                  `json:"total_succeeded"`
	TotalRejected  uint64                  `json:"total_rejected"`
	TotalErrors    uint64                  `json:"total_errors"`
	EditorStats    map[string]*EditorStats `json:"editor_stats"`
	Actions        map[Action]uint64       `json:"actions"`
	Invariants     []InvariantResult       `json:"invariants"`
	Success        bool                    `json:"success"`
}

// EditorStats counts outcomes per editor group. Rejected requests are
// edits the daemon refused as invalid (4xx); errors are transport failures
// and 5xx answers.
type EditorStats struct {
	Requests  uint64 `json:"requests"`
	Succeeded uint64 `json:"succeeded"`
	Rejected  uint64 `json:"rejected"`
	Errors    uint64 `json:"errors"`
}

type InvariantResult struct {
	Metric   string `json:"metric"`
	Scope    string `json:"scope"`
	Expected string `json:"expected"` // e.g. "< 0.01"
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

type Scenario struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Duration    time.Duration  `json:"duration" yaml:"duration"`
	Seed        uint64         `json:"seed" yaml:"seed"` // Deterministic seed
	Editors     []EditorConfig `json:"editors" yaml:"editors"`
	Invariants  []Invariant    `json:"invariants,omitempty" yaml:"invariants,omitempty"`
}

type Invariant struct {
	Metric    string  `json:"metric" yaml:"metric"`       // success_rate, rejection_rate or error_rate
	Condition string  `json:"condition" yaml:"condition"` // >, <, >=, <=, ==
	Value     float64 `json:"value" yaml:"value"`
	Scope     string  `json:"scope" yaml:"scope"` // "global" or an editor group name
}

type EditorConfig struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
	// Key is the storage key of the editors' sessions. Empty gives each
	// editor its own key.
	Key      string        `json:"key" yaml:"key"`
	Behavior BehaviorType  `json:"behavior" yaml:"behavior"`
	Rate     int           `json:"rate" yaml:"rate"` // Requests per second
	Burst    int           `json:"burst" yaml:"burst"`
	Jitter   time.Duration `json:"jitter" yaml:"jitter"`
	// Actions restricts the editor to these actions. Empty uses the default
	// mix.
	Actions []Action `json:"actions,omitempty" yaml:"actions,omitempty"`
}

type BehaviorType string

const (
	BehaviorPeriodic BehaviorType = "periodic"
	BehaviorGreedy   BehaviorType = "greedy"
	BehaviorPoisson  BehaviorType = "poisson"
	BehaviorBursty   BehaviorType = "bursty"
)

// Action is one editing operation a simulated editor performs.
type Action string

const (
	ActionAddTask     Action = "add_task"
	ActionAddMessage  Action = "add_message"
	ActionDeleteTask  Action = "delete_task"
	ActionAddNode     Action = "add_node"
	ActionAddLink     Action = "add_link"
	ActionDeleteNode  Action = "delete_node"
	ActionUpdateTask  Action = "update_task"
	ActionGenerate    Action = "generate"
	ActionExportModel Action = "export"
)

// defaultMix weights the actions of an editor without an explicit list.
var defaultMix = []Action{
	ActionAddTask, ActionAddTask, ActionAddTask,
	ActionAddMessage, ActionAddMessage, ActionAddMessage,
	ActionAddNode, ActionAddNode,
	ActionAddLink, ActionAddLink, ActionAddLink,
	ActionUpdateTask,
	ActionDeleteTask,
	ActionDeleteNode,
	ActionGenerate,
	ActionExportModel,
}
