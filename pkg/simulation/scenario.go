package simulation

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultScenario is a short periodic load with one editor group.
func DefaultScenario() Scenario {
	return Scenario{
		Name:        "Default Demo",
		Description: "Simple periodic editing load",
		Duration:    10 * time.Second,
		Editors: []EditorConfig{
			{Name: "editor-default", Count: 5, Behavior: BehaviorPeriodic, Rate: 2},
		},
		Invariants: []Invariant{
			{Metric: "error_rate", Condition: "<", Value: 0.01, Scope: "global"},
		},
	}
}

// LoadScenario reads a YAML (or JSON) scenario file. Durations are written
// as Go duration strings such as "30s".
func LoadScenario(path string) (Scenario, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario file: %w", err)
	}
	defer fh.Close()

	var s Scenario
	dec := yaml.NewDecoder(fh)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	return s, s.Validate()
}

// Validate checks the scenario before it runs.
func (s Scenario) Validate() error {
	var errs []error
	if s.Duration <= 0 {
		errs = append(errs, errors.New("duration must be positive"))
	}
	if len(s.Editors) == 0 {
		errs = append(errs, errors.New("at least one editor group is required"))
	}
	names := map[string]bool{}
	for i, e := range s.Editors {
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, fmt.Errorf("editors[%d]: name is required", i))
		} else if names[e.Name] {
			errs = append(errs, fmt.Errorf("editors[%d]: duplicate name %q", i, e.Name))
		}
		names[e.Name] = true
		if e.Count <= 0 {
			errs = append(errs, fmt.Errorf("editors[%d]: count must be positive", i))
		}
		switch e.Behavior {
		case "", BehaviorPeriodic, BehaviorPoisson:
			if e.Rate <= 0 {
				errs = append(errs, fmt.Errorf("editors[%d]: rate must be positive", i))
			}
		case BehaviorBursty:
			if e.Burst <= 0 {
				errs = append(errs, fmt.Errorf("editors[%d]: burst must be positive", i))
			}
		case BehaviorGreedy:
		default:
			errs = append(errs, fmt.Errorf("editors[%d]: unknown behavior %q", i, e.Behavior))
		}
		for _, a := range e.Actions {
			if !knownAction(a) {
				errs = append(errs, fmt.Errorf("editors[%d]: unknown action %q", i, a))
			}
		}
	}
	for i, inv := range s.Invariants {
		switch inv.Metric {
		case "success_rate", "rejection_rate", "error_rate":
		default:
			errs = append(errs, fmt.Errorf("invariants[%d]: unknown metric %q", i, inv.Metric))
		}
		switch inv.Condition {
		case ">", ">=", "<", "<=", "==":
		default:
			errs = append(errs, fmt.Errorf("invariants[%d]: unknown condition %q", i, inv.Condition))
		}
	}
	return errors.Join(errs...)
}

func knownAction(a Action) bool {
	switch a {
	case ActionAddTask, ActionAddMessage, ActionDeleteTask, ActionAddNode, ActionAddLink,
		ActionDeleteNode, ActionUpdateTask, ActionGenerate, ActionExportModel:
		return true
	}
	return false
}
