package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/linem-davton/graphdraw/pkg/model"
)

// ErrDecode wraps a 2xx response whose body is not the expected document.
var ErrDecode = errors.New("decode scheduler response")

// Mode selects which configured server receives requests.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

// ParseMode accepts "remote" or "local".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRemote, ModeLocal:
		return m, nil
	}
	return "", fmt.Errorf("unknown scheduler mode %q", s)
}

// Endpoints mirrors the server configuration of the browser editor.
type Endpoints struct {
	Remote       string `yaml:"remoteServer" json:"remote_server"`
	Local        string `yaml:"localServer" json:"local_server"`
	SchedulePath string `yaml:"schedule_jobs" json:"schedule_jobs"`
	ValidatePath string `yaml:"validate_graph" json:"validate_graph"`
}

// DefaultEndpoints points both modes at a scheduler on localhost:8000.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Remote:       "http://localhost:8000",
		Local:        "http://localhost:8000",
		SchedulePath: "/schedule_jobs",
		ValidatePath: "/validate_graph",
	}
}

// Base returns the server URL for mode.
func (e Endpoints) Base(mode Mode) string {
	if mode == ModeLocal {
		return strings.TrimRight(e.Local, "/")
	}
	return strings.TrimRight(e.Remote, "/")
}

type validateNode struct {
	TaskID model.TaskID `json:"task_id"`
}

type validateLink struct {
	Source model.TaskID `json:"source"`
	Target model.TaskID `json:"target"`
}

type validateRequest struct {
	Nodes       []validateNode `json:"nodes"`
	Links       []validateLink `json:"links"`
	Highlighted []model.TaskID `json:"highlighted"`
}

// ValidationResult is the answer of the validate_graph endpoint. Exactly one
// of Valid and Error is normally set.
type ValidationResult struct {
	Valid  json.RawMessage  `json:"valid,omitempty"`
	Error  string           `json:"Error,omitempty"`
	Cycles [][]model.TaskID `json:"cycles,omitempty"`
}

// Message is the text shown to the user for r.
func (r ValidationResult) Message() string {
	switch {
	case r.Error != "":
		return r.Error
	case len(r.Valid) > 0:
		return string(r.Valid)
	}
	return "Error communicating with the server."
}
