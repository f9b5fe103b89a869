package api

import (
	"github.com/linem-davton/graphdraw/pkg/editor"
	"github.com/linem-davton/graphdraw/pkg/model"
)

// API Request/Response Structs

type createSessionRequest struct {
	// Key is the storage key the session auto-saves to. Empty means "model".
	Key string `json:"key,omitempty"`
	// Seed loads the stored model under Key into the new session.
	Seed bool `json:"seed,omitempty"`
}

// SessionState is the full view of one editing session.
type SessionState struct {
	ID              string               `json:"id"`
	Revision        uint64               `json:"revision"`
	Model           model.CombinedModel  `json:"model"`
	Selection       editor.Selection     `json:"selection"`
	Schedule        model.ScheduleResult `json:"schedule,omitempty"`
	ScheduleError   string               `json:"schedule_error,omitempty"`
	SchedulePending bool                 `json:"schedule_pending"`
	Warnings        []string             `json:"warnings,omitempty"`
}

type addTaskRequest struct {
	WCET     *float64 `json:"wcet,omitempty"`
	MCET     *float64 `json:"mcet,omitempty"`
	Deadline *float64 `json:"deadline,omitempty"`
}

type addMessageRequest struct {
	Sender               model.TaskID `json:"sender"`
	Receiver             model.TaskID `json:"receiver"`
	Size                 *float64     `json:"size,omitempty"`
	MessageInjectionTime *float64     `json:"message_injection_time,omitempty"`
}

type addNodeRequest struct {
	// Type is a node type name or its code 0-3.
	Type string `json:"type"`
}

type addLinkRequest struct {
	StartNode model.NodeID `json:"start_node"`
	EndNode   model.NodeID `json:"end_node"`
	LinkDelay *float64     `json:"link_delay,omitempty"`
	Bandwidth *float64     `json:"bandwidth,omitempty"`
}

type updateFieldRequest struct {
	Field string   `json:"field"`
	Value *float64 `json:"value"`
}

type validateGraphRequest struct {
	Highlighted []model.TaskID `json:"highlighted,omitempty"`
}

// IDResponse answers every add operation.
type IDResponse struct {
	ID       int    `json:"id"`
	Revision uint64 `json:"revision"`
}

// ValidateResponse answers POST .../validate.
type ValidateResponse struct {
	Valid   bool             `json:"valid"`
	Message string           `json:"message"`
	Cycles  [][]model.TaskID `json:"cycles,omitempty"`
}

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// StreamFrame is pushed to websocket subscribers on every change.
type StreamFrame struct {
	Type     string               `json:"type"`
	Revision uint64               `json:"revision"`
	Schedule model.ScheduleResult `json:"schedule,omitempty"`
	Error    string               `json:"error,omitempty"`
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}
