package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/linem-davton/graphdraw/pkg/model"
)

// Status represents the health check response.
type Status struct {
	// Status is the health status string (e.g. "ok").
	Status string `json:"status"`
}

// TaskSpec describes a task to add. Nil fields take the daemon defaults.
type TaskSpec struct {
	WCET     *float64 `json:"wcet,omitempty"`
	MCET     *float64 `json:"mcet,omitempty"`
	Deadline *float64 `json:"deadline,omitempty"`
}

// MessageSpec describes a message to add.
type MessageSpec struct {
	Sender               model.TaskID `json:"sender"`
	Receiver             model.TaskID `json:"receiver"`
	Size                 *float64     `json:"size,omitempty"`
	MessageInjectionTime *float64     `json:"message_injection_time,omitempty"`
}

// LinkSpec describes a link to add.
type LinkSpec struct {
	StartNode model.NodeID `json:"start_node"`
	EndNode   model.NodeID `json:"end_node"`
	LinkDelay *float64     `json:"link_delay,omitempty"`
	Bandwidth *float64     `json:"bandwidth,omitempty"`
}

// Float returns a pointer to v for the optional fields of the *Spec types.
func Float(v float64) *float64 { return &v }

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int      `json:"-"`
	Code    string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graphdraw: status %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("graphdraw: status %d: %s: %s", e.Status, e.Code, e.Message)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Message = string(data)
	}
	return apiErr
}
