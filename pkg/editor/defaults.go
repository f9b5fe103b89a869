package editor

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/linem-davton/graphdraw/pkg/model"
)

// Values are the parameters the editor's add actions use.
type Values struct {
	TaskWCET             float64
	TaskMCET             float64
	TaskDeadline         float64
	MessageSize          float64
	MessageInjectionTime float64
	LinkDelay            float64
	LinkBandwidth        float64
}

// Defaults matches the add buttons of the browser editor.
var Defaults = Values{
	TaskWCET:             10,
	TaskMCET:             5,
	TaskDeadline:         500,
	MessageSize:          20,
	MessageInjectionTime: 0,
	LinkDelay:            10,
	LinkBandwidth:        10,
}

//go:embed example.json
var exampleJSON []byte

// Example returns the built-in example model.
func Example() (model.CombinedModel, error) {
	var m model.CombinedModel
	if err := json.Unmarshal(exampleJSON, &m); err != nil {
		return model.CombinedModel{}, fmt.Errorf("decode example: %w", err)
	}
	return m, nil
}

// LoadExample replaces both models with the built-in example.
func (s *Session) LoadExample() error {
	m, err := Example()
	if err != nil {
		return err
	}
	return s.Replace(m)
}
