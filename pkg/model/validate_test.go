package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoTasks() ApplicationModel {
	return ApplicationModel{
		Tasks: []Task{
			{ID: 0, WCET: 10, MCET: 5, Deadline: 50},
			{ID: 1, WCET: 20, MCET: 10, Deadline: 100},
		},
		Messages: []Message{{ID: 0, Sender: 0, Receiver: 1, Size: 20}},
	}
}

func TestValidateMessage(t *testing.T) {
	app := twoTasks()

	tests := []struct {
		name     string
		sender   TaskID
		receiver TaskID
		want     error
	}{
		{"missing sender", 7, 1, ErrReferential},
		{"missing receiver", 0, 9, ErrReferential},
		{"self loop", 1, 1, ErrSelfLoop},
		{"duplicate ordered pair", 0, 1, ErrDuplicateEdge},
		{"reverse pair is distinct", 1, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(app, tt.sender, tt.receiver)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateLink(t *testing.T) {
	platform := PlatformModel{
		Nodes: []PlatformNode{
			{ID: 0, Type: NodeCompute},
			{ID: 1, Type: NodeCompute},
			{ID: 2, Type: NodeRouter},
			{ID: 3, Type: NodeSensor},
		},
		Links: []Link{{ID: 0, StartNode: 0, EndNode: 2, Type: LinkTypeEthernet}},
	}

	tests := []struct {
		name  string
		start NodeID
		end   NodeID
		want  error
	}{
		{"compute to compute", 0, 1, ErrEndpointConstraint},
		{"compute to compute reversed", 1, 0, ErrEndpointConstraint},
		{"sensor to compute", 3, 0, ErrEndpointConstraint},
		{"missing start", 42, 2, ErrReferential},
		{"missing end", 2, 42, ErrReferential},
		{"self link on router", 2, 2, ErrSelfLoop},
		{"duplicate", 0, 2, ErrDuplicateEdge},
		{"reverse of existing", 2, 0, nil},
		{"sensor to router", 3, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLink(platform, tt.start, tt.end)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateCombined(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		m := CombinedModel{
			Application: twoTasks(),
			Platform: PlatformModel{
				Nodes: []PlatformNode{{ID: 0, Type: NodeRouter}, {ID: 1, Type: NodeCompute}},
				Links: []Link{{ID: 0, StartNode: 1, EndNode: 0, Type: LinkTypeEthernet}},
			},
		}
		assert.NoError(t, ValidateCombined(m))
	})

	t.Run("reports every violation", func(t *testing.T) {
		m := CombinedModel{
			Application: ApplicationModel{
				Tasks:    []Task{{ID: 0}, {ID: 0}},
				Messages: []Message{{ID: 0, Sender: 0, Receiver: 5}},
			},
			Platform: PlatformModel{
				Nodes: []PlatformNode{{ID: 0, Type: NodeCompute}, {ID: 1, Type: NodeCompute}},
				Links: []Link{{ID: 0, StartNode: 0, EndNode: 1}},
			},
		}
		err := ValidateCombined(m)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSchema)
		assert.ErrorIs(t, err, ErrReferential)
		assert.ErrorIs(t, err, ErrEndpointConstraint)
	})
}

func TestCheckTaskTiming(t *testing.T) {
	assert.Empty(t, CheckTaskTiming(Task{ID: 0, WCET: 10, MCET: 5, Deadline: 50}))
	assert.Len(t, CheckTaskTiming(Task{ID: 1, WCET: 10, MCET: 11, Deadline: 10}), 2)
}

func TestParseNodeType(t *testing.T) {
	for input, want := range map[string]NodeType{
		"0":        NodeCompute,
		"1":        NodeRouter,
		"2":        NodeSensor,
		"3":        NodeActuator,
		"Router":   NodeRouter,
		" sensor ": NodeSensor,
	} {
		got, err := ParseNodeType(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	for _, bad := range []string{"4", "-1", "switch", ""} {
		_, err := ParseNodeType(bad)
		assert.Error(t, err, bad)
	}
}

func TestNodeTypeUnmarshalRejectsUnknown(t *testing.T) {
	var n PlatformNode
	assert.Error(t, json.Unmarshal([]byte(`{"id":0,"type":"switch"}`), &n))
	require.NoError(t, json.Unmarshal([]byte(`{"id":0,"type":"router"}`), &n))
	assert.Equal(t, NodeRouter, n.Type)
}

func TestErrorTaxonomy(t *testing.T) {
	var conn error = &ConnectionError{Err: errors.New("dial tcp: refused")}
	assert.ErrorIs(t, conn, ErrConnection)
	assert.Equal(t, "connection_error", Code(conn))

	var status error = &HTTPError{Status: 503}
	assert.ErrorIs(t, status, ErrHTTP)
	assert.Equal(t, "HTTP error! status: 503", status.Error())

	var schema error = &SchemaError{Errors: []string{"a", "b"}}
	assert.ErrorIs(t, schema, ErrSchema)
	assert.Equal(t, "schema_error", Code(schema))
	assert.Equal(t, "internal", Code(errors.New("boom")))

	assert.Equal(t, "Error Connecting to Server", UserMessage(conn))
	assert.Equal(t, "HTTP error! status: 503", UserMessage(status))
	assert.Equal(t, "", UserMessage(nil))
}

func TestCloneIsDeep(t *testing.T) {
	m := CombinedModel{Application: twoTasks(), Platform: NewPlatformModel()}
	c := m.Clone()
	c.Application.Tasks[0].WCET = 99
	assert.Equal(t, float64(10), m.Application.Tasks[0].WCET)

	data, err := json.Marshal(NewCombinedModel())
	require.NoError(t, err)
	assert.JSONEq(t, `{"application":{"tasks":[],"messages":[]},"platform":{"nodes":[],"links":[]}}`, string(data))
}
