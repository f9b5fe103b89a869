package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TaskID identifies a task within an application model.
type TaskID int

// MessageID identifies a message within an application model.
type MessageID int

// NodeID identifies a node within a platform model.
type NodeID int

// LinkID identifies a link within a platform model.
type LinkID int

// Task is a node of the application model.
type Task struct {
	ID       TaskID  `json:"id"`
	WCET     float64 `json:"wcet"`
	MCET     float64 `json:"mcet"`
	Deadline float64 `json:"deadline"`
}

// Message is a directed dependency between two tasks.
type Message struct {
	ID                   MessageID `json:"id"`
	Sender               TaskID    `json:"sender"`
	Receiver             TaskID    `json:"receiver"`
	Size                 float64   `json:"size"`
	MessageInjectionTime float64   `json:"message_injection_time"`
}

// NodeType is the role of a platform node.
type NodeType string

const (
	NodeCompute  NodeType = "compute"
	NodeRouter   NodeType = "router"
	NodeSensor   NodeType = "sensor"
	NodeActuator NodeType = "actuator"
)

// NodeTypes lists every node type in prompt-code order (0-compute .. 3-actuator).
var NodeTypes = []NodeType{NodeCompute, NodeRouter, NodeSensor, NodeActuator}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeCompute, NodeRouter, NodeSensor, NodeActuator:
		return true
	}
	return false
}

// ParseNodeType accepts a type name or a numeric code 0-3.
func ParseNodeType(s string) (NodeType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if code, err := strconv.Atoi(s); err == nil {
		if code < 0 || code >= len(NodeTypes) {
			return "", fmt.Errorf("invalid node type code %d", code)
		}
		return NodeTypes[code], nil
	}
	t := NodeType(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid node type %q", s)
	}
	return t, nil
}

// UnmarshalJSON rejects unknown node types.
func (t *NodeType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed := NodeType(s)
	if !parsed.Valid() {
		return fmt.Errorf("invalid node type %q", s)
	}
	*t = parsed
	return nil
}

// LinkTypeEthernet is the only link type the platform model knows.
const LinkTypeEthernet = "ethernet"

// PlatformNode is a node of the platform model.
type PlatformNode struct {
	ID   NodeID   `json:"id"`
	Type NodeType `json:"type" jsonschema:"enum=compute,enum=router,enum=sensor,enum=actuator"`
}

// Link is a directed network link between two platform nodes.
type Link struct {
	ID        LinkID  `json:"id"`
	StartNode NodeID  `json:"start_node"`
	EndNode   NodeID  `json:"end_node"`
	LinkDelay float64 `json:"link_delay"`
	Bandwidth float64 `json:"bandwidth"`
	Type      string  `json:"type" jsonschema:"enum=ethernet"`
}

// ApplicationModel is the task dependency graph.
type ApplicationModel struct {
	Tasks    []Task    `json:"tasks"`
	Messages []Message `json:"messages"`
}

// PlatformModel is the network of nodes and links.
type PlatformModel struct {
	Nodes []PlatformNode `json:"nodes"`
	Links []Link         `json:"links"`
}

// CombinedModel is the document exchanged with the scheduler, with files
// and with keyed storage.
type CombinedModel struct {
	Application ApplicationModel `json:"application"`
	Platform    PlatformModel    `json:"platform"`
}

// NewApplicationModel returns an empty model whose slices marshal as [].
func NewApplicationModel() ApplicationModel {
	return ApplicationModel{Tasks: []Task{}, Messages: []Message{}}
}

// NewPlatformModel returns an empty model whose slices marshal as [].
func NewPlatformModel() PlatformModel {
	return PlatformModel{Nodes: []PlatformNode{}, Links: []Link{}}
}

// NewCombinedModel returns an empty combined model.
func NewCombinedModel() CombinedModel {
	return CombinedModel{Application: NewApplicationModel(), Platform: NewPlatformModel()}
}

// Clone returns a deep copy.
func (a ApplicationModel) Clone() ApplicationModel {
	return ApplicationModel{
		Tasks:    append(make([]Task, 0, len(a.Tasks)), a.Tasks...),
		Messages: append(make([]Message, 0, len(a.Messages)), a.Messages...),
	}
}

// Clone returns a deep copy.
func (p PlatformModel) Clone() PlatformModel {
	return PlatformModel{
		Nodes: append(make([]PlatformNode, 0, len(p.Nodes)), p.Nodes...),
		Links: append(make([]Link, 0, len(p.Links)), p.Links...),
	}
}

// Clone returns a deep copy.
func (m CombinedModel) Clone() CombinedModel {
	return CombinedModel{Application: m.Application.Clone(), Platform: m.Platform.Clone()}
}

// Schedulable reports whether both models carry enough to be scheduled.
func (m CombinedModel) Schedulable() bool {
	return len(m.Application.Tasks) > 0 && len(m.Platform.Nodes) > 0
}

// Task returns the task with the given id.
func (a ApplicationModel) Task(id TaskID) (Task, bool) {
	for _, t := range a.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// TaskIndex returns the position of the task with the given id, or -1.
func (a ApplicationModel) TaskIndex(id TaskID) int {
	for i, t := range a.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Node returns the node with the given id.
func (p PlatformModel) Node(id NodeID) (PlatformNode, bool) {
	for _, n := range p.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return PlatformNode{}, false
}

// LinkIndex returns the position of the link start->end, or -1.
func (p PlatformModel) LinkIndex(start, end NodeID) int {
	for i, l := range p.Links {
		if l.StartNode == start && l.EndNode == end {
			return i
		}
	}
	return -1
}

// JobInterval is one scheduled execution of a task on a node.
type JobInterval struct {
	TaskID    TaskID  `json:"task_id"`
	NodeID    NodeID  `json:"node_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Schedule is one algorithm's answer.
type Schedule struct {
	Name            string        `json:"name"`
	Schedule        []JobInterval `json:"schedule"`
	MissedDeadlines []TaskID      `json:"missed_deadlines"`
}

// ScheduleResult maps an algorithm key (e.g. "edf") to its schedule.
type ScheduleResult map[string]Schedule
