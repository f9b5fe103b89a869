package model

import (
	"errors"
	"fmt"
)

// ValidateMessage checks a proposed sender->receiver message against app.
func ValidateMessage(app ApplicationModel, sender, receiver TaskID) error {
	if _, ok := app.Task(sender); !ok {
		return fmt.Errorf("%w: task %d does not exist", ErrReferential, sender)
	}
	if _, ok := app.Task(receiver); !ok {
		return fmt.Errorf("%w: task %d does not exist", ErrReferential, receiver)
	}
	if sender == receiver {
		return fmt.Errorf("%w: sender and receiver cannot be the same", ErrSelfLoop)
	}
	for _, m := range app.Messages {
		if m.Sender == sender && m.Receiver == receiver {
			return fmt.Errorf("%w: dependency %d->%d already exists", ErrDuplicateEdge, sender, receiver)
		}
	}
	return nil
}

// ValidateLink checks a proposed start->end link against platform.
func ValidateLink(platform PlatformModel, start, end NodeID) error {
	a, ok := platform.Node(start)
	if !ok {
		return fmt.Errorf("%w: node %d does not exist", ErrReferential, start)
	}
	b, ok := platform.Node(end)
	if !ok {
		return fmt.Errorf("%w: node %d does not exist", ErrReferential, end)
	}
	if start == end {
		return fmt.Errorf("%w: start node and end node cannot be the same", ErrSelfLoop)
	}
	if a.Type != NodeRouter && b.Type != NodeRouter {
		return fmt.Errorf("%w: one node must be a router (%d is %s, %d is %s)", ErrEndpointConstraint, start, a.Type, end, b.Type)
	}
	if platform.LinkIndex(start, end) >= 0 {
		return fmt.Errorf("%w: link %d->%d already exists", ErrDuplicateEdge, start, end)
	}
	return nil
}

// ValidateCombined checks a whole document: unique ids, and every message
// and link replayed through the same rules the store applies on insert.
// All violations are returned joined.
func ValidateCombined(m CombinedModel) error {
	var errs []error

	app := ApplicationModel{}
	seenTasks := make(map[TaskID]struct{}, len(m.Application.Tasks))
	for _, t := range m.Application.Tasks {
		if _, dup := seenTasks[t.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate task id %d", ErrSchema, t.ID))
			continue
		}
		seenTasks[t.ID] = struct{}{}
		app.Tasks = append(app.Tasks, t)
	}
	seenMessages := make(map[MessageID]struct{}, len(m.Application.Messages))
	for _, msg := range m.Application.Messages {
		if _, dup := seenMessages[msg.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate message id %d", ErrSchema, msg.ID))
			continue
		}
		seenMessages[msg.ID] = struct{}{}
		if err := ValidateMessage(app, msg.Sender, msg.Receiver); err != nil {
			errs = append(errs, fmt.Errorf("message %d: %w", msg.ID, err))
			continue
		}
		app.Messages = append(app.Messages, msg)
	}

	platform := PlatformModel{}
	seenNodes := make(map[NodeID]struct{}, len(m.Platform.Nodes))
	for _, n := range m.Platform.Nodes {
		if _, dup := seenNodes[n.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate node id %d", ErrSchema, n.ID))
			continue
		}
		if !n.Type.Valid() {
			errs = append(errs, fmt.Errorf("%w: node %d has invalid type %q", ErrSchema, n.ID, n.Type))
			continue
		}
		seenNodes[n.ID] = struct{}{}
		platform.Nodes = append(platform.Nodes, n)
	}
	seenLinks := make(map[LinkID]struct{}, len(m.Platform.Links))
	for _, l := range m.Platform.Links {
		if _, dup := seenLinks[l.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate link id %d", ErrSchema, l.ID))
			continue
		}
		seenLinks[l.ID] = struct{}{}
		if err := ValidateLink(platform, l.StartNode, l.EndNode); err != nil {
			errs = append(errs, fmt.Errorf("link %d: %w", l.ID, err))
			continue
		}
		platform.Links = append(platform.Links, l)
	}

	return errors.Join(errs...)
}

// CheckTaskTiming reports advisory warnings for a task whose timing
// parameters break mcet <= wcet < deadline. These are never errors.
func CheckTaskTiming(t Task) []string {
	var warnings []string
	if t.MCET > t.WCET {
		warnings = append(warnings, fmt.Sprintf("task %d: mcet %g exceeds wcet %g", t.ID, t.MCET, t.WCET))
	}
	if t.Deadline <= t.WCET {
		warnings = append(warnings, fmt.Sprintf("task %d: deadline %g is not after wcet %g", t.ID, t.Deadline, t.WCET))
	}
	return warnings
}

// CheckTimings runs CheckTaskTiming over every task of app.
func CheckTimings(app ApplicationModel) []string {
	var warnings []string
	for _, t := range app.Tasks {
		warnings = append(warnings, CheckTaskTiming(t)...)
	}
	return warnings
}
