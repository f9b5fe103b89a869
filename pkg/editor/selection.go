package editor

import (
	"errors"
	"fmt"

	"github.com/linem-davton/graphdraw/pkg/model"
)

// ErrNothingSelected is returned by DeleteSelected when the active pane has
// no selection.
var ErrNothingSelected = errors.New("nothing selected")

// Pane is the graph that keyboard actions apply to.
type Pane string

const (
	PaneNone        Pane = ""
	PaneApplication Pane = "application"
	PanePlatform    Pane = "platform"
)

// LinkRef names a link by its ordered endpoint pair.
type LinkRef struct {
	Start model.NodeID `json:"start_node"`
	End   model.NodeID `json:"end_node"`
}

// Selection is the highlighted state of a session.
type Selection struct {
	Pane Pane          `json:"pane"`
	Task *model.TaskID `json:"task,omitempty"`
	Link *LinkRef      `json:"link,omitempty"`
}

func (sel Selection) clone() Selection {
	out := Selection{Pane: sel.Pane}
	if sel.Task != nil {
		id := *sel.Task
		out.Task = &id
	}
	if sel.Link != nil {
		ref := *sel.Link
		out.Link = &ref
	}
	return out
}

// Selection returns a copy of the current selection.
func (s *Session) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.clone()
}

// SelectPane sets the active pane.
func (s *Session) SelectPane(p Pane) error {
	switch p {
	case PaneNone, PaneApplication, PanePlatform:
	default:
		return fmt.Errorf("%w: unknown pane %q", model.ErrInvalidParameters, p)
	}
	s.mu.Lock()
	s.selection.Pane = p
	s.commitLocked(ChangeSelection)
	return nil
}

// TogglePane switches between the application and platform panes.
func (s *Session) TogglePane() Pane {
	s.mu.Lock()
	if s.selection.Pane == PaneApplication {
		s.selection.Pane = PanePlatform
	} else {
		s.selection.Pane = PaneApplication
	}
	p := s.selection.Pane
	s.commitLocked(ChangeSelection)
	return p
}

// SelectTask highlights the task with the given id.
func (s *Session) SelectTask(id model.TaskID) error {
	s.mu.Lock()
	if s.model.Application.TaskIndex(id) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: task %d does not exist", model.ErrReferential, id)
	}
	s.selection.Task = &id
	s.commitLocked(ChangeSelection)
	return nil
}

// SelectLink highlights the link start->end.
func (s *Session) SelectLink(start, end model.NodeID) error {
	s.mu.Lock()
	if s.model.Platform.LinkIndex(start, end) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: link %d->%d does not exist", model.ErrReferential, start, end)
	}
	s.selection.Link = &LinkRef{Start: start, End: end}
	s.commitLocked(ChangeSelection)
	return nil
}

// CycleTaskSelection moves the task highlight to the next task, wrapping
// around. With no selection it picks the first task.
func (s *Session) CycleTaskSelection() (model.TaskID, bool) {
	s.mu.Lock()
	tasks := s.model.Application.Tasks
	if len(tasks) == 0 {
		s.selection.Task = nil
		s.commitLocked(ChangeSelection)
		return 0, false
	}
	next := 0
	if cur := s.selection.Task; cur != nil {
		if idx := s.model.Application.TaskIndex(*cur); idx >= 0 {
			next = (idx + 1) % len(tasks)
		}
	}
	id := tasks[next].ID
	s.selection.Task = &id
	s.commitLocked(ChangeSelection)
	return id, true
}

// CycleLinkSelection moves the link highlight to the next link, wrapping
// around.
func (s *Session) CycleLinkSelection() (LinkRef, bool) {
	s.mu.Lock()
	links := s.model.Platform.Links
	if len(links) == 0 {
		s.selection.Link = nil
		s.commitLocked(ChangeSelection)
		return LinkRef{}, false
	}
	next := 0
	if cur := s.selection.Link; cur != nil {
		if idx := s.model.Platform.LinkIndex(cur.Start, cur.End); idx >= 0 {
			next = (idx + 1) % len(links)
		}
	}
	ref := LinkRef{Start: links[next].StartNode, End: links[next].EndNode}
	s.selection.Link = &ref
	s.commitLocked(ChangeSelection)
	return ref, true
}

// DeleteSelected deletes the selected task or link of the active pane.
func (s *Session) DeleteSelected() error {
	sel := s.Selection()
	switch {
	case sel.Pane == PaneApplication && sel.Task != nil:
		return s.DeleteTask(*sel.Task)
	case sel.Pane == PanePlatform && sel.Link != nil:
		return s.DeleteLink(sel.Link.Start, sel.Link.End)
	}
	return ErrNothingSelected
}
