package editor

import (
	"fmt"

	"github.com/linem-davton/graphdraw/pkg/model"
)

// Update is a single field edit. The set of updates is closed.
type Update interface {
	isUpdate()
}

type SetWcet struct {
	Task  model.TaskID
	Value float64
}

type SetDeadline struct {
	Task  model.TaskID
	Value float64
}

type SetLinkDelay struct {
	Link  model.LinkID
	Value float64
}

type SetBandwidth struct {
	Link  model.LinkID
	Value float64
}

func (SetWcet) isUpdate()      {}
func (SetDeadline) isUpdate()  {}
func (SetLinkDelay) isUpdate() {}
func (SetBandwidth) isUpdate() {}

// Apply commits u. Values are stored as given; range clamping belongs to
// the input surface.
func (s *Session) Apply(u Update) error {
	s.mu.Lock()
	switch u := u.(type) {
	case SetWcet:
		t, err := s.taskLocked(u.Task)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		t.WCET = u.Value
	case SetDeadline:
		t, err := s.taskLocked(u.Task)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		t.Deadline = u.Value
	case SetLinkDelay:
		l, err := s.linkLocked(u.Link)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		l.LinkDelay = u.Value
	case SetBandwidth:
		l, err := s.linkLocked(u.Link)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		l.Bandwidth = u.Value
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: unsupported update %T", model.ErrInvalidParameters, u)
	}
	s.commitLocked(ChangeField)
	return nil
}

func (s *Session) taskLocked(id model.TaskID) (*model.Task, error) {
	idx := s.model.Application.TaskIndex(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: task %d does not exist", model.ErrReferential, id)
	}
	return &s.model.Application.Tasks[idx], nil
}

func (s *Session) linkLocked(id model.LinkID) (*model.Link, error) {
	for i := range s.model.Platform.Links {
		if s.model.Platform.Links[i].ID == id {
			return &s.model.Platform.Links[i], nil
		}
	}
	return nil, fmt.Errorf("%w: link %d does not exist", model.ErrReferential, id)
}

// TaskUpdate builds the update for a named task field ("wcet" or "deadline").
func TaskUpdate(id model.TaskID, field string, value float64) (Update, error) {
	switch field {
	case "wcet":
		return SetWcet{Task: id, Value: value}, nil
	case "deadline":
		return SetDeadline{Task: id, Value: value}, nil
	}
	return nil, fmt.Errorf("%w: task field %q is not editable", model.ErrInvalidParameters, field)
}

// LinkUpdate builds the update for a named link field ("link_delay" or
// "bandwidth").
func LinkUpdate(id model.LinkID, field string, value float64) (Update, error) {
	switch field {
	case "link_delay":
		return SetLinkDelay{Link: id, Value: value}, nil
	case "bandwidth":
		return SetBandwidth{Link: id, Value: value}, nil
	}
	return nil, fmt.Errorf("%w: link field %q is not editable", model.ErrInvalidParameters, field)
}

// Warnings returns the advisory timing warnings for the current tasks.
func (s *Session) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CheckTimings(s.model.Application)
}

// Range is the inclusive range of a slider control.
type Range struct {
	Min, Max float64
}

// Clamp limits v to r.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

var (
	WcetRange      = Range{Min: 1, Max: 100}
	DeadlineRange  = Range{Min: 1, Max: 1000}
	DelayRange     = Range{Min: 1, Max: 100}
	BandwidthRange = Range{Min: 1, Max: 100}
)
