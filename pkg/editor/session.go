package editor

import (
	"context"
	"fmt"
	"sync"

	"github.com/linem-davton/graphdraw/pkg/model"
)

// Scheduler accepts models to schedule. Neither method may block.
type Scheduler interface {
	Request(ctx context.Context, m model.CombinedModel)
	// Invalidate drops any request in flight without issuing a new one.
	Invalidate()
}

// ChangeKind classifies a committed change.
type ChangeKind string

const (
	ChangeTopology  ChangeKind = "topology"
	ChangeField     ChangeKind = "field"
	ChangeReplace   ChangeKind = "replace"
	ChangeSelection ChangeKind = "selection"
	ChangeSchedule  ChangeKind = "schedule"
)

// Change is delivered to subscribers after every committed change.
type Change struct {
	Kind     ChangeKind
	Revision uint64
}

// ScheduleState is the latest scheduling outcome as seen by the session.
type ScheduleState struct {
	Result  model.ScheduleResult
	Err     error
	Pending bool
}

// Session is the single owner of an application and a platform model.
// Every mutation goes through its methods; callers only ever see copies.
type Session struct {
	mu sync.Mutex

	id        string
	model     model.CombinedModel
	selection Selection
	revision  uint64
	schedule  ScheduleState

	nextTask    model.TaskID
	nextMessage model.MessageID
	nextNode    model.NodeID
	nextLink    model.LinkID

	scheduler Scheduler
	// issueMu orders calls into scheduler; issued is the revision of the
	// newest one. A commit older than issued is not forwarded.
	issueMu sync.Mutex
	issued  uint64

	subscribers map[int]func(Change)
	nextSub     int
}

// NewSession creates an empty session.
func NewSession(id string) *Session {
	return &Session{
		id:          id,
		model:       model.NewCombinedModel(),
		subscribers: make(map[int]func(Change)),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SetScheduler attaches the scheduler that receives models after changes.
func (s *Session) SetScheduler(sch Scheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler = sch
}

// Subscribe registers fn for every committed change and returns a function
// that removes it. fn runs outside the session lock.
func (s *Session) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Snapshot returns a deep copy of both models.
func (s *Session) Snapshot() model.CombinedModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Clone()
}

// Revision returns the number of committed changes so far.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Schedule returns the latest scheduling state.
func (s *Session) Schedule() ScheduleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// AddTask appends a task and selects it.
func (s *Session) AddTask(wcet, mcet, deadline float64) model.TaskID {
	s.mu.Lock()
	id := s.nextTask
	s.nextTask++
	s.model.Application.Tasks = append(s.model.Application.Tasks, model.Task{
		ID:       id,
		WCET:     wcet,
		MCET:     mcet,
		Deadline: deadline,
	})
	s.selection.Task = &id
	s.commitLocked(ChangeTopology)
	return id
}

// AddMessage appends a sender->receiver message.
func (s *Session) AddMessage(sender, receiver model.TaskID, size, injectionTime float64) (model.MessageID, error) {
	s.mu.Lock()
	if err := model.ValidateMessage(s.model.Application, sender, receiver); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	id := s.nextMessage
	s.nextMessage++
	s.model.Application.Messages = append(s.model.Application.Messages, model.Message{
		ID:                   id,
		Sender:               sender,
		Receiver:             receiver,
		Size:                 size,
		MessageInjectionTime: injectionTime,
	})
	s.commitLocked(ChangeTopology)
	return id, nil
}

// DeleteTask removes a task and every message incident to it. When the task
// was selected, the selection moves to the task that preceded it, or the
// new first task, or nothing when no task remains.
func (s *Session) DeleteTask(id model.TaskID) error {
	s.mu.Lock()
	app := &s.model.Application
	idx := app.TaskIndex(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: task %d does not exist", model.ErrReferential, id)
	}
	app.Tasks = append(app.Tasks[:idx:idx], app.Tasks[idx+1:]...)

	kept := app.Messages[:0:0]
	for _, m := range app.Messages {
		if m.Sender != id && m.Receiver != id {
			kept = append(kept, m)
		}
	}
	app.Messages = kept

	if s.selection.Task != nil && *s.selection.Task == id {
		s.selection.Task = reanchor(app.Tasks, idx)
	}
	s.commitLocked(ChangeTopology)
	return nil
}

func reanchor(tasks []model.Task, deleted int) *model.TaskID {
	if len(tasks) == 0 {
		return nil
	}
	pos := deleted - 1
	if pos < 0 {
		pos = 0
	}
	if pos >= len(tasks) {
		pos = len(tasks) - 1
	}
	id := tasks[pos].ID
	return &id
}

// AddNode appends a platform node.
func (s *Session) AddNode(t model.NodeType) (model.NodeID, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: invalid node type %q", model.ErrInvalidParameters, t)
	}
	s.mu.Lock()
	id := s.nextNode
	s.nextNode++
	s.model.Platform.Nodes = append(s.model.Platform.Nodes, model.PlatformNode{ID: id, Type: t})
	s.commitLocked(ChangeTopology)
	return id, nil
}

// AddLink appends a start->end ethernet link and selects it.
func (s *Session) AddLink(start, end model.NodeID, delay, bandwidth float64) (model.LinkID, error) {
	s.mu.Lock()
	if err := model.ValidateLink(s.model.Platform, start, end); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	id := s.nextLink
	s.nextLink++
	s.model.Platform.Links = append(s.model.Platform.Links, model.Link{
		ID:        id,
		StartNode: start,
		EndNode:   end,
		LinkDelay: delay,
		Bandwidth: bandwidth,
		Type:      model.LinkTypeEthernet,
	})
	s.selection.Link = &LinkRef{Start: start, End: end}
	s.commitLocked(ChangeTopology)
	return id, nil
}

// DeleteNode removes a node and every link incident to it.
func (s *Session) DeleteNode(id model.NodeID) error {
	s.mu.Lock()
	p := &s.model.Platform
	idx := -1
	for i, n := range p.Nodes {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: node %d does not exist", model.ErrReferential, id)
	}
	p.Nodes = append(p.Nodes[:idx:idx], p.Nodes[idx+1:]...)

	kept := p.Links[:0:0]
	for _, l := range p.Links {
		if l.StartNode != id && l.EndNode != id {
			kept = append(kept, l)
		}
	}
	p.Links = kept

	if ref := s.selection.Link; ref != nil && (ref.Start == id || ref.End == id) {
		s.selection.Link = nil
	}
	s.commitLocked(ChangeTopology)
	return nil
}

// DeleteLink removes the link with exactly this ordered endpoint pair.
func (s *Session) DeleteLink(start, end model.NodeID) error {
	s.mu.Lock()
	p := &s.model.Platform
	idx := p.LinkIndex(start, end)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: link %d->%d does not exist", model.ErrReferential, start, end)
	}
	p.Links = append(p.Links[:idx:idx], p.Links[idx+1:]...)
	if ref := s.selection.Link; ref != nil && ref.Start == start && ref.End == end {
		s.selection.Link = nil
	}
	s.commitLocked(ChangeTopology)
	return nil
}

// Replace swaps both models wholesale after checking referential integrity.
// Id counters resume after the highest id in each collection.
func (s *Session) Replace(m model.CombinedModel) error {
	s.mu.Lock()
	return s.replaceLocked(m)
}

// replaceLocked must be called with s.mu held and leaves it released.
func (s *Session) replaceLocked(m model.CombinedModel) error {
	if err := model.ValidateCombined(m); err != nil {
		s.mu.Unlock()
		return err
	}
	s.model = normalize(m.Clone())
	s.resetCountersLocked()
	s.selection.Task = nil
	s.selection.Link = nil
	s.commitLocked(ChangeReplace)
	return nil
}

// ReplaceApplication swaps only the application model.
func (s *Session) ReplaceApplication(app model.ApplicationModel) error {
	s.mu.Lock()
	return s.replaceLocked(model.CombinedModel{Application: app, Platform: s.model.Platform})
}

// ReplacePlatform swaps only the platform model.
func (s *Session) ReplacePlatform(p model.PlatformModel) error {
	s.mu.Lock()
	return s.replaceLocked(model.CombinedModel{Application: s.model.Application, Platform: p})
}

// RequestSchedule sends the current model to the attached scheduler.
func (s *Session) RequestSchedule() error {
	s.mu.Lock()
	if !s.model.Schedulable() {
		s.schedule = ScheduleState{Err: model.ErrNothingToSchedule}
		s.commitLocked(ChangeSchedule)
		return model.ErrNothingToSchedule
	}
	sch := s.scheduler
	snapshot := s.model.Clone()
	rev := s.revision
	s.schedule.Pending = sch != nil
	s.mu.Unlock()
	if sch != nil {
		s.issue(rev, func() { sch.Request(context.Background(), snapshot) })
	}
	return nil
}

// ApplySchedule records a scheduling outcome. A success replaces the result
// and clears any error; a failure records the error. A result arriving
// while the model is no longer schedulable is dropped.
func (s *Session) ApplySchedule(result model.ScheduleResult, err error) {
	s.mu.Lock()
	if err == nil && !s.model.Schedulable() {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.schedule = ScheduleState{Err: err}
	} else {
		s.schedule = ScheduleState{Result: result}
	}
	s.commitLocked(ChangeSchedule)
}

// commitLocked bumps the revision, applies the schedule side effects for
// kind, releases the lock and notifies subscribers. It must be called with
// s.mu held and leaves it released.
func (s *Session) commitLocked(kind ChangeKind) {
	s.revision++
	change := Change{Kind: kind, Revision: s.revision}

	var (
		sch         Scheduler
		snapshot    model.CombinedModel
		schedulable bool
	)
	switch kind {
	case ChangeTopology, ChangeReplace, ChangeField:
		if kind != ChangeField {
			s.schedule.Result = nil
		}
		if s.scheduler != nil {
			sch = s.scheduler
			schedulable = s.model.Schedulable()
			s.schedule.Pending = schedulable
			if schedulable {
				snapshot = s.model.Clone()
			}
		}
	}

	subs := make([]func(Change), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	if sch != nil {
		s.issue(change.Revision, func() {
			if schedulable {
				sch.Request(context.Background(), snapshot)
			} else {
				sch.Invalidate()
			}
		})
	}
	for _, fn := range subs {
		fn(change)
	}
}

// issue runs fn unless a call for a newer revision has already been made.
// fn may deliver synchronously into ApplySchedule, so s.mu must not be held.
func (s *Session) issue(rev uint64, fn func()) {
	s.issueMu.Lock()
	defer s.issueMu.Unlock()
	if rev < s.issued {
		return
	}
	s.issued = rev
	fn()
}

func (s *Session) resetCountersLocked() {
	s.nextTask, s.nextMessage, s.nextNode, s.nextLink = 0, 0, 0, 0
	for _, t := range s.model.Application.Tasks {
		if t.ID >= s.nextTask {
			s.nextTask = t.ID + 1
		}
	}
	for _, m := range s.model.Application.Messages {
		if m.ID >= s.nextMessage {
			s.nextMessage = m.ID + 1
		}
	}
	for _, n := range s.model.Platform.Nodes {
		if n.ID >= s.nextNode {
			s.nextNode = n.ID + 1
		}
	}
	for _, l := range s.model.Platform.Links {
		if l.ID >= s.nextLink {
			s.nextLink = l.ID + 1
		}
	}
}

// normalize fills in the link type the original documents often omit.
func normalize(m model.CombinedModel) model.CombinedModel {
	for i := range m.Platform.Links {
		if m.Platform.Links[i].Type == "" {
			m.Platform.Links[i].Type = model.LinkTypeEthernet
		}
	}
	return m
}
