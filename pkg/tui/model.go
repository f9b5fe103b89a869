// Package tui is the keyboard-driven terminal editor for graphdraw models.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linem-davton/graphdraw/pkg/blob"
	"github.com/linem-davton/graphdraw/pkg/editor"
	"github.com/linem-davton/graphdraw/pkg/generator"
	"github.com/linem-davton/graphdraw/pkg/interchange"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/model"
	"github.com/linem-davton/graphdraw/pkg/store"
)

const (
	viewportHeight = 14
	ioTimeout      = 10 * time.Second

	wcetStep      = 1
	deadlineStep  = 10
	delayStep     = 1
	bandwidthStep = 1
)

// Retrier re-issues the last scheduling request.
type Retrier interface {
	Retry(ctx context.Context) error
}

// Options wires the editor to its session and storage.
type Options struct {
	Session *editor.Session
	// Retrier backs the r key. Nil falls back to Session.RequestSchedule.
	Retrier Retrier
	// Files is where ctrl+s and ctrl+o write and read updated_data.json.
	Files blob.Store
	// Models receives autosaves under Key. Nil disables autosave.
	Models    store.ModelStore
	Key       string
	Validator *interchange.Validator
	Rand      *rand.Rand
	Logger    *slog.Logger
}

type promptKind int

const (
	promptNone promptKind = iota
	promptNodeType
	promptMessage
	promptLink
)

func (p promptKind) label() string {
	switch p {
	case promptNodeType:
		return "Node type (0-compute 1-router 2-sensor 3-actuator): "
	case promptMessage:
		return "Message sender receiver: "
	case promptLink:
		return "Link start end: "
	}
	return ""
}

type changeMsg editor.Change

type statusMsg struct {
	text string
	err  error
}

type savedMsg struct{ err error }

// Model is the bubbletea model of the editor.
type Model struct {
	opts    Options
	sess    *editor.Session
	changes chan editor.Change
	stop    func()

	spinner  spinner.Model
	viewport viewport.Model
	input    textinput.Model
	prompt   promptKind

	status    string
	statusErr bool
	width     int
}

// New builds the editor model and subscribes it to the session.
func New(opts Options) Model {
	if opts.Key == "" {
		opts.Key = store.DefaultKey
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	in := textinput.New()
	in.CharLimit = 32

	vp := viewport.New(100, viewportHeight)
	vp.Style = scheduleStyle

	changes := make(chan editor.Change, 64)
	stop := opts.Session.Subscribe(func(c editor.Change) {
		select {
		case changes <- c:
		default:
		}
	})

	m := Model{
		opts:     opts,
		sess:     opts.Session,
		changes:  changes,
		stop:     stop,
		spinner:  s,
		viewport: vp,
		input:    in,
		width:    100,
	}
	m.refresh()
	return m
}

// Close detaches the editor from its session.
func (m Model) Close() {
	if m.stop != nil {
		m.stop()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForChange())
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		return changeMsg(<-ch)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.prompt != promptNone {
			return m.updatePrompt(msg)
		}
		return m.handleKey(msg)

	case changeMsg:
		m.refresh()
		cmds := []tea.Cmd{m.waitForChange()}
		switch editor.ChangeKind(msg.Kind) {
		case editor.ChangeTopology, editor.ChangeField, editor.ChangeReplace:
			if save := m.autosave(); save != nil {
				cmds = append(cmds, save)
			}
		}
		return m, tea.Batch(cmds...)

	case statusMsg:
		m.setStatus(msg.text, msg.err)
		m.refresh()

	case savedMsg:
		if msg.err != nil {
			m.setStatus("", fmt.Errorf("autosave: %w", msg.err))
		}

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
		m.refresh()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sel := m.sess.Selection()

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		p := m.sess.TogglePane()
		m.setStatus(fmt.Sprintf("%s pane", p), nil)

	case "1":
		switch sel.Pane {
		case editor.PaneApplication:
			d := editor.Defaults
			id := m.sess.AddTask(d.TaskWCET, d.TaskMCET, d.TaskDeadline)
			m.setStatus(fmt.Sprintf("Added task %d", id), nil)
		case editor.PanePlatform:
			return m.openPrompt(promptNodeType)
		default:
			m.setStatus("", errNoPane)
		}

	case "2":
		switch sel.Pane {
		case editor.PaneApplication:
			return m.openPrompt(promptMessage)
		case editor.PanePlatform:
			return m.openPrompt(promptLink)
		default:
			m.setStatus("", errNoPane)
		}

	case "d", "delete":
		if err := m.sess.DeleteSelected(); err != nil {
			m.setStatus("", err)
		} else {
			m.setStatus("Deleted selection", nil)
		}

	case "w":
		switch sel.Pane {
		case editor.PaneApplication:
			if id, ok := m.sess.CycleTaskSelection(); ok {
				m.setStatus(fmt.Sprintf("Task %d selected", id), nil)
			}
		case editor.PanePlatform:
			if ref, ok := m.sess.CycleLinkSelection(); ok {
				m.setStatus(fmt.Sprintf("Link %d -> %d selected", ref.Start, ref.End), nil)
			}
		}

	case "+", "=":
		m.nudge(sel, true, 1)
	case "-":
		m.nudge(sel, true, -1)
	case "]":
		m.nudge(sel, false, 1)
	case "[":
		m.nudge(sel, false, -1)

	case "g":
		cm, err := generator.GenerateCombined(generator.DefaultApplicationParams(), generator.DefaultPlatformParams(), m.opts.Rand)
		if err == nil {
			err = m.sess.Replace(cm)
		}
		if err != nil {
			m.setStatus("", err)
		} else {
			m.setStatus(fmt.Sprintf("Generated %d tasks and %d nodes", len(cm.Application.Tasks), len(cm.Platform.Nodes)), nil)
		}

	case "ctrl+e":
		if err := m.sess.LoadExample(); err != nil {
			m.setStatus("", err)
		} else {
			m.setStatus("Loaded example", nil)
		}

	case "ctrl+s":
		return m, m.exportCmd()

	case "ctrl+o":
		return m, m.importCmd()

	case "r":
		if err := m.retry(); err != nil {
			m.setStatus("", err)
		} else {
			m.setStatus("Rescheduling", nil)
		}

	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	m.refresh()
	return m, nil
}

var errNoPane = errors.New("press tab to choose a pane")

// nudge moves the first (wcet/link delay) or second (deadline/bandwidth)
// slider of the selected item by dir steps, clamped to the slider range.
func (m *Model) nudge(sel editor.Selection, first bool, dir float64) {
	snap := m.sess.Snapshot()
	var (
		u   editor.Update
		msg string
	)
	switch sel.Pane {
	case editor.PaneApplication:
		if sel.Task == nil {
			m.setStatus("", editor.ErrNothingSelected)
			return
		}
		t, ok := snap.Application.Task(*sel.Task)
		if !ok {
			m.setStatus("", editor.ErrNothingSelected)
			return
		}
		if first {
			v := editor.WcetRange.Clamp(t.WCET + dir*wcetStep)
			u, msg = editor.SetWcet{Task: t.ID, Value: v}, fmt.Sprintf("Task %d wcet %s", t.ID, formatTime(v))
		} else {
			v := editor.DeadlineRange.Clamp(t.Deadline + dir*deadlineStep)
			u, msg = editor.SetDeadline{Task: t.ID, Value: v}, fmt.Sprintf("Task %d deadline %s", t.ID, formatTime(v))
		}
	case editor.PanePlatform:
		if sel.Link == nil {
			m.setStatus("", editor.ErrNothingSelected)
			return
		}
		idx := snap.Platform.LinkIndex(sel.Link.Start, sel.Link.End)
		if idx < 0 {
			m.setStatus("", editor.ErrNothingSelected)
			return
		}
		l := snap.Platform.Links[idx]
		if first {
			v := editor.DelayRange.Clamp(l.LinkDelay + dir*delayStep)
			u, msg = editor.SetLinkDelay{Link: l.ID, Value: v}, fmt.Sprintf("Link %d delay %s", l.ID, formatTime(v))
		} else {
			v := editor.BandwidthRange.Clamp(l.Bandwidth + dir*bandwidthStep)
			u, msg = editor.SetBandwidth{Link: l.ID, Value: v}, fmt.Sprintf("Link %d bandwidth %s", l.ID, formatTime(v))
		}
	default:
		m.setStatus("", errNoPane)
		return
	}
	if err := m.sess.Apply(u); err != nil {
		m.setStatus("", err)
		return
	}
	m.setStatus(msg, nil)
}

func (m Model) openPrompt(p promptKind) (tea.Model, tea.Cmd) {
	m.prompt = p
	m.input.Reset()
	m.input.Prompt = p.label()
	return m, m.input.Focus()
}

func (m Model) closePrompt() Model {
	m.prompt = promptNone
	m.input.Blur()
	m.input.Reset()
	return m
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m = m.closePrompt()
		m.setStatus("Cancelled", nil)
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	case "enter":
		value := m.input.Value()
		kind := m.prompt
		m = m.closePrompt()
		m.submitPrompt(kind, value)
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submitPrompt(kind promptKind, value string) {
	d := editor.Defaults
	switch kind {
	case promptNodeType:
		t, err := model.ParseNodeType(strings.TrimSpace(value))
		if err != nil {
			m.setStatus("", fmt.Errorf("%w: %v", model.ErrInvalidParameters, err))
			return
		}
		id, err := m.sess.AddNode(t)
		if err != nil {
			m.setStatus("", err)
			return
		}
		m.setStatus(fmt.Sprintf("Added %s node %d", t, id), nil)

	case promptMessage:
		a, b, err := parsePair(value)
		if err != nil {
			m.setStatus("", err)
			return
		}
		id, err := m.sess.AddMessage(model.TaskID(a), model.TaskID(b), d.MessageSize, d.MessageInjectionTime)
		if err != nil {
			m.setStatus("", err)
			return
		}
		m.setStatus(fmt.Sprintf("Added message %d: %d -> %d", id, a, b), nil)

	case promptLink:
		a, b, err := parsePair(value)
		if err != nil {
			m.setStatus("", err)
			return
		}
		id, err := m.sess.AddLink(model.NodeID(a), model.NodeID(b), d.LinkDelay, d.LinkBandwidth)
		if err != nil {
			m.setStatus("", err)
			return
		}
		m.setStatus(fmt.Sprintf("Added link %d: %d -> %d", id, a, b), nil)
	}
}

// parsePair reads two ids separated by spaces or a comma.
func parsePair(s string) (int, int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: expected two ids, got %q", model.ErrInvalidParameters, s)
	}
	a, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q is not an id", model.ErrInvalidParameters, fields[0])
	}
	b, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q is not an id", model.ErrInvalidParameters, fields[1])
	}
	return a, b, nil
}

func (m Model) retry() error {
	if m.opts.Retrier != nil {
		if err := m.opts.Retrier.Retry(context.Background()); err == nil {
			return nil
		}
	}
	return m.sess.RequestSchedule()
}

func (m Model) exportCmd() tea.Cmd {
	files, snap := m.opts.Files, m.sess.Snapshot()
	return func() tea.Msg {
		if files == nil {
			return statusMsg{err: errNoFiles}
		}
		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		defer cancel()
		name, err := interchange.Download(ctx, files, snap)
		if err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "Saved " + name}
	}
}

func (m Model) importCmd() tea.Cmd {
	files, sess := m.opts.Files, m.sess
	opts := interchange.ImportOptions{Validator: m.opts.Validator}
	return func() tea.Msg {
		if files == nil {
			return statusMsg{err: errNoFiles}
		}
		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		defer cancel()
		cm, err := interchange.Upload(ctx, files, interchange.ExportFileName, opts)
		if err == nil {
			err = sess.Replace(cm)
		}
		if err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "Loaded " + interchange.ExportFileName}
	}
}

var errNoFiles = errors.New("no file store configured")

// autosave stores the model once both graphs are non-empty.
func (m Model) autosave() tea.Cmd {
	if m.opts.Models == nil {
		return nil
	}
	snap := m.sess.Snapshot()
	if !snap.Schedulable() {
		return nil
	}
	models, key, logger := m.opts.Models, m.opts.Key, m.opts.Logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		defer cancel()
		err := models.Save(ctx, key, snap)
		if err != nil {
			logger.Warn("Autosave failed", "key", key, "error", err)
		}
		return savedMsg{err: err}
	}
}

func (m *Model) setStatus(text string, err error) {
	if err != nil {
		m.status, m.statusErr = model.UserMessage(err), true
		return
	}
	m.status, m.statusErr = text, false
}

// refresh re-renders the schedule panel.
func (m *Model) refresh() {
	st := m.sess.Schedule()
	var b strings.Builder
	switch {
	case st.Err != nil:
		b.WriteString(errorStyle.Render(model.UserMessage(st.Err)))
		b.WriteString("\n")
	case len(st.Result) == 0:
		b.WriteString(subtleStyle.Render("No schedule yet."))
		b.WriteString("\n")
	default:
		for _, line := range MissedDeadlines(st.Result) {
			b.WriteString(errorStyle.Render(line))
			b.WriteString("\n")
		}
		b.WriteString(RenderGantt(st.Result, max(m.width-20, minChartWidth)))
	}
	m.viewport.SetContent(b.String())
}
