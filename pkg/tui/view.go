package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/linem-davton/graphdraw/pkg/editor"
	"github.com/linem-davton/graphdraw/pkg/model"
)

const helpText = "tab pane • 1 add • 2 connect • d delete • w cycle • +/- wcet|delay • [/] deadline|bandwidth • g generate • ctrl+s export • ctrl+o import • ctrl+e example • r retry • q quit"

func (m Model) View() string {
	snap := m.sess.Snapshot()
	sel := m.sess.Selection()
	st := m.sess.Schedule()

	title := "graphdraw"
	if st.Pending {
		title = fmt.Sprintf("%s %s scheduling", title, m.spinner.View())
	}
	header := headerStyle.Width(m.width).Render(title)

	app := paneStyle
	plat := paneStyle
	switch sel.Pane {
	case editor.PaneApplication:
		app = activePaneStyle
	case editor.PanePlatform:
		plat = activePaneStyle
	}
	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		app.Render(renderApplication(snap.Application, sel)),
		plat.Render(renderPlatform(snap.Platform, sel)),
	)

	var footer strings.Builder
	for _, w := range m.sess.Warnings() {
		footer.WriteString(warnStyle.Render(w))
		footer.WriteString("\n")
	}
	if m.prompt != promptNone {
		footer.WriteString(m.input.View())
		footer.WriteString("\n")
	}
	switch {
	case m.status == "":
	case m.statusErr:
		footer.WriteString(errorStyle.Render(m.status))
		footer.WriteString("\n")
	default:
		footer.WriteString(okStyle.Render(m.status))
		footer.WriteString("\n")
	}
	footer.WriteString(subtleStyle.Render(helpText))

	return lipgloss.JoinVertical(lipgloss.Left, header, panes, m.viewport.View(), footer.String())
}

func marker(selected bool, line string) string {
	if selected {
		return selectedStyle.Render("> " + line)
	}
	return "  " + line
}

func renderApplication(app model.ApplicationModel, sel editor.Selection) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Application"))
	b.WriteString("\n")
	if len(app.Tasks) == 0 {
		b.WriteString(subtleStyle.Render("No tasks. Press 1 to add one."))
		return b.String()
	}
	for _, t := range app.Tasks {
		selected := sel.Task != nil && *sel.Task == t.ID
		line := fmt.Sprintf("task %d  wcet %s  mcet %s  deadline %s",
			t.ID, formatTime(t.WCET), formatTime(t.MCET), formatTime(t.Deadline))
		b.WriteString(marker(selected, line))
		b.WriteString("\n")
	}
	for _, msg := range app.Messages {
		b.WriteString(subtleStyle.Render(fmt.Sprintf("  msg %d  %d -> %d  size %s", msg.ID, msg.Sender, msg.Receiver, formatTime(msg.Size))))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderPlatform(p model.PlatformModel, sel editor.Selection) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Platform"))
	b.WriteString("\n")
	if len(p.Nodes) == 0 {
		b.WriteString(subtleStyle.Render("No nodes. Press 1 to add one."))
		return b.String()
	}
	for _, n := range p.Nodes {
		b.WriteString(fmt.Sprintf("  node %d  %s\n", n.ID, n.Type))
	}
	for _, l := range p.Links {
		selected := sel.Link != nil && sel.Link.Start == l.StartNode && sel.Link.End == l.EndNode
		line := fmt.Sprintf("link %d  %d -> %d  delay %s  bw %s",
			l.ID, l.StartNode, l.EndNode, formatTime(l.LinkDelay), formatTime(l.Bandwidth))
		b.WriteString(marker(selected, line))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
