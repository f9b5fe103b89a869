package tui

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/linem-davton/graphdraw/pkg/model"
)

const minChartWidth = 10

// MissedDeadlines returns one "name: t1,t2 Missed Deadline" line per
// algorithm that missed any deadline, ordered by algorithm key.
func MissedDeadlines(result model.ScheduleResult) []string {
	var lines []string
	for _, key := range algorithmKeys(result) {
		s := result[key]
		if len(s.MissedDeadlines) == 0 {
			continue
		}
		ids := make([]string, len(s.MissedDeadlines))
		for i, id := range s.MissedDeadlines {
			ids[i] = strconv.Itoa(int(id))
		}
		lines = append(lines, fmt.Sprintf("%s: %s Missed Deadline", displayName(key, s), strings.Join(ids, ",")))
	}
	return lines
}

// RenderGantt draws every algorithm's schedule as a text chart with one row
// per node. width is the number of columns for the time axis.
func RenderGantt(result model.ScheduleResult, width int) string {
	if width < minChartWidth {
		width = minChartWidth
	}
	var b strings.Builder
	for i, key := range algorithmKeys(result) {
		if i > 0 {
			b.WriteString("\n")
		}
		renderOne(&b, displayName(key, result[key]), result[key].Schedule, width)
	}
	return b.String()
}

func renderOne(b *strings.Builder, name string, jobs []model.JobInterval, width int) {
	b.WriteString(titleStyle.Render(name))
	b.WriteString("\n")
	if len(jobs) == 0 {
		b.WriteString(subtleStyle.Render("  no jobs"))
		b.WriteString("\n")
		return
	}

	start, end := math.Inf(1), math.Inf(-1)
	rows := map[model.NodeID][]model.JobInterval{}
	for _, j := range jobs {
		start = math.Min(start, j.StartTime)
		end = math.Max(end, j.EndTime)
		rows[j.NodeID] = append(rows[j.NodeID], j)
	}
	span := end - start
	if span <= 0 {
		span = 1
	}
	col := func(t float64) int {
		c := int(math.Round((t - start) / span * float64(width)))
		return min(max(c, 0), width)
	}

	nodes := make([]model.NodeID, 0, len(rows))
	for id := range rows {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	for _, id := range nodes {
		cells := []rune(strings.Repeat(".", width))
		for _, j := range rows[id] {
			lo, hi := col(j.StartTime), col(j.EndTime)
			if hi == lo && hi < width {
				hi = lo + 1
			}
			mark := taskRune(j.TaskID)
			for c := lo; c < hi; c++ {
				cells[c] = mark
			}
		}
		fmt.Fprintf(b, "  node %-3d |%s|\n", id, string(cells))
	}
	fmt.Fprintf(b, "  %-8s  %-*s%s\n", "", width-len(formatTime(end))+1, formatTime(start), formatTime(end))
}

// taskRune labels a task cell with its id in base 36.
func taskRune(id model.TaskID) rune {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if id < 0 {
		return '?'
	}
	return rune(digits[int(id)%len(digits)])
}

func formatTime(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

func algorithmKeys(result model.ScheduleResult) []string {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func displayName(key string, s model.Schedule) string {
	if s.Name != "" {
		return s.Name
	}
	return strings.ToUpper(key)
}
