package reports

import (
	"context"
	"io"
	"sort"
	"strconv"

	"github.com/linem-davton/graphdraw/pkg/model"
)

// JobsReport lists every job interval.
type JobsReport struct{}

func (JobsReport) Generate(ctx context.Context, result model.ScheduleResult, params ReportParams) (io.Reader, error) {
	t, err := newTable("algorithm", "task_id", "node_id", "start_time", "end_time", "duration")
	if err != nil {
		return nil, err
	}
	for _, key := range sortedKeys(result, params) {
		for _, job := range result[key].Schedule {
			err := t.row(ctx,
				key,
				strconv.Itoa(int(job.TaskID)),
				strconv.Itoa(int(job.NodeID)),
				num(job.StartTime),
				num(job.EndTime),
				num(job.EndTime-job.StartTime),
			)
			if err != nil {
				return nil, err
			}
		}
	}
	return t.done()
}

// MissedReport lists the tasks that missed their deadline under each
// algorithm.
type MissedReport struct{}

func (MissedReport) Generate(ctx context.Context, result model.ScheduleResult, params ReportParams) (io.Reader, error) {
	t, err := newTable("algorithm", "name", "task_id")
	if err != nil {
		return nil, err
	}
	for _, key := range sortedKeys(result, params) {
		s := result[key]
		for _, id := range s.MissedDeadlines {
			if err := t.row(ctx, key, s.Name, strconv.Itoa(int(id))); err != nil {
				return nil, err
			}
		}
	}
	return t.done()
}

// UtilizationReport sums busy time per node over the schedule's span.
type UtilizationReport struct{}

func (UtilizationReport) Generate(ctx context.Context, result model.ScheduleResult, params ReportParams) (io.Reader, error) {
	t, err := newTable("algorithm", "node_id", "jobs", "busy", "span", "utilization")
	if err != nil {
		return nil, err
	}
	for _, key := range sortedKeys(result, params) {
		jobs := result[key].Schedule
		if len(jobs) == 0 {
			continue
		}
		start, end := jobs[0].StartTime, jobs[0].EndTime
		busy := map[model.NodeID]float64{}
		count := map[model.NodeID]int{}
		for _, j := range jobs {
			start = min(start, j.StartTime)
			end = max(end, j.EndTime)
			busy[j.NodeID] += j.EndTime - j.StartTime
			count[j.NodeID]++
		}
		span := end - start

		nodes := make([]model.NodeID, 0, len(busy))
		for n := range busy {
			nodes = append(nodes, n)
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

		for _, n := range nodes {
			util := 0.0
			if span > 0 {
				util = busy[n] / span
			}
			err := t.row(ctx,
				key,
				strconv.Itoa(int(n)),
				strconv.Itoa(count[n]),
				num(busy[n]),
				num(span),
				strconv.FormatFloat(util, 'f', 4, 64),
			)
			if err != nil {
				return nil, err
			}
		}
	}
	return t.done()
}
