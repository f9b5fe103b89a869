// Package reports renders schedule results as CSV tables.
package reports

import (
	"context"
	"io"

	"github.com/linem-davton/graphdraw/pkg/model"
)

type ReportType string

const (
	ReportTypeJobs        ReportType = "jobs"
	ReportTypeMissed      ReportType = "missed"
	ReportTypeUtilization ReportType = "utilization"
)

// ReportParams narrows a report.
type ReportParams struct {
	// Algorithms limits the report to these algorithm keys. Empty means all.
	Algorithms []string
}

func (p ReportParams) includes(key string) bool {
	if len(p.Algorithms) == 0 {
		return true
	}
	for _, a := range p.Algorithms {
		if a == key {
			return true
		}
	}
	return false
}

type Generator interface {
	Generate(ctx context.Context, result model.ScheduleResult, params ReportParams) (io.Reader, error)
}
