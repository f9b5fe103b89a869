package reports

import (
	"fmt"
	"sort"

	"github.com/linem-davton/graphdraw/pkg/model"
)

// NewReportGenerator creates a report generator based on the report type.
func NewReportGenerator(reportType ReportType) (Generator, error) {
	switch reportType {
	case ReportTypeJobs:
		return JobsReport{}, nil
	case ReportTypeMissed:
		return MissedReport{}, nil
	case ReportTypeUtilization:
		return UtilizationReport{}, nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}

func sortedKeys(result model.ScheduleResult, params ReportParams) []string {
	keys := make([]string, 0, len(result))
	for k := range result {
		if params.includes(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
