package reports

import (
	"context"
	"encoding/csv"
	"testing"

	"github.com/linem-davton/graphdraw/pkg/model"
)

func sampleResult() model.ScheduleResult {
	return model.ScheduleResult{
		"rms": {
			Name: "RMS",
			Schedule: []model.JobInterval{
				{TaskID: 0, NodeID: 1, StartTime: 0, EndTime: 10},
				{TaskID: 1, NodeID: 1, StartTime: 10, EndTime: 15},
				{TaskID: 2, NodeID: 0, StartTime: 5, EndTime: 20},
			},
		},
		"edf": {
			Name:            "EDF",
			Schedule:        []model.JobInterval{{TaskID: 0, NodeID: 0, StartTime: 0, EndTime: 2.5}},
			MissedDeadlines: []model.TaskID{1, 2},
		},
	}
}

func readRows(t *testing.T, g Generator, params ReportParams) [][]string {
	t.Helper()
	r, err := g.Generate(context.Background(), sampleResult(), params)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	return rows
}

func TestJobsReport(t *testing.T) {
	rows := readRows(t, JobsReport{}, ReportParams{})

	expectedHeaders := []string{"algorithm", "task_id", "node_id", "start_time", "end_time", "duration"}
	for i, h := range expectedHeaders {
		if rows[0][i] != h {
			t.Errorf("Header mismatch at %d: expected %s, got %s", i, h, rows[0][i])
		}
	}
	if len(rows) != 5 {
		t.Fatalf("Expected 5 rows (header + 4 jobs), got %d", len(rows))
	}
	if rows[1][0] != "edf" || rows[1][4] != "2.5" || rows[1][5] != "2.5" {
		t.Errorf("Unexpected first row: %v", rows[1])
	}
	if rows[4][0] != "rms" || rows[4][1] != "2" || rows[4][5] != "15" {
		t.Errorf("Unexpected last row: %v", rows[4])
	}
}

func TestMissedReport(t *testing.T) {
	rows := readRows(t, MissedReport{}, ReportParams{})
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[1][1] != "EDF" || rows[1][2] != "1" || rows[2][2] != "2" {
		t.Errorf("Unexpected rows: %v", rows)
	}
}

func TestUtilizationReport(t *testing.T) {
	rows := readRows(t, UtilizationReport{}, ReportParams{Algorithms: []string{"rms"}})
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	// rms spans 0..20; node 0 is busy 15, node 1 is busy 15 over two jobs.
	if got := rows[1]; got[1] != "0" || got[2] != "1" || got[3] != "15" || got[4] != "20" || got[5] != "0.7500" {
		t.Errorf("Unexpected node 0 row: %v", got)
	}
	if got := rows[2]; got[1] != "1" || got[2] != "2" || got[5] != "0.7500" {
		t.Errorf("Unexpected node 1 row: %v", got)
	}
}

func TestReportParamsFilter(t *testing.T) {
	rows := readRows(t, JobsReport{}, ReportParams{Algorithms: []string{"edf"}})
	if len(rows) != 2 {
		t.Fatalf("Expected only edf rows, got %v", rows)
	}
}

func TestNewReportGenerator(t *testing.T) {
	for _, typ := range []ReportType{ReportTypeJobs, ReportTypeMissed, ReportTypeUtilization} {
		if _, err := NewReportGenerator(typ); err != nil {
			t.Errorf("NewReportGenerator(%s) failed: %v", typ, err)
		}
	}
	if _, err := NewReportGenerator("events"); err == nil {
		t.Error("Expected error for unknown report type")
	}
}

func TestGenerateHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (JobsReport{}).Generate(ctx, sampleResult(), ReportParams{}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
