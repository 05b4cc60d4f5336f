package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/asset-scheduler/internal/batch"
	"github.com/hochfrequenz/asset-scheduler/internal/config"
	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/pipeline"
)

func sampleRun() *domain.Run {
	started := time.Date(2025, 11, 16, 10, 1, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	return &domain.Run{
		ID:         "0f8fad5b-d9cb-469f-a165-70867728950e",
		Mode:       domain.ModeAuto,
		Status:     domain.RunExecuted,
		StartedAt:  started,
		FinishedAt: &finished,
		Counts:     domain.RunCounts{Rows: 4, InWindow: 1, OK: 1, Executed: 1, Succeeded: 1},
		Message:    "1 executed, 1 succeeded, 0 failed",
	}
}

func TestPrintRuns_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := printRuns(&buf, "table", []*domain.Run{sampleRun()}); err != nil {
		t.Fatalf("printRuns: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"0f8fad5b", "executed", "1.5s", "1/0/0", "1 executed, 1 succeeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "d9cb") {
		t.Error("run id should be shortened in tables")
	}
}

func TestPrintRuns_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printRuns(&buf, "json", []*domain.Run{sampleRun()}); err != nil {
		t.Fatalf("printRuns: %v", err)
	}
	var got []runView
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].Counts.Succeeded != 1 || got[0].Duration != "1.5s" {
		t.Errorf("got %+v", got)
	}
}

func TestPrintRunDetail_YAML(t *testing.T) {
	results := []domain.StoredResult{
		{Kind: domain.ResultPreview, ReportRow: domain.ReportRow{Member: "Winter Sale", Status: domain.StatusOK}},
		{Kind: domain.ResultExecution, ReportRow: domain.ReportRow{Member: "Shop Now", Status: domain.StatusSuccess}},
	}
	var buf bytes.Buffer
	if err := printRunDetail(&buf, "yaml", sampleRun(), results); err != nil {
		t.Fatalf("printRunDetail: %v", err)
	}

	var got map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["status"] != "executed" {
		t.Errorf("status = %v", got["status"])
	}
	preview, _ := got["preview"].([]any)
	res, _ := got["results"].([]any)
	if len(preview) != 1 || len(res) != 1 {
		t.Errorf("preview = %v, results = %v", preview, res)
	}
}

func TestPrintRuns_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := printRuns(&buf, "xml", nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &pipeline.Result{
		Run:     sampleRun(),
		Results: []domain.ReportRow{{Campaign: "Campaign A", Member: "Shop Now", Action: "ADD", Status: domain.StatusSuccess, Message: "Executed (attempt 1) [Verified ✓]"}},
	})
	out := buf.String()
	if !strings.Contains(out, "Run 0f8fad5b: executed") {
		t.Errorf("summary missing:\n%s", out)
	}
	if !strings.Contains(out, "Results (1 rows)") || !strings.Contains(out, "[Verified ✓]") {
		t.Errorf("results missing:\n%s", out)
	}
}

func TestPrintStatus(t *testing.T) {
	cfg := config.Default()
	cfg.General.AccountName = "Shop"
	sched, err := batch.NewScheduler(cfg.BatchJobs(), time.UTC, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	var buf bytes.Buffer
	now := time.Date(2025, 11, 16, 10, 30, 0, 0, time.UTC)
	if err := printStatus(&buf, cfg, sched, nil, now); err != nil {
		t.Fatalf("printStatus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Account:  Shop", "Last run: never", "hourly", "1 * * * *", "2025-11-16 11:01"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestNextRun(t *testing.T) {
	jobs := []batch.Job{
		{Name: "hourly", Cron: "1 * * * *"},
		{Name: "evening", Cron: "50 23 * * *", Mode: domain.ModePreview},
	}
	sched, err := batch.NewScheduler(jobs, time.UTC, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	now := time.Date(2025, 11, 16, 23, 30, 0, 0, time.UTC)
	if got := nextRun(sched, now); !got.Equal(time.Date(2025, 11, 16, 23, 50, 0, 0, time.UTC)) {
		t.Errorf("nextRun = %v, want 23:50", got)
	}
}
