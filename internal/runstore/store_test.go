package runstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndGetRun(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	started := time.Date(2025, 11, 16, 9, 5, 0, 0, time.UTC)
	run := &domain.Run{
		ID:        "run-1",
		Mode:      domain.ModeAuto,
		Status:    domain.RunRunning,
		StartedAt: started,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	finished := started.Add(42 * time.Second)
	run.Status = domain.RunExecuted
	run.FinishedAt = &finished
	run.Fingerprint = "abc"
	run.Counts = domain.RunCounts{Rows: 5, Executed: 2, Succeeded: 1, Failed: 1}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunExecuted {
		t.Errorf("Status = %q, want executed", got.Status)
	}
	if got.Counts != run.Counts {
		t.Errorf("Counts = %+v, want %+v", got.Counts, run.Counts)
	}
	if got.Duration() != 42*time.Second {
		t.Errorf("Duration = %v, want 42s", got.Duration())
	}
	if got.Fingerprint != "abc" {
		t.Errorf("Fingerprint = %q", got.Fingerprint)
	}
}

func TestStore_GetRunNotFound(t *testing.T) {
	store := newStore(t)
	_, err := store.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListRuns(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 16, 0, 5, 0, 0, time.UTC)

	for i, status := range []domain.RunStatus{domain.RunSkipped, domain.RunExecuted, domain.RunSkipped} {
		run := &domain.Run{
			ID:        string(rune('a' + i)),
			Mode:      domain.ModeAuto,
			Status:    status,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListRuns(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].ID != "c" {
		t.Errorf("first run = %q, want newest (c)", all[0].ID)
	}

	skipped, err := store.ListRuns(ctx, ListOptions{Status: domain.RunSkipped, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped) != 1 || skipped[0].ID != "c" {
		t.Errorf("skipped = %+v, want [c]", skipped)
	}

	recent, err := store.ListRuns(ctx, ListOptions{Since: base.Add(30 * time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Errorf("recent = %d runs, want 2", len(recent))
	}
}

func TestStore_Results(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if err := store.SaveRun(ctx, &domain.Run{ID: "r", Mode: domain.ModeAuto, Status: domain.RunExecuted, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	rows := []domain.ReportRow{
		{Campaign: "Campaign A", Member: "Shop Now", Action: "ADD", Status: domain.StatusSuccess, Message: "Executed (attempt 1) [Verified ✓]"},
		{Campaign: "Campaign A", Member: "555", Action: "REMOVE", Status: domain.StatusError, Message: "Error: boom"},
	}
	if err := store.SaveResults(ctx, "r", domain.ResultExecution, rows); err != nil {
		t.Fatal(err)
	}

	got, err := store.Results(ctx, "r")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ReportRow != rows[0] || got[1].ReportRow != rows[1] {
		t.Errorf("rows not preserved in order: %+v", got)
	}
	if got[0].Kind != domain.ResultExecution {
		t.Errorf("Kind = %q", got[0].Kind)
	}
}

func TestStore_ResultsRequireRun(t *testing.T) {
	store := newStore(t)
	err := store.SaveResults(context.Background(), "nope", domain.ResultPreview, []domain.ReportRow{{}})
	if err == nil {
		t.Error("expected foreign key violation")
	}
}

func TestStore_Fingerprint(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	v, err := store.Fingerprint(ctx, FingerprintKey)
	if err != nil || v != "" {
		t.Fatalf("empty store: %q, %v", v, err)
	}
	for _, want := range []string{"first", "second"} {
		if err := store.SaveFingerprint(ctx, FingerprintKey, want); err != nil {
			t.Fatal(err)
		}
		if got, _ := store.Fingerprint(ctx, FingerprintKey); got != want {
			t.Errorf("Fingerprint = %q, want %q", got, want)
		}
	}
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveFingerprint(context.Background(), FingerprintKey, "kept"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if got, _ := store.Fingerprint(context.Background(), FingerprintKey); got != "kept" {
		t.Errorf("Fingerprint = %q, want kept", got)
	}
}
