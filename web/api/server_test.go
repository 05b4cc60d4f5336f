package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/observer"
	"github.com/hochfrequenz/asset-scheduler/internal/runstore"
)

func newTestStore(t *testing.T) *runstore.Store {
	t.Helper()
	store, err := runstore.New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRun(t *testing.T, store *runstore.Store, id string, status domain.RunStatus, started time.Time) *domain.Run {
	t.Helper()
	finished := started.Add(2 * time.Second)
	run := &domain.Run{
		ID:         id,
		Mode:       domain.ModeAuto,
		Status:     status,
		StartedAt:  started,
		FinishedAt: &finished,
		Counts:     domain.RunCounts{Rows: 3, Executed: 1, Succeeded: 1},
	}
	if err := store.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	return run
}

type fakeJobs struct {
	mu        sync.Mutex
	running   string
	triggered []string
}

func (f *fakeJobs) ListJobs() []string { return []string{"hourly"} }

func (f *fakeJobs) NextRun(name string, now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour + time.Minute)
}

func (f *fakeJobs) LastRun(name string) (time.Time, error) { return time.Time{}, nil }

func (f *fakeJobs) Running() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, f.running != ""
}

func (f *fakeJobs) Trigger(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, name)
	return true, nil
}

func (f *fakeJobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.triggered)
}

func TestListRunsHandler(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour).UTC()
	seedRun(t, store, "run-1", domain.RunExecuted, base)
	seedRun(t, store, "run-2", domain.RunSkipped, base.Add(time.Minute))

	server := NewServer(store, nil, nil, ":0", nil)
	handler := server.listRunsHandler()

	req := httptest.NewRequest("GET", "/api/runs", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}

	var runs []RunResponse
	json.NewDecoder(w.Body).Decode(&runs)

	if len(runs) != 2 {
		t.Fatalf("Run count = %d, want 2", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Errorf("First run = %s, want run-2 (newest first)", runs[0].ID)
	}
	if runs[1].Duration != "2s" {
		t.Errorf("Duration = %s, want 2s", runs[1].Duration)
	}

	req = httptest.NewRequest("GET", "/api/runs?status=executed", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	runs = nil
	json.NewDecoder(w.Body).Decode(&runs)
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("Filtered runs = %+v, want only run-1", runs)
	}

	req = httptest.NewRequest("GET", "/api/runs?limit=x", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
}

func TestGetRunHandler(t *testing.T) {
	store := newTestStore(t)
	seedRun(t, store, "run-1", domain.RunExecuted, time.Now().UTC())
	err := store.SaveResults(context.Background(), "run-1", domain.ResultExecution, []domain.ReportRow{
		{Campaign: "Campaign A", Member: "Shop Now", Action: "ADD", Status: domain.StatusSuccess, Message: "Executed (attempt 1)"},
	})
	if err != nil {
		t.Fatalf("save results: %v", err)
	}

	server := NewServer(store, nil, nil, ":0", nil)
	handler := server.getRunHandler()

	req := httptest.NewRequest("GET", "/api/runs/run-1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	var detail RunDetailResponse
	json.NewDecoder(w.Body).Decode(&detail)
	if detail.ID != "run-1" {
		t.Errorf("ID = %s, want run-1", detail.ID)
	}
	if len(detail.Results) != 1 || detail.Results[0].Member != "Shop Now" {
		t.Errorf("Results = %+v", detail.Results)
	}
	if len(detail.Preview) != 0 {
		t.Errorf("Preview = %+v, want empty", detail.Preview)
	}

	req = httptest.NewRequest("GET", "/api/runs/missing", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	store := newTestStore(t)
	seedRun(t, store, "run-1", domain.RunExecuted, time.Now().UTC())

	obs := observer.New(time.Hour)
	current := &domain.Run{ID: "run-2", Mode: domain.ModeAuto, Status: domain.RunRunning, StartedAt: time.Now()}
	obs.RunStarted(current)

	server := NewServer(store, obs, &fakeJobs{running: "hourly"}, ":0", nil)
	handler := server.statusHandler()

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var status StatusResponse
	json.NewDecoder(w.Body).Decode(&status)

	if !status.Running || status.Current == nil || status.Current.ID != "run-2" {
		t.Errorf("Current = %+v, want run-2 running", status.Current)
	}
	if status.LastRun == nil || status.LastRun.ID != "run-1" {
		t.Errorf("LastRun = %+v, want run-1", status.LastRun)
	}
	if status.RunningJob != "hourly" {
		t.Errorf("RunningJob = %q, want hourly", status.RunningJob)
	}
}

func TestJobsHandlers(t *testing.T) {
	jobs := &fakeJobs{}
	server := NewServer(newTestStore(t), nil, jobs, ":0", nil)

	req := httptest.NewRequest("GET", "/api/jobs", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var list []JobResponse
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 1 || list[0].Name != "hourly" || list[0].NextRun == nil {
		t.Errorf("Jobs = %+v", list)
	}

	req = httptest.NewRequest("POST", "/api/jobs/hourly/trigger", nil)
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("Status = %d, want 202", w.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for jobs.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if jobs.count() != 1 {
		t.Errorf("Triggered = %d, want 1", jobs.count())
	}

	req = httptest.NewRequest("POST", "/api/jobs/nightly/trigger", nil)
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}

	jobs.mu.Lock()
	jobs.running = "hourly"
	jobs.mu.Unlock()
	req = httptest.NewRequest("POST", "/api/jobs/hourly/trigger", nil)
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("Status = %d, want 409", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	obs := observer.New(time.Hour)
	server := NewServer(newTestStore(t), obs, nil, ":0", nil)
	run := &domain.Run{ID: "run-1", Mode: domain.ModeAuto, StartedAt: time.Now()}
	obs.RunStarted(run)
	finished := time.Now()
	run.Status, run.FinishedAt = domain.RunExecuted, &finished
	obs.RunFinished(run)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "asset_scheduler_runs_total") {
		t.Error("metrics output lacks asset_scheduler_runs_total")
	}
}

func TestEventsWebsocket(t *testing.T) {
	obs := observer.New(time.Hour)
	server := NewServer(newTestStore(t), obs, nil, ":0", nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for server.hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.hub.Clients() != 1 {
		t.Fatalf("Clients = %d, want 1", server.hub.Clients())
	}

	obs.RunStarted(&domain.Run{ID: "run-9", Mode: domain.ModeDryRun, Status: domain.RunRunning, StartedAt: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type string      `json:"type"`
		Data RunResponse `json:"data"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Type != "run_started" {
		t.Errorf("Type = %s, want run_started", got.Type)
	}
	if got.Data.ID != "run-9" || got.Data.Mode != "dry-run" {
		t.Errorf("Data = %+v", got.Data)
	}
}

func TestHub_DropsSlowClients(t *testing.T) {
	hub := NewHub()
	ch := hub.register()
	for i := 0; i < clientBuf+1; i++ {
		hub.Broadcast(Event{Type: "tick"})
	}
	if hub.Clients() != 0 {
		t.Errorf("Clients = %d, want slow client dropped", hub.Clients())
	}
	n := 0
	for range ch {
		n++
	}
	if n != clientBuf {
		t.Errorf("Buffered = %d, want %d", n, clientBuf)
	}
}
