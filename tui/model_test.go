package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/runstore"
)

type stubSource struct {
	runs    []*domain.Run
	results map[string][]domain.StoredResult
	err     error
}

func (s *stubSource) ListRuns(ctx context.Context, opts runstore.ListOptions) ([]*domain.Run, error) {
	return s.runs, s.err
}

func (s *stubSource) Results(ctx context.Context, runID string) ([]domain.StoredResult, error) {
	return s.results[runID], s.err
}

func testRuns() []*domain.Run {
	base := time.Now().Add(-time.Hour)
	finished := base.Add(3 * time.Second)
	return []*domain.Run{
		{ID: "run-2", Mode: domain.ModeAuto, Status: domain.RunExecuted, StartedAt: base.Add(time.Minute), FinishedAt: &finished,
			Counts: domain.RunCounts{InWindow: 2, OK: 1, Warnings: 1, Succeeded: 2}, Message: "2 executed, 2 succeeded, 0 failed"},
		{ID: "run-1", Mode: domain.ModePreview, Status: domain.RunFailed, StartedAt: base, Message: "read schedule: locked"},
	}
}

func loaded(t *testing.T, m Model) Model {
	t.Helper()
	msg := m.loadRuns()()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestNewModel(t *testing.T) {
	model := NewModel(ModelConfig{Account: "Shop"})

	if model.refresh != 5*time.Second {
		t.Errorf("refresh = %v, want 5s", model.refresh)
	}
	if model.limit != 100 {
		t.Errorf("limit = %d, want 100", model.limit)
	}
	if model.activeTab != TabRuns {
		t.Errorf("activeTab = %d, want TabRuns", model.activeTab)
	}
	if model.View() != "Loading..." {
		t.Errorf("View before size = %q", model.View())
	}
}

func TestModel_LoadsRuns(t *testing.T) {
	src := &stubSource{runs: testRuns()}
	model := loaded(t, NewModel(ModelConfig{Source: src}))

	if len(model.runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(model.runs))
	}
	if model.lastRefresh.IsZero() {
		t.Error("lastRefresh not set")
	}

	src.err = errors.New("database is locked")
	model = loaded(t, model)
	if model.err == nil {
		t.Error("err not set on failed refresh")
	}
	if len(model.runs) != 2 {
		t.Errorf("runs = %d, want previous list kept", len(model.runs))
	}
}

func TestModel_Navigation(t *testing.T) {
	src := &stubSource{runs: testRuns()}
	model := loaded(t, NewModel(ModelConfig{Source: src}))

	newModel, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	model = newModel.(Model)
	if model.selected != 1 {
		t.Errorf("selected = %d, want 1", model.selected)
	}

	// Cannot move past the last run
	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	model = newModel.(Model)
	if model.selected != 1 {
		t.Errorf("selected = %d, want 1", model.selected)
	}

	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	model = newModel.(Model)
	if model.selected != 0 {
		t.Errorf("selected = %d, want 0", model.selected)
	}
}

func TestModel_ResultsTab(t *testing.T) {
	src := &stubSource{
		runs: testRuns(),
		results: map[string][]domain.StoredResult{
			"run-2": {
				{RunID: "run-2", Kind: domain.ResultExecution, ReportRow: domain.ReportRow{
					Campaign: "Campaign A", AssetGroup: "Group 1", MemberType: "LONG_HEADLINE", Member: "Shop Now",
					Action: "ADD", Status: domain.StatusSuccess, Message: "Executed (attempt 1) [Verified ✓]",
				}},
			},
		},
	}
	model := loaded(t, NewModel(ModelConfig{Source: src}))
	model.width, model.height = 160, 40

	newModel, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = newModel.(Model)
	if model.activeTab != TabResults {
		t.Fatalf("activeTab = %d, want TabResults", model.activeTab)
	}
	if cmd == nil {
		t.Fatal("expected a results load command")
	}
	if !strings.Contains(model.View(), "Loading results...") {
		t.Error("expected loading placeholder")
	}

	newModel, _ = model.Update(cmd())
	model = newModel.(Model)
	view := model.View()
	if !strings.Contains(view, "Shop Now") {
		t.Errorf("results view lacks member:\n%s", view)
	}

	// Results of a run that is no longer selected are ignored
	newModel, _ = model.Update(ResultsLoadedMsg{RunID: "run-1"})
	model = newModel.(Model)
	if model.resultsFor != "run-2" {
		t.Errorf("resultsFor = %s, want run-2", model.resultsFor)
	}

	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	model = newModel.(Model)
	if model.activeTab != TabRuns {
		t.Errorf("activeTab = %d, want TabRuns", model.activeTab)
	}
}

func TestModel_TabSwitching(t *testing.T) {
	model := NewModel(ModelConfig{})

	newModel, _ := model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = newModel.(Model)
	if model.activeTab != TabResults {
		t.Errorf("after first tab: activeTab = %d, want TabResults", model.activeTab)
	}

	newModel, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = newModel.(Model)
	if model.activeTab != TabRuns {
		t.Errorf("after wrap: activeTab = %d, want TabRuns", model.activeTab)
	}
}

func TestModel_View(t *testing.T) {
	src := &stubSource{runs: testRuns()}
	model := NewModel(ModelConfig{
		Source:  src,
		Account: "Shop",
		NextRun: func(now time.Time) time.Time { return now.Add(30 * time.Minute) },
	})
	model = loaded(t, model)
	model.width, model.height = 160, 40

	view := model.View()
	for _, want := range []string{"[Shop] Asset Scheduler", "Runs: 2", "Next:", "executed", "failed", "1/1/0"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q", want)
		}
	}
}

func TestModel_EmptyView(t *testing.T) {
	model := NewModel(ModelConfig{})
	model.width, model.height = 100, 30

	if !strings.Contains(model.View(), "No runs recorded yet") {
		t.Error("expected empty placeholder")
	}
}

func TestModel_Quit(t *testing.T) {
	model := NewModel(ModelConfig{})
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"Executed (attempt 1)", 10, "Execute..."},
		{"Überschrift", 5, "Üb..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
