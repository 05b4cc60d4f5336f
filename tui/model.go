package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/runstore"
)

// Tab selects the visible panel
type Tab int

const (
	TabRuns Tab = iota
	TabResults
	tabCount
)

// Source is the run history the dashboard reads
type Source interface {
	ListRuns(ctx context.Context, opts runstore.ListOptions) ([]*domain.Run, error)
	Results(ctx context.Context, runID string) ([]domain.StoredResult, error)
}

// Model is the TUI application model
type Model struct {
	// Data
	src     Source
	account string
	runs    []*domain.Run
	results []domain.StoredResult
	// resultsFor is the run whose results are loaded
	resultsFor string
	nextRun    func(now time.Time) time.Time
	err        error

	// UI state
	width     int
	height    int
	activeTab Tab
	selected  int
	scroll    int

	// Refresh
	refresh     time.Duration
	limit       int
	lastRefresh time.Time
	now         func() time.Time
}

// ModelConfig holds initial settings for the TUI model
type ModelConfig struct {
	Source  Source
	Account string
	// NextRun returns the next scheduled run; nil hides it.
	NextRun func(now time.Time) time.Time
	Refresh time.Duration
	Limit   int
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	if cfg.Refresh <= 0 {
		cfg.Refresh = 5 * time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	return Model{
		src:     cfg.Source,
		account: cfg.Account,
		nextRun: cfg.NextRun,
		refresh: cfg.Refresh,
		limit:   cfg.Limit,
		now:     time.Now,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadRuns(),
		tickCmd(m.refresh),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

// RunsLoadedMsg carries a fresh run list
type RunsLoadedMsg struct {
	Runs []*domain.Run
	Err  error
}

// ResultsLoadedMsg carries the report rows of one run
type ResultsLoadedMsg struct {
	RunID   string
	Results []domain.StoredResult
	Err     error
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) loadRuns() tea.Cmd {
	src, limit := m.src, m.limit
	return func() tea.Msg {
		if src == nil {
			return RunsLoadedMsg{}
		}
		runs, err := src.ListRuns(context.Background(), runstore.ListOptions{Limit: limit})
		return RunsLoadedMsg{Runs: runs, Err: err}
	}
}

func (m Model) loadResults(runID string) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		if src == nil {
			return ResultsLoadedMsg{RunID: runID}
		}
		results, err := src.Results(context.Background(), runID)
		return ResultsLoadedMsg{RunID: runID, Results: results, Err: err}
	}
}

// selectedRun returns the highlighted run
func (m Model) selectedRun() *domain.Run {
	if m.selected < 0 || m.selected >= len(m.runs) {
		return nil
	}
	return m.runs[m.selected]
}
