// Package observer tracks runs in memory, exports them as Prometheus
// metrics and fans run events out to listeners
package observer

import (
	"sync"
	"time"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// EventType names what happened
type EventType string

const (
	EventRunStarted  EventType = "run_started"
	EventRunFinished EventType = "run_finished"
	EventOutcome     EventType = "outcome"
)

// Event is a notable point in a run
type Event struct {
	Type    EventType       `json:"type"`
	Time    time.Time       `json:"time"`
	RunID   string          `json:"run_id"`
	Run     *domain.Run     `json:"run,omitempty"`
	Outcome *domain.Outcome `json:"outcome,omitempty"`
}

// Listener receives events; it must not block
type Listener func(Event)

// Observer monitors runs and collects metrics
type Observer struct {
	stuckThreshold time.Duration
	keep           int

	runs      []domain.Run
	current   *domain.Run
	listeners []Listener
	mu        sync.RWMutex
}

// Metrics holds aggregated metrics over the remembered runs
type Metrics struct {
	TotalRuns   int
	Executed    int
	Skipped     int
	Failed      int
	Succeeded   int // operations
	FailedOps   int
	AvgDuration time.Duration
}

// New creates a new Observer that remembers the last 100 runs
func New(stuckThreshold time.Duration) *Observer {
	return &Observer{
		stuckThreshold: stuckThreshold,
		keep:           100,
	}
}

// Subscribe registers a listener for all future events
func (o *Observer) Subscribe(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

func (o *Observer) publish(e Event) {
	o.mu.RLock()
	listeners := append([]Listener(nil), o.listeners...)
	o.mu.RUnlock()
	for _, l := range listeners {
		l(e)
	}
}

// IsStuck returns true if a run has been in progress for too long
func (o *Observer) IsStuck(run *domain.Run) bool {
	if run == nil || run.Status != domain.RunRunning {
		return false
	}
	return time.Since(run.StartedAt) > o.stuckThreshold
}

// RunStarted marks a run as in flight
func (o *Observer) RunStarted(run *domain.Run) {
	o.mu.Lock()
	cp := *run
	o.current = &cp
	o.mu.Unlock()

	getMetrics().runInFlight.Set(1)
	o.publish(Event{Type: EventRunStarted, Time: run.StartedAt, RunID: run.ID, Run: &cp})
}

// RecordVerdicts counts validation statuses
func (o *Observer) RecordVerdicts(verdicts []*domain.Verdict) {
	m := getMetrics()
	for _, v := range verdicts {
		m.verdictsTotal.WithLabelValues(string(v.Status)).Inc()
	}
}

// RecordOutcome counts one executed operation and forwards it to listeners
func (o *Observer) RecordOutcome(runID string, out domain.Outcome) {
	getMetrics().operationsTotal.WithLabelValues(string(out.Action), string(out.Status)).Inc()
	o.publish(Event{Type: EventOutcome, Time: time.Now(), RunID: runID, Outcome: &out})
}

// RunFinished records a finished run
func (o *Observer) RunFinished(run *domain.Run) {
	cp := *run
	o.mu.Lock()
	o.current = nil
	o.runs = append(o.runs, cp)
	if len(o.runs) > o.keep {
		o.runs = o.runs[len(o.runs)-o.keep:]
	}
	o.mu.Unlock()

	m := getMetrics()
	m.runInFlight.Set(0)
	m.runsTotal.WithLabelValues(string(run.Mode), string(run.Status)).Inc()
	m.conflictsTotal.Add(float64(run.Counts.Conflicts))
	m.duplicatesTotal.Add(float64(run.Counts.Duplicates))
	if run.FinishedAt != nil {
		m.runDuration.WithLabelValues(string(run.Mode)).Observe(run.Duration().Seconds())
		m.lastRun.Set(float64(run.FinishedAt.Unix()))
	}

	o.publish(Event{Type: EventRunFinished, Time: time.Now(), RunID: run.ID, Run: &cp})
}

// Current returns the run in flight, if any
func (o *Observer) Current() (domain.Run, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return domain.Run{}, false
	}
	return *o.current, true
}

// GetMetrics returns aggregated metrics
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var metrics Metrics
	var totalDuration time.Duration

	for _, r := range o.runs {
		metrics.TotalRuns++
		switch r.Status {
		case domain.RunExecuted:
			metrics.Executed++
		case domain.RunSkipped:
			metrics.Skipped++
		case domain.RunFailed:
			metrics.Failed++
		}
		metrics.Succeeded += r.Counts.Succeeded
		metrics.FailedOps += r.Counts.Failed
		totalDuration += r.Duration()
	}

	if metrics.TotalRuns > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(metrics.TotalRuns)
	}

	return metrics
}

// GetRecentRuns returns the ids of runs started within the last duration
func (o *Observer) GetRecentRuns(since time.Duration) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := time.Now().Add(-since)
	var result []string

	for _, r := range o.runs {
		if r.StartedAt.After(cutoff) {
			result = append(result, r.ID)
		}
	}

	return result
}
