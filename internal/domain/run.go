package domain

import "time"

// RunMode selects how far a run may go
type RunMode string

const (
	ModeAuto    RunMode = "auto"
	ModePreview RunMode = "preview"
	ModeDryRun  RunMode = "dry-run"
)

// RunStatus represents the end state of a run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSkipped   RunStatus = "skipped"
	RunPreviewed RunStatus = "previewed"
	RunExecuted  RunStatus = "executed"
	RunFailed    RunStatus = "failed"
)

// Run is one invocation of the reconciliation pipeline
type Run struct {
	ID          string
	Mode        RunMode
	Status      RunStatus
	StartedAt   time.Time
	FinishedAt  *time.Time
	Fingerprint string
	Counts      RunCounts
	Message     string
}

// RunCounts summarises a run
type RunCounts struct {
	Rows       int
	InRange    int
	InWindow   int
	OK         int
	Warnings   int
	Errors     int
	Conflicts  int
	Duplicates int
	Executed   int
	Succeeded  int
	Failed     int
}

// Duration returns how long a finished run took
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ResultKind tells preview rows from execution rows in the run history
type ResultKind string

const (
	ResultPreview   ResultKind = "preview"
	ResultExecution ResultKind = "execution"
)

// StoredResult is a report row persisted with its run
type StoredResult struct {
	ID    int64
	RunID string
	Kind  ResultKind
	ReportRow
}
