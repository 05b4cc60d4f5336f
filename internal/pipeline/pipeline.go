// Package pipeline runs one reconciliation of the schedule workbook against
// the campaign platform: read, filter, validate, execute, verify and report.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/asset-scheduler/internal/catalog"
	"github.com/hochfrequenz/asset-scheduler/internal/conflict"
	"github.com/hochfrequenz/asset-scheduler/internal/dedup"
	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/executor"
	"github.com/hochfrequenz/asset-scheduler/internal/logging"
	"github.com/hochfrequenz/asset-scheduler/internal/merge"
	"github.com/hochfrequenz/asset-scheduler/internal/notify"
	"github.com/hochfrequenz/asset-scheduler/internal/observer"
	"github.com/hochfrequenz/asset-scheduler/internal/retry"
	"github.com/hochfrequenz/asset-scheduler/internal/runstore"
	"github.com/hochfrequenz/asset-scheduler/internal/scheduler"
	"github.com/hochfrequenz/asset-scheduler/internal/sheet"
	"github.com/hochfrequenz/asset-scheduler/internal/validator"
	"github.com/hochfrequenz/asset-scheduler/internal/verify"
)

// Options selects how far a run may go
type Options struct {
	Mode domain.RunMode
	// Force validates even when nothing is due and the schedule is unchanged.
	Force bool
}

// Result is what a run produced
type Result struct {
	Run     *domain.Run
	Preview []domain.ReportRow
	Results []domain.ReportRow
}

// Runner holds everything a run needs. Store, Fingerprints, Notifier and
// Observer are optional.
type Runner struct {
	Source       sheet.Source
	Platform     catalog.Platform
	Store        *runstore.Store
	Fingerprints runstore.Fingerprints
	Notifier     notify.Notifier
	Observer     *observer.Observer
	Log          *logrus.Entry

	Location    *time.Location
	Clock       func() time.Time
	HorizonDays int
	ChunkSize   int
	Executor    executor.Config
	Verify      retry.Policy
	Rules       validator.Rules
	Report      notify.ReportOptions
}

// New returns a runner with the default horizon, chunking, executor and
// verification settings
func New(src sheet.Source, p catalog.Platform, log *logrus.Entry) *Runner {
	return &Runner{
		Source:      src,
		Platform:    p,
		Log:         logging.OrNop(log),
		Location:    time.UTC,
		Clock:       time.Now,
		HorizonDays: scheduler.DefaultHorizonDays,
		ChunkSize:   catalog.DefaultChunkSize,
		Executor:    executor.DefaultConfig(),
		Verify:      verify.Policy(),
		Rules:       validator.DefaultRules(),
	}
}

// run is the state of one invocation
type run struct {
	*Runner
	opts   Options
	rc     scheduler.RunContext
	record *domain.Run
	log    *logrus.Entry
	res    *Result
}

// Run performs one reconciliation. Row-level problems end up in the
// reports; an error is returned only when the run could not proceed.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Mode == "" {
		opts.Mode = domain.ModeAuto
	}
	now := r.Clock()
	rn := &run{
		Runner: r,
		opts:   opts,
		rc:     scheduler.NewRunContext(r.Location, now),
		record: &domain.Run{
			ID:        uuid.NewString(),
			Mode:      opts.Mode,
			Status:    domain.RunRunning,
			StartedAt: now,
		},
	}
	rn.log = logging.OrNop(r.Log).WithFields(logrus.Fields{"run_id": rn.record.ID, "mode": opts.Mode})
	rn.res = &Result{Run: rn.record}
	ctx = logging.WithContext(ctx, rn.log)

	rn.log.WithField("now", rn.rc.Stamp()).Info("Run started")
	rn.saveRun(ctx)
	if r.Observer != nil {
		r.Observer.RunStarted(rn.record)
	}

	status, msg, err := rn.execute(ctx)
	if err != nil {
		status, msg = domain.RunFailed, err.Error()
	}
	finished := r.Clock()
	rn.record.Status = status
	rn.record.Message = msg
	rn.record.FinishedAt = &finished
	rn.saveRun(context.WithoutCancel(ctx))
	if r.Observer != nil {
		r.Observer.RunFinished(rn.record)
	}

	entry := rn.log.WithFields(logrus.Fields{"status": status, "duration": finished.Sub(now).Round(time.Millisecond)})
	if err != nil {
		entry.WithError(err).Error("Run failed")
		return rn.res, err
	}
	entry.WithField("message", msg).Info("Run finished")
	return rn.res, nil
}

func (rn *run) execute(ctx context.Context) (domain.RunStatus, string, error) {
	sched, err := rn.Source.ReadSchedule(ctx)
	if err != nil {
		return "", "", fmt.Errorf("read schedule: %w", err)
	}
	for name, serr := range sched.Errors {
		rn.log.WithError(serr).WithField("sheet", name).Error("Sheet skipped")
	}

	rows := rn.nonEmpty(sched.Rows())
	rn.record.Counts.Rows = len(rows)
	if len(rows) == 0 {
		rn.clearPreview(ctx)
		return domain.RunSkipped, "No schedule rows", nil
	}

	inRange := scheduler.FilterHorizon(rn.rc, rows, rn.HorizonDays)
	rn.record.Counts.InRange = len(inRange)
	if len(inRange) == 0 {
		rn.clearPreview(ctx)
		return domain.RunSkipped, fmt.Sprintf("No rows within %d days", rn.HorizonDays), nil
	}

	fp := Fingerprint(inRange)
	rn.record.Fingerprint = fp
	changed := rn.fingerprintChanged(ctx, fp)

	var windowActions []domain.ResolvedAction
	var previewRows []*domain.ScheduleRow
	var rejected []*domain.ScheduleRow
	problems := make(map[domain.RowID][]string)
	for _, row := range inRange {
		res := scheduler.Resolve(rn.rc, row)
		if rn.opts.Mode == domain.ModePreview || res.Actions.Len() == 0 {
			previewRows = append(previewRows, row)
			continue
		}
		windowActions = append(windowActions, res.Actions.Items()...)
		if len(res.Problems) > 0 {
			rejected = append(rejected, row)
			problems[row.ID] = res.Problems
		}
	}
	rn.record.Counts.InWindow = len(windowActions)
	rn.log.WithFields(logrus.Fields{
		"rows":      len(rows),
		"in_range":  len(inRange),
		"in_window": len(windowActions),
		"changed":   changed,
	}).Info("Schedule evaluated")

	if len(windowActions) == 0 && !changed && !rn.opts.Force {
		return domain.RunSkipped, "Schedule unchanged and nothing due", nil
	}

	snap, err := rn.snapshot(ctx, inRange)
	if err != nil {
		return "", "", err
	}

	ids := &domain.IDSource{}
	v := validator.New(snap, rn.rc, rn.Rules, ids, rn.log)
	var previewVerdicts, windowVerdicts []*domain.Verdict
	var ops []*domain.Operation
	for _, row := range previewRows {
		previewVerdicts = append(previewVerdicts, v.Preview(row).Verdicts...)
	}
	for _, row := range rejected {
		previewVerdicts = append(previewVerdicts, v.Rejected(row, scheduler.ClosestAction(rn.rc, row), problems[row.ID]).Verdicts...)
	}
	for _, ra := range windowActions {
		res := v.Window(ra)
		windowVerdicts = append(windowVerdicts, res.Verdicts...)
		ops = append(ops, res.Operations...)
	}

	all := append(append([]*domain.Verdict{}, previewVerdicts...), windowVerdicts...)
	rn.record.Counts.Conflicts = conflict.Detect(all, rn.log)
	rn.countVerdicts(all)
	if rn.Observer != nil {
		rn.Observer.RecordVerdicts(all)
	}

	if len(previewVerdicts) > 0 {
		rn.res.Preview = reportRows(previewVerdicts)
		if err := rn.Source.WritePreview(ctx, rn.res.Preview); err != nil {
			rn.log.WithError(err).Error("Writing preview failed")
		}
		rn.saveResults(ctx, domain.ResultPreview, rn.res.Preview)
		rn.notify(ctx, notify.PhasePreview, rn.res.Preview)
	}
	rn.saveFingerprint(ctx, fp)

	if len(windowVerdicts) == 0 {
		return domain.RunPreviewed, fmt.Sprintf("%d rows previewed", len(previewVerdicts)), nil
	}

	ops = conflict.Executable(ops, windowVerdicts)
	if len(ops) == 0 {
		rn.report(ctx, merge.Merge(windowVerdicts, nil))
		return domain.RunExecuted, "No executable operations in the window", nil
	}

	ops, dups := dedup.Dedup(ops, rn.log)
	rn.record.Counts.Duplicates = dups

	cfg := rn.Executor
	cfg.DryRun = cfg.DryRun || rn.opts.Mode == domain.ModeDryRun
	if cfg.Stamp == nil {
		cfg.Stamp = func() string { return scheduler.NewRunContext(rn.Location, rn.Clock()).Stamp() }
	}
	exec := executor.New(rn.Platform, cfg, rn.log)
	if rn.Observer != nil {
		exec.OnOutcome = func(o *domain.Outcome) { rn.Observer.RecordOutcome(rn.record.ID, *o) }
	}
	outcomes := exec.Execute(ctx, ops)
	if !cfg.DryRun {
		outcomes = verifyOutcomes(ctx, rn, snap, outcomes)
	}

	rn.record.Counts.Executed = len(outcomes)
	for _, o := range outcomes {
		if o.Status == domain.StatusSuccess {
			rn.record.Counts.Succeeded++
		} else {
			rn.record.Counts.Failed++
		}
	}

	rn.report(ctx, merge.Merge(windowVerdicts, outcomes))
	msg := fmt.Sprintf("%d executed, %d succeeded, %d failed", rn.record.Counts.Executed, rn.record.Counts.Succeeded, rn.record.Counts.Failed)
	if cfg.DryRun {
		msg = fmt.Sprintf("%d operations (dry run)", len(outcomes))
	}
	return domain.RunExecuted, msg, nil
}

func verifyOutcomes(ctx context.Context, rn *run, snap *catalog.Snapshot, outcomes []*domain.Outcome) []*domain.Outcome {
	policy := rn.Verify
	if policy.Sleep == nil {
		policy.Sleep = rn.Executor.Sleep
	}
	return verify.New(rn.loader(), snap, policy, rn.log).Verify(ctx, outcomes)
}

// loader returns a catalog loader with the runner's chunking and sleep
func (rn *run) loader() *catalog.Loader {
	loader := catalog.NewLoader(rn.Platform, rn.log)
	if rn.ChunkSize > 0 {
		loader.ChunkSize = rn.ChunkSize
	}
	if rn.Executor.Sleep != nil {
		loader.Retry.Sleep = rn.Executor.Sleep
	}
	return loader
}

// nonEmpty drops rows without a member cell
func (rn *run) nonEmpty(rows []*domain.ScheduleRow) []*domain.ScheduleRow {
	out := rows[:0:0]
	for _, r := range rows {
		if r.Member == "" {
			rn.log.WithField("row", r.ID.String()).Debug("Empty row skipped")
			continue
		}
		out = append(out, r)
	}
	if skipped := len(rows) - len(out); skipped > 0 {
		rn.log.WithField("skipped", skipped).Info("Rows without text or asset id skipped")
	}
	return out
}

func (rn *run) snapshot(ctx context.Context, rows []*domain.ScheduleRow) (*catalog.Snapshot, error) {
	var req catalog.Request
	req.FieldTypes = validator.FieldTypes()
	for _, r := range rows {
		req.Campaigns = append(req.Campaigns, r.Campaign)
		if r.Kind == domain.KindImage && isDigits(r.Member) {
			req.AssetIDs = append(req.AssetIDs, r.Member)
		}
	}
	snap, err := rn.loader().Load(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return snap, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (rn *run) fingerprintChanged(ctx context.Context, fp string) bool {
	store := rn.fingerprints()
	if store == nil {
		return true
	}
	prev, err := store.Fingerprint(ctx, runstore.FingerprintKey)
	if err != nil {
		rn.log.WithError(err).Warn("Reading fingerprint failed, treating schedule as changed")
		return true
	}
	return prev != fp
}

func (rn *run) saveFingerprint(ctx context.Context, fp string) {
	store := rn.fingerprints()
	if store == nil {
		return
	}
	if err := store.SaveFingerprint(ctx, runstore.FingerprintKey, fp); err != nil {
		rn.log.WithError(err).Warn("Saving fingerprint failed")
	}
}

func (rn *run) fingerprints() runstore.Fingerprints {
	if rn.Fingerprints != nil {
		return rn.Fingerprints
	}
	if rn.Store != nil {
		return rn.Store
	}
	return nil
}

func (rn *run) clearPreview(ctx context.Context) {
	if err := rn.Source.WritePreview(ctx, nil); err != nil {
		rn.log.WithError(err).Warn("Clearing preview failed")
	}
}

// report appends window results to the results sheet, stores and announces them
func (rn *run) report(ctx context.Context, rows []domain.ReportRow) {
	rn.res.Results = rows
	if err := rn.Source.AppendResults(ctx, rows); err != nil {
		rn.log.WithError(err).Error("Appending results failed")
	}
	rn.saveResults(ctx, domain.ResultExecution, rows)
	rn.notify(ctx, notify.PhaseExecution, rows)
}

func (rn *run) notify(ctx context.Context, phase notify.Phase, rows []domain.ReportRow) {
	if rn.Notifier == nil || len(rows) == 0 {
		return
	}
	opts := rn.Report
	opts.At = rn.rc.Now
	opts.RunID = rn.record.ID
	if err := rn.Notifier.Send(ctx, notify.Report(phase, rows, opts)); err != nil {
		rn.log.WithError(err).WithField("phase", phase).Warn("Notification failed")
	}
}

func (rn *run) saveRun(ctx context.Context) {
	if rn.Store == nil {
		return
	}
	if err := rn.Store.SaveRun(ctx, rn.record); err != nil {
		rn.log.WithError(err).Warn("Saving run failed")
	}
}

func (rn *run) saveResults(ctx context.Context, kind domain.ResultKind, rows []domain.ReportRow) {
	if rn.Store == nil {
		return
	}
	if err := rn.Store.SaveResults(ctx, rn.record.ID, kind, rows); err != nil {
		rn.log.WithError(err).Warn("Saving results failed")
	}
}

func (rn *run) countVerdicts(verdicts []*domain.Verdict) {
	c := &rn.record.Counts
	c.OK, c.Warnings, c.Errors = 0, 0, 0
	for _, v := range verdicts {
		switch v.Status {
		case domain.StatusOK:
			c.OK++
		case domain.StatusWarning:
			c.Warnings++
		case domain.StatusError:
			c.Errors++
		}
	}
}

func reportRows(verdicts []*domain.Verdict) []domain.ReportRow {
	out := make([]domain.ReportRow, 0, len(verdicts))
	for _, v := range verdicts {
		out = append(out, v.ReportRow())
	}
	return out
}
