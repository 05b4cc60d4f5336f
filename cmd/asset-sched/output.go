package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/asset-scheduler/internal/batch"
	"github.com/hochfrequenz/asset-scheduler/internal/config"
	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/pipeline"
)

// runView is the machine-readable form of a run
type runView struct {
	ID          string           `json:"id" yaml:"id"`
	Mode        domain.RunMode   `json:"mode" yaml:"mode"`
	Status      domain.RunStatus `json:"status" yaml:"status"`
	StartedAt   time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Duration    string           `json:"duration" yaml:"duration"`
	Fingerprint string           `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Counts      countsView       `json:"counts" yaml:"counts"`
	Message     string           `json:"message,omitempty" yaml:"message,omitempty"`
	Preview     []rowView        `json:"preview,omitempty" yaml:"preview,omitempty"`
	Results     []rowView        `json:"results,omitempty" yaml:"results,omitempty"`
}

type countsView struct {
	Rows       int `json:"rows" yaml:"rows"`
	InRange    int `json:"in_range" yaml:"in_range"`
	InWindow   int `json:"in_window" yaml:"in_window"`
	OK         int `json:"ok" yaml:"ok"`
	Warnings   int `json:"warnings" yaml:"warnings"`
	Errors     int `json:"errors" yaml:"errors"`
	Conflicts  int `json:"conflicts" yaml:"conflicts"`
	Duplicates int `json:"duplicates" yaml:"duplicates"`
	Executed   int `json:"executed" yaml:"executed"`
	Succeeded  int `json:"succeeded" yaml:"succeeded"`
	Failed     int `json:"failed" yaml:"failed"`
}

type rowView struct {
	Timestamp  string        `json:"timestamp" yaml:"timestamp"`
	Campaign   string        `json:"campaign" yaml:"campaign"`
	AssetGroup string        `json:"asset_group" yaml:"asset_group"`
	MemberType string        `json:"member_type" yaml:"member_type"`
	Member     string        `json:"member" yaml:"member"`
	Scheduled  string        `json:"scheduled" yaml:"scheduled"`
	Action     string        `json:"action" yaml:"action"`
	Status     domain.Status `json:"status" yaml:"status"`
	Message    string        `json:"message" yaml:"message"`
}

func toRunView(r *domain.Run) runView {
	c := r.Counts
	return runView{
		ID:          r.ID,
		Mode:        r.Mode,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Duration:    r.Duration().Round(time.Millisecond).String(),
		Fingerprint: r.Fingerprint,
		Counts: countsView{
			Rows: c.Rows, InRange: c.InRange, InWindow: c.InWindow,
			OK: c.OK, Warnings: c.Warnings, Errors: c.Errors,
			Conflicts: c.Conflicts, Duplicates: c.Duplicates,
			Executed: c.Executed, Succeeded: c.Succeeded, Failed: c.Failed,
		},
		Message: r.Message,
	}
}

func toRowView(r domain.ReportRow) rowView {
	return rowView{
		Timestamp:  r.Timestamp,
		Campaign:   r.Campaign,
		AssetGroup: r.AssetGroup,
		MemberType: r.MemberType,
		Member:     r.Member,
		Scheduled:  r.Scheduled,
		Action:     r.Action,
		Status:     r.Status,
		Message:    r.Message,
	}
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown output format %q (table, json, yaml)", format)
}

func printRuns(w io.Writer, format string, runs []*domain.Run) error {
	if format != "table" {
		views := make([]runView, len(runs))
		for i, r := range runs {
			views[i] = toRunView(r)
		}
		return encode(w, format, views)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tMODE\tSTATUS\tDURATION\tWINDOW\tOK/WARN/ERR\tEXEC OK/FAIL\tMESSAGE")
	for _, r := range runs {
		c := r.Counts
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d/%d/%d\t%d/%d\t%s\n",
			shortID(r.ID),
			humanize.Time(r.StartedAt),
			r.Mode,
			r.Status,
			r.Duration().Round(time.Millisecond),
			c.InWindow,
			c.OK, c.Warnings, c.Errors,
			c.Succeeded, c.Failed,
			r.Message,
		)
	}
	return tw.Flush()
}

func printRunDetail(w io.Writer, format string, run *domain.Run, results []domain.StoredResult) error {
	var preview, executed []domain.ReportRow
	for _, r := range results {
		if r.Kind == domain.ResultPreview {
			preview = append(preview, r.ReportRow)
		} else {
			executed = append(executed, r.ReportRow)
		}
	}

	if format != "table" {
		v := toRunView(run)
		for _, r := range preview {
			v.Preview = append(v.Preview, toRowView(r))
		}
		for _, r := range executed {
			v.Results = append(v.Results, toRowView(r))
		}
		return encode(w, format, v)
	}

	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Mode:     %s\n", run.Mode)
	fmt.Fprintf(w, "Status:   %s\n", run.Status)
	fmt.Fprintf(w, "Started:  %s (%s)\n", run.StartedAt.Format(time.RFC3339), humanize.Time(run.StartedAt))
	fmt.Fprintf(w, "Duration: %s\n", run.Duration().Round(time.Millisecond))
	if run.Message != "" {
		fmt.Fprintf(w, "Message:  %s\n", run.Message)
	}
	if len(preview) > 0 {
		fmt.Fprintf(w, "\nPreview (%d rows)\n", len(preview))
		if err := printRows(w, preview); err != nil {
			return err
		}
	}
	if len(executed) > 0 {
		fmt.Fprintf(w, "\nResults (%d rows)\n", len(executed))
		if err := printRows(w, executed); err != nil {
			return err
		}
	}
	return nil
}

func printRows(w io.Writer, rows []domain.ReportRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CAMPAIGN\tASSET GROUP\tTYPE\tMEMBER\tSCHEDULED\tACTION\tSTATUS\tMESSAGE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Campaign, r.AssetGroup, r.MemberType, r.Member, r.Scheduled, r.Action, r.Status, r.Message)
	}
	return tw.Flush()
}

// printResult summarises a finished run on the terminal
func printResult(w io.Writer, res *pipeline.Result) {
	run := res.Run
	fmt.Fprintf(w, "Run %s: %s", shortID(run.ID), run.Status)
	if run.Message != "" {
		fmt.Fprintf(w, " (%s)", run.Message)
	}
	fmt.Fprintln(w)
	if len(res.Preview) > 0 {
		fmt.Fprintf(w, "\nPreview (%d rows)\n", len(res.Preview))
		printRows(w, res.Preview)
	}
	if len(res.Results) > 0 {
		fmt.Fprintf(w, "\nResults (%d rows)\n", len(res.Results))
		printRows(w, res.Results)
	}
}

func printStatus(w io.Writer, cfg *config.Config, sched *batch.Scheduler, runs []*domain.Run, now time.Time) error {
	name := cfg.General.AccountName
	if name == "" {
		name = "(unnamed account)"
	}
	fmt.Fprintf(w, "Account:  %s\n", name)
	fmt.Fprintf(w, "Timezone: %s\n", now.Location())
	switch cfg.Source.Kind {
	case config.SourceGSheets:
		fmt.Fprintf(w, "Source:   Google Sheets %s\n", cfg.Source.SpreadsheetID)
	default:
		fmt.Fprintf(w, "Source:   %s\n", cfg.Source.Path)
	}
	if cfg.Execution.DryRun {
		fmt.Fprintln(w, "Dry run:  enabled")
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "Last run: never")
	} else {
		r := runs[0]
		fmt.Fprintf(w, "Last run: %s %s, %s", r.Status, humanize.Time(r.StartedAt), r.Mode)
		if r.Message != "" {
			fmt.Fprintf(w, " (%s)", r.Message)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tCRON\tMODE\tNEXT RUN")
	for _, jobName := range sched.ListJobs() {
		job, _ := sched.GetJob(jobName)
		next := sched.NextRun(jobName, now)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s (%s)\n", job.Name, job.Cron, job.Mode,
			next.Format("2006-01-02 15:04"), humanize.Time(next))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
