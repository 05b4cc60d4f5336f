package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// Phase names the point in a run a report is sent from
type Phase string

const (
	PhasePreview   Phase = "VALIDATION_PREVIEW"
	PhaseExecution Phase = "EXECUTION_COMPLETE"
)

// RowLimit caps the rows listed in one report
const RowLimit = 50

// ReportOptions carries the context printed in a report header
type ReportOptions struct {
	Account  string
	At       time.Time
	RunID    string
	URL      string
	RowLimit int
}

// Report builds the notification for a phase from its report rows
func Report(phase Phase, rows []domain.ReportRow, opts ReportOptions) Notification {
	limit := opts.RowLimit
	if limit <= 0 {
		limit = RowLimit
	}

	title := "Asset Scheduler - " + phaseTitle(phase)
	if opts.Account != "" {
		title = "[" + opts.Account + "] " + title
	}

	var b strings.Builder
	if !opts.At.IsZero() {
		fmt.Fprintf(&b, "Time: %s (%s)\n", opts.At.Format("2006-01-02 15:04"), opts.At.Location())
	}
	switch phase {
	case PhasePreview:
		fmt.Fprintf(&b, "Upcoming operations (%d rows)\n", len(rows))
	case PhaseExecution:
		fmt.Fprintf(&b, "Operations in the current window (%d rows)\n", len(rows))
		b.WriteString("ERROR rows were not executed. SUCCESS rows were executed and verified.\n")
	default:
		fmt.Fprintf(&b, "Rows: %d\n", len(rows))
	}
	b.WriteString("\n")

	shown := rows
	if len(shown) > limit {
		shown = shown[:limit]
	}
	for _, r := range shown {
		fmt.Fprintf(&b, "%-7s %s / %s | %s %s | %s %s | %s\n",
			r.Status, r.Campaign, r.AssetGroup, r.MemberType, r.Member, r.Action, r.Scheduled, r.Message)
	}
	if len(rows) > limit {
		fmt.Fprintf(&b, "... +%d more rows\n", len(rows)-limit)
	}

	counts := countStatuses(rows)
	return Notification{
		Phase:   phase,
		Title:   title,
		Message: b.String(),
		Summary: summary(counts, len(rows)),
		Level:   level(phase, counts),
		Counts:  counts,
		RunID:   opts.RunID,
		URL:     opts.URL,
	}
}

func phaseTitle(p Phase) string {
	switch p {
	case PhasePreview:
		return "Preview Report"
	case PhaseExecution:
		return "Execution Report"
	default:
		return string(p)
	}
}

func countStatuses(rows []domain.ReportRow) map[domain.Status]int {
	counts := make(map[domain.Status]int)
	for _, r := range rows {
		counts[r.Status]++
	}
	return counts
}

func summary(counts map[domain.Status]int, total int) string {
	var parts []string
	for _, s := range []domain.Status{domain.StatusSuccess, domain.StatusOK, domain.StatusWarning, domain.StatusError} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d rows", total)
	}
	return fmt.Sprintf("%d rows: %s", total, strings.Join(parts, ", "))
}

func level(phase Phase, counts map[domain.Status]int) Level {
	switch {
	case counts[domain.StatusError] > 0:
		return LevelError
	case counts[domain.StatusWarning] > 0:
		return LevelWarning
	case phase == PhaseExecution:
		return LevelSuccess
	default:
		return LevelInfo
	}
}
