package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	columnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("238"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

var tabNames = []string{"Runs", "Results"}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(headerStyle.Width(m.width).Render(m.renderHeader()))
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var section string
	switch m.activeTab {
	case TabRuns:
		section = m.renderRuns()
	case TabResults:
		section = m.renderResults()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(section))
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderHeader() string {
	name := "Asset Scheduler"
	if m.account != "" {
		name = fmt.Sprintf("[%s] %s", m.account, name)
	}
	parts := []string{name, fmt.Sprintf("Runs: %d", len(m.runs))}
	if len(m.runs) > 0 {
		parts = append(parts, "Last: "+string(m.runs[0].Status)+" "+humanize.Time(m.runs[0].StartedAt))
	}
	if m.nextRun != nil {
		if next := m.nextRun(m.now()); !next.IsZero() {
			parts = append(parts, "Next: "+humanize.Time(next))
		}
	}
	return strings.Join(parts, " │ ")
}

func (m Model) renderTabs() string {
	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		if Tab(i) == m.activeTab {
			tabs[i] = tabActiveStyle.Render(name)
		} else {
			tabs[i] = tabInactiveStyle.Render(name)
		}
	}
	return " " + strings.Join(tabs, "  ")
}

func (m Model) renderRuns() string {
	if len(m.runs) == 0 {
		return dimmedStyle.Render("No runs recorded yet")
	}

	var b strings.Builder
	b.WriteString(columnStyle.Render(fmt.Sprintf("%-16s %-8s %-10s %8s %6s %12s %10s  %s",
		"STARTED", "MODE", "STATUS", "DURATION", "WINDOW", "OK/WARN/ERR", "EXEC OK/F", "MESSAGE")))
	b.WriteString("\n")

	end := min(m.scroll+maxVisible, len(m.runs))
	for i := m.scroll; i < end; i++ {
		r := m.runs[i]
		c := r.Counts
		line := fmt.Sprintf("%-16s %-8s %-10s %8s %6d %12s %10s  %s",
			humanize.Time(r.StartedAt),
			r.Mode,
			r.Status,
			formatDuration(r.Duration()),
			c.InWindow,
			fmt.Sprintf("%d/%d/%d", c.OK, c.Warnings, c.Errors),
			fmt.Sprintf("%d/%d", c.Succeeded, c.Failed),
			truncate(r.Message, max(m.width-90, 10)),
		)
		line = runStyle(r.Status).Render(line)
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.runs) > maxVisible {
		b.WriteString(dimmedStyle.Render(fmt.Sprintf("%d-%d of %d", m.scroll+1, end, len(m.runs))))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderResults() string {
	run := m.selectedRun()
	if run == nil {
		return dimmedStyle.Render("No run selected")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Run %s (%s, %s) started %s\n", run.ID, run.Mode, run.Status,
		run.StartedAt.Format("2006-01-02 15:04:05")))
	if run.Counts.Conflicts > 0 || run.Counts.Duplicates > 0 {
		b.WriteString(warningStyle.Render(fmt.Sprintf("%s conflicts, %s duplicates skipped",
			humanize.Comma(int64(run.Counts.Conflicts)), humanize.Comma(int64(run.Counts.Duplicates)))))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.resultsFor != run.ID {
		b.WriteString(dimmedStyle.Render("Loading results..."))
		return b.String()
	}
	if len(m.results) == 0 {
		b.WriteString(dimmedStyle.Render("No report rows stored for this run"))
		return b.String()
	}

	b.WriteString(columnStyle.Render(fmt.Sprintf("%-9s %-20s %-16s %-14s %-24s %-11s %-8s %s",
		"KIND", "CAMPAIGN", "ASSET GROUP", "TYPE", "MEMBER", "ACTION", "STATUS", "MESSAGE")))
	b.WriteString("\n")

	end := min(m.scroll+maxVisible, len(m.results))
	for _, res := range m.results[m.scroll:end] {
		r := res.ReportRow
		line := fmt.Sprintf("%-9s %-20s %-16s %-14s %-24s %-11s %-8s %s",
			res.Kind,
			truncate(r.Campaign, 20),
			truncate(r.AssetGroup, 16),
			truncate(r.MemberType, 14),
			truncate(r.Member, 24),
			r.Action,
			r.Status,
			truncate(r.Message, max(m.width-120, 20)),
		)
		b.WriteString(statusStyle(r.Status).Render(line))
		b.WriteString("\n")
	}
	if len(m.results) > maxVisible {
		b.WriteString(dimmedStyle.Render(fmt.Sprintf("%d-%d of %d", m.scroll+1, end, len(m.results))))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderStatusBar() string {
	keys := " q: quit │ r: refresh │ j/k: move │ enter: results │ esc: back │ tab: switch"
	if m.err != nil {
		keys += " │ " + errorStyle.Render("error: "+m.err.Error())
	} else if !m.lastRefresh.IsZero() {
		keys += " │ refreshed " + m.lastRefresh.Format("15:04:05")
	}
	return statusBarStyle.Width(m.width).Render(keys)
}

func runStyle(s domain.RunStatus) lipgloss.Style {
	switch s {
	case domain.RunFailed:
		return errorStyle
	case domain.RunRunning:
		return warningStyle
	case domain.RunSkipped:
		return dimmedStyle
	}
	return lipgloss.NewStyle()
}

func statusStyle(s domain.Status) lipgloss.Style {
	switch s {
	case domain.StatusOK, domain.StatusSuccess:
		return okStyle
	case domain.StatusWarning:
		return warningStyle
	case domain.StatusError:
		return errorStyle
	}
	return lipgloss.NewStyle()
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
