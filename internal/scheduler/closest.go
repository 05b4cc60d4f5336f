package scheduler

import (
	"fmt"
	"strings"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// ClosestAction returns which pending action of a row ends first, for
// preview. Ends are compared as "yyyy-MM-dd HH:00:00" strings; actions whose
// hour already ended are ignored. Equal ends yield domain.ActionBoth, no
// pending action yields domain.ActionNone.
func ClosestAction(rc RunContext, row *domain.ScheduleRow) domain.Action {
	now := rc.Stamp()
	addEnd := actionEnd(row, domain.ActionAdd)
	removeEnd := actionEnd(row, domain.ActionRemove)
	if addEnd != "" && addEnd <= now {
		addEnd = ""
	}
	if removeEnd != "" && removeEnd <= now {
		removeEnd = ""
	}

	switch {
	case addEnd == "" && removeEnd == "":
		return domain.ActionNone
	case removeEnd == "":
		return domain.ActionAdd
	case addEnd == "":
		return domain.ActionRemove
	case addEnd == removeEnd:
		return domain.ActionBoth
	case addEnd < removeEnd:
		return domain.ActionAdd
	default:
		return domain.ActionRemove
	}
}

// actionEnd returns the exclusive end of an action's hour, or "" when the
// action is not scheduled or its date is unreadable
func actionEnd(row *domain.ScheduleRow, a domain.Action) string {
	rawDate, rawHour := row.DateFor(a)
	if rawDate == "" {
		return ""
	}
	date, err := ParseDate(rawDate)
	if err != nil {
		return ""
	}
	end := hourOrDefault(rawHour).Resolve(a) + 1
	if end == 24 {
		return nextDay(date) + " 00:00:00"
	}
	return fmt.Sprintf("%s %02d:00:00", date, end)
}

// FormatScheduled renders one action as "yyyy-MM-dd HH:00-HH:59"
func FormatScheduled(date string, hour int) string {
	return fmt.Sprintf("%s %02d:00-%02d:59", date, hour, hour)
}

// ScheduledFor renders the window of a single action of a row, or "" when
// the row does not schedule it
func ScheduledFor(row *domain.ScheduleRow, a domain.Action) string {
	rawDate, rawHour := row.DateFor(a)
	if rawDate == "" {
		return ""
	}
	date, err := ParseDate(rawDate)
	if err != nil {
		date = strings.TrimSpace(rawDate)
	}
	return FormatScheduled(date, hourOrDefault(rawHour).Resolve(a))
}

// FormatAllScheduled renders every scheduled action of a row,
// "ADD: <window> | REMOVE: <window>"
func FormatAllScheduled(row *domain.ScheduleRow) string {
	var parts []string
	if s := ScheduledFor(row, domain.ActionAdd); s != "" {
		parts = append(parts, "ADD: "+s)
	}
	if s := ScheduledFor(row, domain.ActionRemove); s != "" {
		parts = append(parts, "REMOVE: "+s)
	}
	return strings.Join(parts, " | ")
}

// ScheduledForAction renders the window(s) of the action chosen for a
// verdict; ActionBoth lists both, comma separated
func ScheduledForAction(row *domain.ScheduleRow, a domain.Action) string {
	if a != domain.ActionBoth {
		return ScheduledFor(row, a)
	}
	var parts []string
	for _, single := range []domain.Action{domain.ActionAdd, domain.ActionRemove} {
		if s := ScheduledFor(row, single); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// EffectiveHour returns the effective hour of one side of a row, with
// unparsable cells treated as the default
func EffectiveHour(row *domain.ScheduleRow, a domain.Action) int {
	_, rawHour := row.DateFor(a)
	return hourOrDefault(rawHour).Resolve(a)
}
