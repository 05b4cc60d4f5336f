package scheduler

import (
	"fmt"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// Resolution is what a row yields for the current instant
type Resolution struct {
	Actions domain.ActionList
	// Problems holds malformed date or hour cells of actions due today.
	Problems []string
	// SelfConflict is set when add and remove fall in the same hour of the same day.
	SelfConflict bool
}

// Resolve returns the actions of row whose window contains the run instant.
// A self-conflicting row yields no actions.
func Resolve(rc RunContext, row *domain.ScheduleRow) Resolution {
	var res Resolution
	if SelfConflict(row) {
		res.SelfConflict = true
		return res
	}

	today := rc.Today()
	now := rc.NowMinutes()
	for _, a := range []domain.Action{domain.ActionAdd, domain.ActionRemove} {
		rawDate, rawHour := row.DateFor(a)
		if rawDate == "" {
			continue
		}
		date, err := ParseDate(rawDate)
		if err != nil {
			res.Problems = append(res.Problems, fmt.Sprintf("invalid %s date: %v", label(a), err))
			continue
		}
		if date != today {
			continue
		}
		hour, err := ParseHour(rawHour)
		if err != nil {
			res.Problems = append(res.Problems, fmt.Sprintf("invalid %s hour: %v", label(a), err))
			continue
		}
		if WindowFor(a, hour).Contains(now) {
			res.Actions.Add(domain.ResolvedAction{Row: row, Action: a, Hour: hour, Date: date})
		}
	}
	return res
}

// SelfConflict reports whether a row adds and removes in the same hour of the
// same day. Unparsable hours count as the default hour.
func SelfConflict(row *domain.ScheduleRow) bool {
	if !row.HasAdd() || !row.HasRemove() {
		return false
	}
	addDate, err1 := ParseDate(row.AddDate)
	removeDate, err2 := ParseDate(row.RemoveDate)
	if err1 != nil || err2 != nil || addDate != removeDate {
		return false
	}
	addHour := hourOrDefault(row.AddHour).Resolve(domain.ActionAdd)
	removeHour := hourOrDefault(row.RemoveHour).Resolve(domain.ActionRemove)
	return addHour == removeHour
}

func label(a domain.Action) string {
	if a == domain.ActionRemove {
		return "Remove"
	}
	return "Add"
}
