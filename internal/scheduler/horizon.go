package scheduler

import "github.com/hochfrequenz/asset-scheduler/internal/domain"

// DefaultHorizonDays is how far ahead rows are validated for preview
const DefaultHorizonDays = 30

// FilterHorizon keeps rows with at least one action dated within
// [today, today+days]. Comparison is on yyyy-MM-dd strings in the run
// location. A same-day action whose window already ended does not count.
func FilterHorizon(rc RunContext, rows []*domain.ScheduleRow, days int) []*domain.ScheduleRow {
	if days < 0 {
		days = DefaultHorizonDays
	}
	var out []*domain.ScheduleRow
	for _, row := range rows {
		if InHorizon(rc, row, days) {
			out = append(out, row)
		}
	}
	return out
}

// InHorizon reports whether a row passes the horizon filter
func InHorizon(rc RunContext, row *domain.ScheduleRow, days int) bool {
	return sideInHorizon(rc, row, domain.ActionAdd, days) || sideInHorizon(rc, row, domain.ActionRemove, days)
}

func sideInHorizon(rc RunContext, row *domain.ScheduleRow, a domain.Action, days int) bool {
	rawDate, rawHour := row.DateFor(a)
	if rawDate == "" {
		return false
	}
	date, err := ParseDate(rawDate)
	if err != nil {
		// kept so the validator reports the bad cell
		return true
	}
	today := rc.Today()
	if date < today || date > rc.DaysAhead(days) {
		return false
	}
	if date != today {
		return true
	}
	hour, err := ParseHour(rawHour)
	if err != nil {
		return true
	}
	return rc.NowMinutes() < WindowFor(a, hour).To
}
