package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical date form used for every date comparison
const DateLayout = "2006-01-02"

const stampLayout = "2006-01-02 15:04:05"

// RunContext carries the timezone and the instant a run works against.
// It is built once per run and passed to every stage.
type RunContext struct {
	Location *time.Location
	Now      time.Time
}

// NewRunContext pins now to loc; a nil loc means UTC
func NewRunContext(loc *time.Location, now time.Time) RunContext {
	if loc == nil {
		loc = time.UTC
	}
	return RunContext{Location: loc, Now: now.In(loc)}
}

// Today returns the run date as yyyy-MM-dd
func (rc RunContext) Today() string {
	return rc.Now.Format(DateLayout)
}

// DaysAhead returns the date n days after today as yyyy-MM-dd
func (rc RunContext) DaysAhead(n int) string {
	y, m, d := rc.Now.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, rc.Location).Format(DateLayout)
}

// NowMinutes returns the minute of day of the run instant
func (rc RunContext) NowMinutes() int {
	h, m, _ := rc.Now.Clock()
	return h*60 + m
}

// Stamp returns the run instant as yyyy-MM-dd HH:mm:ss
func (rc RunContext) Stamp() string {
	return rc.Now.Format(stampLayout)
}

var dateLayouts = []string{
	DateLayout,
	"2006.01.02",
	"2006.01.02.",
	"2006/01/02",
	"01-02-06",
	"1/2/2006",
	"1/2/06",
	"2006-01-02T15:04:05Z07:00",
}

// ParseDate normalises a date cell to yyyy-MM-dd. A trailing time part
// ("2025-11-16 00:00:00") is ignored.
func ParseDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	if i := strings.IndexByte(s, ' '); i > 0 {
		if d, err := ParseDate(s[:i]); err == nil {
			return d, nil
		}
	}
	return "", fmt.Errorf("invalid date %q (expected yyyy-MM-dd)", raw)
}

// nextDay returns the day after a yyyy-MM-dd date
func nextDay(date string) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, 1).Format(DateLayout)
}
