package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// Default windows in minutes of day. Upper bounds are exclusive.
const (
	AddWindowFrom    = 0
	AddWindowTo      = 60
	RemoveWindowFrom = 1380
	RemoveWindowTo   = 1440
)

var hourPattern = regexp.MustCompile(`^(\d{1,2})(?::00)?$`)

// ParseHour parses an hour cell ("10" or "10:00"). An empty cell is
// DefaultHour; anything else that is not 0..23 is an error.
func ParseHour(raw string) (domain.Hour, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.DefaultHour, nil
	}
	m := hourPattern.FindStringSubmatch(s)
	if m == nil {
		return domain.DefaultHour, fmt.Errorf("bad format %q, expected 0-23 or HH:00 (e.g. 10 or 10:00)", s)
	}
	h, _ := strconv.Atoi(m[1]) // regex guarantees digits
	if h > 23 {
		return domain.DefaultHour, fmt.Errorf("invalid hour %q, expected 0-23", s)
	}
	return domain.Hour(h), nil
}

// hourOrDefault parses an hour cell and falls back to the default on error
func hourOrDefault(raw string) domain.Hour {
	h, err := ParseHour(raw)
	if err != nil {
		return domain.DefaultHour
	}
	return h
}

// Window is a [From, To) interval of minutes of day
type Window struct {
	From int
	To   int
}

// WindowFor returns the execution window of an action at an hour
func WindowFor(a domain.Action, h domain.Hour) Window {
	if !h.IsDefault() {
		return Window{From: int(h) * 60, To: int(h)*60 + 60}
	}
	if a == domain.ActionRemove {
		return Window{From: RemoveWindowFrom, To: RemoveWindowTo}
	}
	return Window{From: AddWindowFrom, To: AddWindowTo}
}

// Contains reports whether minute falls inside the window
func (w Window) Contains(minute int) bool {
	return minute >= w.From && minute < w.To
}

// String formats the window as HH:MM-HH:MM using the last included minute
func (w Window) String() string {
	last := w.To - 1
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.From/60, w.From%60, last/60, last%60)
}
