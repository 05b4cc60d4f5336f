// Package notify delivers run reports to operators
package notify

import (
	"context"
	"errors"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// Level is how urgent a report is
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notification is one report of a run phase
type Notification struct {
	Phase   Phase
	Title   string
	Message string
	// Summary is one line, for channels that cannot show Message.
	Summary string
	Level   Level
	Counts  map[domain.Status]int
	RunID   string
	URL     string
}

// Notifier delivers notifications
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Fanout sends to every notifier and joins their errors
type Fanout []Notifier

// NewFanout drops nil notifiers
func NewFanout(notifiers ...Notifier) Fanout {
	var f Fanout
	for _, n := range notifiers {
		if n != nil {
			f = append(f, n)
		}
	}
	return f
}

// Send implements Notifier
func (f Fanout) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range f {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every notification
var Discard Notifier = discard{}

type discard struct{}

func (discard) Send(context.Context, Notification) error { return nil }
