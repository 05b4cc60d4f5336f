package domain

import "sync/atomic"

// OpID is a run-scoped identifier assigned when a verdict or operation is created
type OpID uint64

// IDSource hands out OpIDs in creation order
type IDSource struct {
	next atomic.Uint64
}

// Next returns a fresh OpID
func (s *IDSource) Next() OpID {
	return OpID(s.next.Add(1))
}

// ResolvedAction is one action of a row that is due in the current window
type ResolvedAction struct {
	Row    *ScheduleRow
	Action Action
	Hour   Hour
	Date   string // yyyy-MM-dd
}

// EffectiveHour returns the hour with defaults applied
func (a ResolvedAction) EffectiveHour() int {
	return a.Hour.Resolve(a.Action)
}

// ActionList holds the zero, one or two actions a row can yield in one run
type ActionList struct {
	items [2]ResolvedAction
	n     int
}

// Add appends an action; a third action is ignored
func (l *ActionList) Add(a ResolvedAction) {
	if l.n == len(l.items) {
		return
	}
	l.items[l.n] = a
	l.n++
}

// Len returns the number of actions
func (l *ActionList) Len() int { return l.n }

// Items returns the actions in order
func (l *ActionList) Items() []ResolvedAction {
	return l.items[:l.n]
}
