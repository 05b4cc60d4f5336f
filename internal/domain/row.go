package domain

import "fmt"

// Sheet names of the schedule workbook
const (
	TextSheet           = "TextAssets"
	ImageSheet          = "ImageAssets"
	PreviewResultsSheet = "Preview Results"
	ResultsSheet        = "Results"
)

// RowID identifies a schedule row by its sheet and 1-based line number
type RowID struct {
	Sheet string
	Line  int
}

// String returns the canonical "Sheet:Line" form
func (r RowID) String() string {
	return fmt.Sprintf("%s:%d", r.Sheet, r.Line)
}

// Less orders rows by sheet (text first) and line
func (r RowID) Less(o RowID) bool {
	if r.Sheet != o.Sheet {
		return r.Sheet == TextSheet
	}
	return r.Line < o.Line
}

// ScheduleRow is one input record of the schedule workbook
type ScheduleRow struct {
	ID         RowID
	Kind       Kind
	Campaign   string
	AssetGroup string // empty targets all eligible asset groups
	MemberType string // as typed in the sheet
	Member     string // text payload or numeric asset id
	AddDate    string
	AddHour    string
	RemoveDate string
	RemoveHour string
	Cells      []string
}

// HasAdd reports whether the row schedules an add
func (r *ScheduleRow) HasAdd() bool { return r.AddDate != "" }

// HasRemove reports whether the row schedules a remove
func (r *ScheduleRow) HasRemove() bool { return r.RemoveDate != "" }

// DateFor returns the raw date and hour cells for an action
func (r *ScheduleRow) DateFor(a Action) (date, hour string) {
	if a == ActionRemove {
		return r.RemoveDate, r.RemoveHour
	}
	return r.AddDate, r.AddHour
}

// Hour is an hour of day 0..23, or DefaultHour when the cell was empty
type Hour int

// DefaultHour means "use the action's default window"
const DefaultHour Hour = -1

// IsDefault reports whether no explicit hour was given
func (h Hour) IsDefault() bool { return h < 0 }

// Resolve returns the effective hour for an action: 0 for a default ADD,
// 23 for a default REMOVE
func (h Hour) Resolve(a Action) int {
	if !h.IsDefault() {
		return int(h)
	}
	if a == ActionRemove {
		return 23
	}
	return 0
}
