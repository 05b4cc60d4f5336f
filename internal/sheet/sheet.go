// Package sheet reads the schedule workbook and writes the preview and
// results sheets. Two backends exist: a local .xlsx file and a Google
// spreadsheet.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// ErrStructure marks a schedule sheet that is missing or lacks required columns
var ErrStructure = errors.New("invalid sheet structure")

// Column headers of the schedule sheets
const (
	ColCampaign   = "Campaign Name"
	ColAssetGroup = "Asset Group Name"
	ColTextType   = "Text Type"
	ColText       = "Text"
	ColImageType  = "Image Type"
	ColAssetID    = "Asset ID"
	ColAddDate    = "Add Date"
	ColAddHour    = "Add Hour"
	ColRemoveDate = "Remove Date"
	ColRemoveHour = "Remove Hour"
)

// RequiredColumns per schedule sheet
var RequiredColumns = map[string][]string{
	domain.TextSheet:  {ColCampaign, ColAssetGroup, ColTextType, ColText, ColAddDate, ColAddHour, ColRemoveDate, ColRemoveHour},
	domain.ImageSheet: {ColCampaign, ColAssetGroup, ColImageType, ColAssetID, ColAddDate, ColAddHour, ColRemoveDate, ColRemoveHour},
}

// Schedule is the content of both schedule sheets. A sheet with a
// structural problem has no rows and an entry in Errors.
type Schedule struct {
	Text   []*domain.ScheduleRow
	Image  []*domain.ScheduleRow
	Errors map[string]error
}

// Rows returns text rows followed by image rows
func (s *Schedule) Rows() []*domain.ScheduleRow {
	out := make([]*domain.ScheduleRow, 0, len(s.Text)+len(s.Image))
	out = append(out, s.Text...)
	return append(out, s.Image...)
}

// Source is where schedules come from and reports go to
type Source interface {
	// ReadSchedule reads both schedule sheets. It fails only when neither
	// sheet could be read.
	ReadSchedule(ctx context.Context) (*Schedule, error)
	// WritePreview replaces the preview sheet; no rows leaves only the header.
	WritePreview(ctx context.Context, rows []domain.ReportRow) error
	// AppendResults appends to the results sheet, creating it on first use.
	AppendResults(ctx context.Context, rows []domain.ReportRow) error
}

// ParseRows turns the raw cells of a schedule sheet (header first) into rows.
// Line numbers are 1-based sheet lines, so the first data row is line 2.
func ParseRows(sheetName string, values [][]string) ([]*domain.ScheduleRow, error) {
	required, ok := RequiredColumns[sheetName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sheet %q", ErrStructure, sheetName)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: sheet %q has no header row", ErrStructure, sheetName)
	}

	idx := make(map[string]int, len(values[0]))
	for i, h := range values[0] {
		idx[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns in %s: %s", ErrStructure, sheetName, strings.Join(missing, ", "))
	}

	kind, typeCol, memberCol := domain.KindText, ColTextType, ColText
	if sheetName == domain.ImageSheet {
		kind, typeCol, memberCol = domain.KindImage, ColImageType, ColAssetID
	}

	rows := make([]*domain.ScheduleRow, 0, len(values)-1)
	for i, cells := range values[1:] {
		cell := func(col string) string {
			j := idx[col]
			if j >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[j])
		}
		rows = append(rows, &domain.ScheduleRow{
			ID:         domain.RowID{Sheet: sheetName, Line: i + 2},
			Kind:       kind,
			Campaign:   cell(ColCampaign),
			AssetGroup: cell(ColAssetGroup),
			MemberType: cell(typeCol),
			Member:     cell(memberCol),
			AddDate:    cell(ColAddDate),
			AddHour:    cell(ColAddHour),
			RemoveDate: cell(ColRemoveDate),
			RemoveHour: cell(ColRemoveHour),
			Cells:      append([]string(nil), cells...),
		})
	}
	return rows, nil
}

// readBoth reads the two schedule sheets through read and collects
// structural errors per sheet
func readBoth(read func(sheetName string) ([][]string, error)) (*Schedule, error) {
	s := &Schedule{Errors: make(map[string]error)}
	for _, name := range []string{domain.TextSheet, domain.ImageSheet} {
		values, err := read(name)
		if err == nil {
			var rows []*domain.ScheduleRow
			rows, err = ParseRows(name, values)
			if err == nil {
				if name == domain.TextSheet {
					s.Text = rows
				} else {
					s.Image = rows
				}
				continue
			}
		}
		s.Errors[name] = err
	}
	if len(s.Errors) == 2 {
		return nil, fmt.Errorf("no schedule sheet readable: %w", errors.Join(s.Errors[domain.TextSheet], s.Errors[domain.ImageSheet]))
	}
	return s, nil
}

// rgb converts #rrggbb to 0..1 components
func rgb(hex string) (r, g, b float64) {
	var ri, gi, bi int
	if _, err := fmt.Sscanf(strings.TrimPrefix(hex, "#"), "%02x%02x%02x", &ri, &gi, &bi); err != nil {
		return 1, 1, 1
	}
	return float64(ri) / 255, float64(gi) / 255, float64(bi) / 255
}

// HeaderColor is the background of header rows
const HeaderColor = "#f6f8fa"
