package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// Workbook is a Source backed by a local .xlsx file. Every call opens the
// file fresh so edits made between runs are picked up.
type Workbook struct {
	Path string

	mu sync.Mutex
}

// NewWorkbook returns a Source for the workbook at path
func NewWorkbook(path string) *Workbook {
	return &Workbook{Path: path}
}

var _ Source = (*Workbook)(nil)

// ReadSchedule implements Source
func (w *Workbook) ReadSchedule(ctx context.Context) (*Schedule, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := excelize.OpenFile(w.Path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	return readBoth(func(name string) ([][]string, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
			return nil, fmt.Errorf("%w: sheet %q not found", ErrStructure, name)
		}
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		normalizeDates(rows)
		return rows, nil
	})
}

// normalizeDates rewrites date serials in the date columns to yyyy-MM-dd.
// Cells typed as text are left alone.
func normalizeDates(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	var cols []int
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case ColAddDate, ColRemoveDate:
			cols = append(cols, i)
		}
	}
	for _, row := range rows[1:] {
		for _, c := range cols {
			if c >= len(row) {
				continue
			}
			serial, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
			if err != nil || serial <= 0 {
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, false)
			if err != nil {
				continue
			}
			row[c] = t.Format("2006-01-02")
		}
	}
}

// WritePreview implements Source
func (w *Workbook) WritePreview(ctx context.Context, rows []domain.ReportRow) error {
	return w.update(func(f *excelize.File) error {
		if idx, _ := f.GetSheetIndex(domain.PreviewResultsSheet); idx >= 0 {
			if err := f.DeleteSheet(domain.PreviewResultsSheet); err != nil {
				return err
			}
		}
		if _, err := f.NewSheet(domain.PreviewResultsSheet); err != nil {
			return err
		}
		if err := writeHeader(f, domain.PreviewResultsSheet, domain.PreviewHeader); err != nil {
			return err
		}
		return writeRows(f, domain.PreviewResultsSheet, 2, rows)
	})
}

// AppendResults implements Source
func (w *Workbook) AppendResults(ctx context.Context, rows []domain.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}
	return w.update(func(f *excelize.File) error {
		if idx, _ := f.GetSheetIndex(domain.ResultsSheet); idx < 0 {
			if _, err := f.NewSheet(domain.ResultsSheet); err != nil {
				return err
			}
			if err := writeHeader(f, domain.ResultsSheet, domain.ResultsHeader); err != nil {
				return err
			}
		}
		existing, err := f.GetRows(domain.ResultsSheet)
		if err != nil {
			return err
		}
		next := len(existing) + 1
		if next < 2 {
			next = 2
		}
		return writeRows(f, domain.ResultsSheet, next, rows)
	})
}

// update opens the workbook (or starts a new one), applies fn and saves
func (w *Workbook) update(fn func(f *excelize.File) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := excelize.OpenFile(w.Path)
	if errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
	} else if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return err
	}
	if err := f.SaveAs(w.Path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheetName string, header []string) error {
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &cells); err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{HeaderColor}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheetName, "A1", last, style)
}

func writeRows(f *excelize.File, sheetName string, firstLine int, rows []domain.ReportRow) error {
	styles := make(map[string]int)
	for i, r := range rows {
		line := firstLine + i
		values := r.Values()
		cells := make([]any, len(values))
		for j, v := range values {
			cells[j] = v
		}
		start, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, start, &cells); err != nil {
			return err
		}

		color := domain.StatusColor(r.Status)
		style, ok := styles[color]
		if !ok {
			style, err = f.NewStyle(&excelize.Style{
				Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			})
			if err != nil {
				return err
			}
			styles[color] = style
		}
		end, err := excelize.CoordinatesToCellName(len(values), line)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, start, end, style); err != nil {
			return err
		}
	}
	return nil
}
