package sheet

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// Spreadsheet is a Source backed by a Google spreadsheet
type Spreadsheet struct {
	ID  string
	svc *sheets.Service
}

var _ Source = (*Spreadsheet)(nil)

// NewSpreadsheet wraps an existing Sheets service
func NewSpreadsheet(svc *sheets.Service, spreadsheetID string) *Spreadsheet {
	return &Spreadsheet{ID: spreadsheetID, svc: svc}
}

// OpenSpreadsheet builds a Sheets service from a service-account key file, or
// from application default credentials when credentialsFile is empty. Extra
// options (e.g. option.WithEndpoint) are passed through.
func OpenSpreadsheet(ctx context.Context, spreadsheetID, credentialsFile string, opts ...option.ClientOption) (*Spreadsheet, error) {
	if len(opts) == 0 {
		client, err := googleClient(ctx, credentialsFile, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithHTTPClient(client))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewSpreadsheet(svc, spreadsheetID), nil
}

func googleClient(ctx context.Context, credentialsFile string, scopes ...string) (*http.Client, error) {
	if credentialsFile == "" {
		c, err := google.DefaultClient(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("default credentials: %w", err)
		}
		return c, nil
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return cfg.Client(ctx), nil
}

// a1 quotes a sheet name for A1 notation
func a1(sheetName, cells string) string {
	return "'" + strings.ReplaceAll(sheetName, "'", "''") + "'!" + cells
}

// ReadSchedule implements Source
func (s *Spreadsheet) ReadSchedule(ctx context.Context) (*Schedule, error) {
	titles, err := s.sheetIDs(ctx)
	if err != nil {
		return nil, err
	}
	return readBoth(func(name string) ([][]string, error) {
		if _, ok := titles[name]; !ok {
			return nil, fmt.Errorf("%w: sheet %q not found", ErrStructure, name)
		}
		vr, err := s.svc.Spreadsheets.Values.Get(s.ID, a1(name, "A:Z")).
			ValueRenderOption("UNFORMATTED_VALUE").
			DateTimeRenderOption("SERIAL_NUMBER").
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		rows := make([][]string, len(vr.Values))
		for i, raw := range vr.Values {
			rows[i] = make([]string, len(raw))
			for j, v := range raw {
				rows[i][j] = cellString(v)
			}
		}
		normalizeDates(rows)
		return rows, nil
	})
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// WritePreview implements Source
func (s *Spreadsheet) WritePreview(ctx context.Context, rows []domain.ReportRow) error {
	sheetID, err := s.ensureSheet(ctx, domain.PreviewResultsSheet)
	if err != nil {
		return err
	}
	if _, err := s.svc.Spreadsheets.Values.Clear(s.ID, a1(domain.PreviewResultsSheet, "A:Z"), &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear preview: %w", err)
	}

	values := [][]any{toCells(domain.PreviewHeader)}
	for _, r := range rows {
		values = append(values, toCells(r.Values()))
	}
	if _, err := s.svc.Spreadsheets.Values.Update(s.ID, a1(domain.PreviewResultsSheet, "A1"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}

	reqs := []*sheets.Request{headerFormat(sheetID, len(domain.PreviewHeader))}
	reqs = append(reqs, statusFormats(sheetID, 1, rows)...)
	return s.batch(ctx, reqs)
}

// AppendResults implements Source
func (s *Spreadsheet) AppendResults(ctx context.Context, rows []domain.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}
	titles, err := s.sheetIDs(ctx)
	if err != nil {
		return err
	}
	sheetID, ok := titles[domain.ResultsSheet]
	if !ok {
		if sheetID, err = s.addSheet(ctx, domain.ResultsSheet); err != nil {
			return err
		}
		if _, err := s.svc.Spreadsheets.Values.Update(s.ID, a1(domain.ResultsSheet, "A1"), &sheets.ValueRange{Values: [][]any{toCells(domain.ResultsHeader)}}).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write results header: %w", err)
		}
		if err := s.batch(ctx, []*sheets.Request{headerFormat(sheetID, len(domain.ResultsHeader))}); err != nil {
			return err
		}
	}

	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, toCells(r.Values()))
	}
	resp, err := s.svc.Spreadsheets.Values.Append(s.ID, a1(domain.ResultsSheet, "A1"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append results: %w", err)
	}
	if resp.Updates == nil {
		return nil
	}
	first, ok := firstRow(resp.Updates.UpdatedRange)
	if !ok {
		return nil
	}
	return s.batch(ctx, statusFormats(sheetID, first-1, rows))
}

func (s *Spreadsheet) sheetIDs(ctx context.Context) (map[string]int64, error) {
	ss, err := s.svc.Spreadsheets.Get(s.ID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}
	out := make(map[string]int64, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			out[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	return out, nil
}

func (s *Spreadsheet) ensureSheet(ctx context.Context, title string) (int64, error) {
	titles, err := s.sheetIDs(ctx)
	if err != nil {
		return 0, err
	}
	if id, ok := titles[title]; ok {
		return id, nil
	}
	return s.addSheet(ctx, title)
}

func (s *Spreadsheet) addSheet(ctx context.Context, title string) (int64, error) {
	resp, err := s.svc.Spreadsheets.BatchUpdate(s.ID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}}}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add sheet %s: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("add sheet %s: empty reply", title)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func (s *Spreadsheet) batch(ctx context.Context, reqs []*sheets.Request) error {
	if len(reqs) == 0 {
		return nil
	}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.ID, &sheets.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("format sheet: %w", err)
	}
	return nil
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func color(hex string) *sheets.Color {
	r, g, b := rgb(hex)
	return &sheets.Color{Red: r, Green: g, Blue: b}
}

func gridRange(sheetID int64, row, cols int) *sheets.GridRange {
	return &sheets.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    int64(row),
		EndRowIndex:      int64(row + 1),
		StartColumnIndex: 0,
		EndColumnIndex:   int64(cols),
		ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
	}
}

func headerFormat(sheetID int64, cols int) *sheets.Request {
	return &sheets.Request{RepeatCell: &sheets.RepeatCellRequest{
		Range: gridRange(sheetID, 0, cols),
		Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
			BackgroundColor: color(HeaderColor),
			TextFormat:      &sheets.TextFormat{Bold: true},
		}},
		Fields: "userEnteredFormat(backgroundColor,textFormat)",
	}}
}

// statusFormats colors rows starting at the 0-based row index first
func statusFormats(sheetID int64, first int, rows []domain.ReportRow) []*sheets.Request {
	reqs := make([]*sheets.Request, 0, len(rows))
	for i, r := range rows {
		reqs = append(reqs, &sheets.Request{RepeatCell: &sheets.RepeatCellRequest{
			Range: gridRange(sheetID, first+i, len(domain.ResultsHeader)),
			Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
				BackgroundColor: color(domain.StatusColor(r.Status)),
			}},
			Fields: "userEnteredFormat.backgroundColor",
		}})
	}
	return reqs
}

var updatedRangeRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// firstRow extracts the 1-based first row from a range like "'Results'!A5:I7"
func firstRow(updatedRange string) (int, bool) {
	m := updatedRangeRe.FindStringSubmatch(updatedRange)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}
