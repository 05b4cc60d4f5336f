//go:build integration

package integration

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hochfrequenz/asset-scheduler/internal/catalog/catalogtest"
	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

const customerID = "1234567890"

var textHeader = []any{"Campaign Name", "Asset Group Name", "Text Type", "Text", "Add Date", "Add Hour", "Remove Date", "Remove Hour"}

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// TempConfigPath creates a temporary config file path for testing
func TempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.toml")
}

// Platform is a fake campaign platform served over HTTP
type Platform struct {
	*catalogtest.Fake
	Group string
	URL   string
}

// StartPlatform serves a fake platform holding "Campaign A" with one asset
// group that has room for more headlines
func StartPlatform(t *testing.T) *Platform {
	t.Helper()
	f := catalogtest.New()
	cid := f.AddCampaign("Campaign A")
	group := f.AddGroup(cid, "Group 1")
	f.AddTexts(group, "HEADLINE", 3)
	f.AddTexts(group, "LONG_HEADLINE", 2)
	f.AddTexts(group, "DESCRIPTION", 2)

	srv := httptest.NewServer(catalogtest.Handler(f, customerID))
	t.Cleanup(srv.Close)
	return &Platform{Fake: f, Group: group, URL: srv.URL}
}

// WriteWorkbook creates a schedule workbook whose text sheet holds rows
// (cells in header order) and returns its path
func WriteWorkbook(t *testing.T, rows ...[]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.xlsx")

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", domain.TextSheet); err != nil {
		t.Fatalf("Failed to name sheet: %v", err)
	}
	if err := f.SetSheetRow(domain.TextSheet, "A1", &textHeader); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}
	for i, row := range rows {
		cell := "A" + strconv.Itoa(i+2)
		if err := f.SetSheetRow(domain.TextSheet, cell, &row); err != nil {
			t.Fatalf("Failed to write row %d: %v", i+2, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("Failed to save workbook: %v", err)
	}
	return path
}

// SheetRows returns the cells of a workbook sheet, header included
func SheetRows(t *testing.T, path, sheetName string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", sheetName, err)
	}
	return rows
}

// DueNow returns the date and hour cells of an ADD that is due right now
// in UTC
func DueNow() (string, int) {
	now := time.Now().UTC()
	return now.Format("2006-01-02"), now.Hour()
}

// writeFile writes content, creating parent directories
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}
