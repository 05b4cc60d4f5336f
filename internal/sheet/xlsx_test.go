package sheet

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

func writeFixture(t *testing.T, withImages bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.xlsx")

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", domain.TextSheet))
	header := make([]any, len(textHeader))
	for i, h := range textHeader {
		header[i] = h
	}
	require.NoError(t, f.SetSheetRow(domain.TextSheet, "A1", &header))
	require.NoError(t, f.SetSheetRow(domain.TextSheet, "A2", &[]any{"Campaign A", "Group 1", "HEADLINE", "Shop Now", "2025-11-16", 10}))
	require.NoError(t, f.SetSheetRow(domain.TextSheet, "A3", &[]any{"Campaign A", "Group 1", "DESCRIPTION", "Free shipping"}))
	require.NoError(t, f.SetCellValue(domain.TextSheet, "E3", time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)))

	if withImages {
		_, err := f.NewSheet(domain.ImageSheet)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(domain.ImageSheet, "A1", &[]any{"Campaign Name", "Asset Group Name", "Image Type", "Asset ID", "Add Date", "Add Hour", "Remove Date", "Remove Hour"}))
		require.NoError(t, f.SetSheetRow(domain.ImageSheet, "A2", &[]any{"Campaign A", "Group 1", "SQUARE", "555", "", "", "2025-11-17", 14}))
	}
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestWorkbook_ReadSchedule(t *testing.T) {
	w := NewWorkbook(writeFixture(t, true))

	s, err := w.ReadSchedule(context.Background())
	require.NoError(t, err)
	require.Len(t, s.Text, 2)
	require.Len(t, s.Image, 1)
	assert.Empty(t, s.Errors)

	assert.Equal(t, "Shop Now", s.Text[0].Member)
	assert.Equal(t, "2025-11-16", s.Text[0].AddDate)
	assert.Equal(t, "10", s.Text[0].AddHour)
	assert.Equal(t, "2025-11-20", s.Text[1].AddDate, "date serials are normalised")

	assert.Equal(t, "555", s.Image[0].Member)
	assert.Equal(t, "14", s.Image[0].RemoveHour)
	assert.Equal(t, domain.RowID{Sheet: domain.ImageSheet, Line: 2}, s.Image[0].ID)
}

func TestWorkbook_MissingSheet(t *testing.T) {
	w := NewWorkbook(writeFixture(t, false))

	s, err := w.ReadSchedule(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Text, 2)
	assert.ErrorIs(t, s.Errors[domain.ImageSheet], ErrStructure)
}

func TestWorkbook_WritePreviewReplaces(t *testing.T) {
	path := writeFixture(t, true)
	w := NewWorkbook(path)
	ctx := context.Background()

	first := []domain.ReportRow{
		{Campaign: "Campaign A", Status: domain.StatusOK},
		{Campaign: "Campaign B", Status: domain.StatusError},
	}
	require.NoError(t, w.WritePreview(ctx, first))
	require.NoError(t, w.WritePreview(ctx, first[:1]))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(domain.PreviewResultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.PreviewHeader, rows[0])
	assert.Equal(t, "Campaign A", rows[1][1])

	styleID, err := f.GetCellStyle(domain.PreviewResultsSheet, "A2")
	require.NoError(t, err)
	assert.NotZero(t, styleID, "status rows are filled")
}

func TestWorkbook_AppendResults(t *testing.T) {
	path := writeFixture(t, true)
	w := NewWorkbook(path)
	ctx := context.Background()

	require.NoError(t, w.AppendResults(ctx, []domain.ReportRow{{Member: "one", Status: domain.StatusSuccess}}))
	require.NoError(t, w.AppendResults(ctx, []domain.ReportRow{{Member: "two", Status: domain.StatusError}}))
	require.NoError(t, w.AppendResults(ctx, nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(domain.ResultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, domain.ResultsHeader, rows[0])
	assert.Equal(t, "one", rows[1][4])
	assert.Equal(t, "two", rows[2][4])
}

func TestWorkbook_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.xlsx")
	w := NewWorkbook(path)
	require.NoError(t, w.AppendResults(context.Background(), []domain.ReportRow{{Member: "x"}}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	idx, err := f.GetSheetIndex(domain.ResultsSheet)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, idx, 0)
}
