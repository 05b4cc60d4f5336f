package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/asset-scheduler/internal/catalog/catalogtest"
	"github.com/hochfrequenz/asset-scheduler/internal/conflict"
	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/notify"
	"github.com/hochfrequenz/asset-scheduler/internal/observer"
	"github.com/hochfrequenz/asset-scheduler/internal/runstore"
	"github.com/hochfrequenz/asset-scheduler/internal/sheet"
	"github.com/hochfrequenz/asset-scheduler/internal/validator"
)

// memSource is an in-memory workbook
type memSource struct {
	mu            sync.Mutex
	rows          []*domain.ScheduleRow
	readErr       error
	preview       []domain.ReportRow
	previewWrites int
	results       []domain.ReportRow
}

func (m *memSource) ReadSchedule(context.Context) (*sheet.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	s := &sheet.Schedule{Errors: map[string]error{}}
	for _, r := range m.rows {
		cp := *r
		if cp.Kind == domain.KindImage {
			s.Image = append(s.Image, &cp)
		} else {
			s.Text = append(s.Text, &cp)
		}
	}
	return s, nil
}

func (m *memSource) WritePreview(_ context.Context, rows []domain.ReportRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preview = rows
	m.previewWrites++
	return nil
}

func (m *memSource) AppendResults(_ context.Context, rows []domain.ReportRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, rows...)
	return nil
}

type recordingNotifier struct {
	sent []notify.Notification
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

var (
	cet = time.FixedZone("CET", 3600)
	now = time.Date(2025, 11, 16, 10, 5, 0, 0, cet)
)

type harness struct {
	fake   *catalogtest.Fake
	group1 string
	feed   string // placeholder group without advertiser headlines
	src    *memSource
	store  *runstore.Store
	notes  *recordingNotifier
	obs    *observer.Observer
	runner *Runner
}

func newHarness(t *testing.T, rows ...*domain.ScheduleRow) *harness {
	t.Helper()
	fake := catalogtest.New()
	cid := fake.AddCampaign("Campaign A")
	g1 := fake.AddGroup(cid, "Group 1")
	fake.AddTexts(g1, "HEADLINE", 3)
	fake.AddTexts(g1, "LONG_HEADLINE", 4)
	feed := fake.AddGroup(cid, "Feed Only")

	store, err := runstore.New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		fake:   fake,
		group1: g1,
		feed:   feed,
		src:    &memSource{rows: rows},
		store:  store,
		notes:  &recordingNotifier{},
		obs:    observer.New(time.Hour),
	}
	r := New(h.src, fake, nil)
	r.Store = store
	r.Notifier = h.notes
	r.Observer = h.obs
	r.Location = cet
	r.Clock = func() time.Time { return now }
	noSleep := func(context.Context, time.Duration) error { return nil }
	r.Executor.Sleep = noSleep
	r.Report.Account = "Test"
	h.runner = r
	return h
}

func textRow(line int, typ, text, date, hour string) *domain.ScheduleRow {
	return &domain.ScheduleRow{
		ID:         domain.RowID{Sheet: domain.TextSheet, Line: line},
		Kind:       domain.KindText,
		Campaign:   "Campaign A",
		AssetGroup: "Group 1",
		MemberType: typ,
		Member:     text,
		AddDate:    date,
		AddHour:    hour,
		Cells:      []string{"Campaign A", "Group 1", typ, text, date, hour, "", ""},
	}
}

// removeRow turns a row into a removal on date at hour
func removeRow(row *domain.ScheduleRow, date, hour string) *domain.ScheduleRow {
	row.AddDate, row.AddHour = "", ""
	row.RemoveDate, row.RemoveHour = date, hour
	row.Cells = []string{row.Campaign, row.AssetGroup, row.MemberType, row.Member, "", "", date, hour}
	return row
}

// allGroups clears the asset group cell so the row targets every group
func allGroups(row *domain.ScheduleRow) *domain.ScheduleRow {
	row.AssetGroup = ""
	row.Cells[1] = ""
	return row
}

func imageRow(line int, typ, id string) *domain.ScheduleRow {
	return &domain.ScheduleRow{
		ID:         domain.RowID{Sheet: domain.ImageSheet, Line: line},
		Kind:       domain.KindImage,
		Campaign:   "Campaign A",
		AssetGroup: "Group 1",
		MemberType: typ,
		Member:     id,
		Cells:      []string{"Campaign A", "Group 1", typ, id, "", "", "", ""},
	}
}

func at(hour, minute int) func() time.Time {
	return func() time.Time { return time.Date(2025, 11, 16, hour, minute, 0, 0, cet) }
}

func TestRun_ExecutesVerifiesAndReports(t *testing.T) {
	h := newHarness(t,
		allGroups(textRow(2, "long_headline", "Shop Now", "2025-11-16", "10")),
		allGroups(textRow(3, "HEADLINE", "Winter Sale", "2025-11-20", "9")),
	)

	res, err := h.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, domain.RunExecuted, res.Run.Status)
	require.Len(t, res.Results, 1)
	assert.Equal(t, domain.StatusSuccess, res.Results[0].Status)
	assert.Equal(t, "Executed (attempt 1) [Verified ✓]", res.Results[0].Message)
	assert.Equal(t, "LONG_HEADLINE", res.Results[0].MemberType)
	assert.Equal(t, res.Results, h.src.results)

	require.Len(t, res.Preview, 1)
	assert.Equal(t, "Winter Sale", res.Preview[0].Member)
	assert.Equal(t, domain.StatusOK, res.Preview[0].Status)
	assert.Equal(t, res.Preview, h.src.preview)

	var found bool
	for _, l := range h.fake.Links(h.group1) {
		if l.FieldType == "LONG_HEADLINE" && l.Text == "Shop Now" {
			found = true
		}
	}
	assert.True(t, found, "Shop Now should be linked")
	assert.Equal(t, "Group 1", res.Results[0].AssetGroup)
	assert.Equal(t, "Group 1", res.Preview[0].AssetGroup)
	assert.Empty(t, h.fake.Links(h.feed), "placeholder groups are never targeted")

	c := res.Run.Counts
	assert.Equal(t, 2, c.Rows)
	assert.Equal(t, 2, c.InRange)
	assert.Equal(t, 1, c.InWindow)
	assert.Equal(t, 1, c.Warnings)
	assert.Equal(t, 1, c.OK)
	assert.Equal(t, 1, c.Executed)
	assert.Equal(t, 1, c.Succeeded)

	stored, err := h.store.GetRun(context.Background(), res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunExecuted, stored.Status)
	assert.NotNil(t, stored.FinishedAt)

	results, err := h.store.Results(context.Background(), res.Run.ID)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	require.Len(t, h.notes.sent, 2)
	assert.Contains(t, h.notes.sent[0].Title, "Preview Report")
	assert.Contains(t, h.notes.sent[1].Title, "Execution Report")

	m := h.obs.GetMetrics()
	assert.Equal(t, 1, m.TotalRuns)
}

func TestRun_SkipsUnchangedSchedule(t *testing.T) {
	h := newHarness(t, textRow(2, "HEADLINE", "Winter Sale", "2025-11-20", "9"))
	ctx := context.Background()

	first, err := h.runner.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunPreviewed, first.Run.Status)
	assert.Equal(t, 1, h.src.previewWrites)

	second, err := h.runner.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSkipped, second.Run.Status)
	assert.Equal(t, 1, h.src.previewWrites)
	assert.Len(t, h.notes.sent, 1)

	forced, err := h.runner.Run(ctx, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, domain.RunPreviewed, forced.Run.Status)
	assert.Equal(t, 2, h.src.previewWrites)

	runs, err := h.store.ListRuns(ctx, runstore.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRun_EditInvalidatesFingerprint(t *testing.T) {
	h := newHarness(t, textRow(2, "HEADLINE", "Winter Sale", "2025-11-20", "9"))
	ctx := context.Background()

	_, err := h.runner.Run(ctx, Options{})
	require.NoError(t, err)

	h.src.rows = append(h.src.rows, textRow(3, "HEADLINE", "Spring Sale", "2025-11-21", "9"))
	res, err := h.runner.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunPreviewed, res.Run.Status)
	assert.Len(t, h.src.preview, 2)
}

func TestRun_PreviewModeNeverExecutes(t *testing.T) {
	h := newHarness(t, textRow(2, "LONG_HEADLINE", "Shop Now", "2025-11-16", "10"))

	res, err := h.runner.Run(context.Background(), Options{Mode: domain.ModePreview})
	require.NoError(t, err)

	assert.Equal(t, domain.RunPreviewed, res.Run.Status)
	assert.Zero(t, h.fake.MutationCount())
	assert.Empty(t, h.src.results)
	require.Len(t, res.Preview, 1)
	assert.Equal(t, domain.StatusWarning, res.Preview[0].Status)
}

func TestRun_DryRun(t *testing.T) {
	h := newHarness(t, textRow(2, "LONG_HEADLINE", "Shop Now", "2025-11-16", "10"))

	res, err := h.runner.Run(context.Background(), Options{Mode: domain.ModeDryRun})
	require.NoError(t, err)

	assert.Equal(t, domain.RunExecuted, res.Run.Status)
	assert.Zero(t, h.fake.MutationCount())
	require.Len(t, res.Results, 1)
	assert.Equal(t, domain.StatusSuccess, res.Results[0].Status)
	assert.Equal(t, "Dry run (not executed)", res.Results[0].Message)
	assert.Contains(t, res.Run.Message, "dry run")
}

func TestRun_DuplicateRowsExecuteOnce(t *testing.T) {
	h := newHarness(t,
		textRow(2, "LONG_HEADLINE", "Shop Now", "2025-11-16", "10"),
		textRow(3, "LONG_HEADLINE", "Shop Now", "2025-11-16", "10"),
	)

	res, err := h.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Run.Counts.Duplicates)
	assert.Equal(t, 1, res.Run.Counts.Executed)
	require.Len(t, res.Results, 2)
	for _, row := range res.Results {
		assert.Equal(t, domain.StatusSuccess, row.Status)
	}

	linked := 0
	for _, l := range h.fake.Links(h.group1) {
		if l.Text == "Shop Now" {
			linked++
		}
	}
	assert.Equal(t, 1, linked)
}

func TestRun_ImageAddAndRemoveInSameHourConflict(t *testing.T) {
	add := imageRow(2, "SQUARE", "555")
	add.AddDate, add.AddHour = "2025-11-16", "14"
	add.Cells[4], add.Cells[5] = "2025-11-16", "14"
	h := newHarness(t, add, removeRow(imageRow(3, "SQUARE", "555"), "2025-11-16", "14"))
	h.fake.AddImage("555", 1200, 1200)
	h.runner.Clock = at(14, 5)

	res, err := h.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Zero(t, h.fake.MutationCount())
	assert.Equal(t, 1, res.Run.Counts.Conflicts)
	require.Len(t, res.Results, 2)
	for _, row := range res.Results {
		assert.Equal(t, domain.StatusError, row.Status, row.Action)
		assert.True(t, strings.HasPrefix(row.Message, conflict.Message), row.Message)
	}
	for _, l := range h.fake.Links(h.group1) {
		assert.NotEqual(t, "555", l.AssetID)
	}
}

func TestRun_ConflictWithAlreadyLinkedText(t *testing.T) {
	h := newHarness(t,
		textRow(2, "LONG_HEADLINE", "Promo", "2025-11-16", "14"),
		removeRow(textRow(3, "LONG_HEADLINE", "Promo", "", ""), "2025-11-16", "14"),
	)
	h.fake.AddText(h.group1, "LONG_HEADLINE", "Promo")
	h.runner.Clock = at(14, 5)

	res, err := h.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Zero(t, h.fake.MutationCount(), "the REMOVE must not run on its own")
	assert.Equal(t, 1, res.Run.Counts.Conflicts)
	require.Len(t, res.Results, 2)
	byAction := map[string]domain.ReportRow{}
	for _, row := range res.Results {
		assert.Equal(t, domain.StatusError, row.Status)
		byAction[row.Action] = row
	}
	assert.Equal(t, conflict.Message, byAction["REMOVE"].Message)
	assert.Contains(t, byAction["ADD"].Message, conflict.Message)
	assert.Contains(t, byAction["ADD"].Message, "already exists")

	var promo int
	for _, l := range h.fake.Links(h.group1) {
		if l.Text == "Promo" {
			promo++
		}
	}
	assert.Equal(t, 1, promo)
}

func TestRun_ConflictOnlyWithinTheSameDay(t *testing.T) {
	h := newHarness(t,
		textRow(2, "LONG_HEADLINE", "Promo", "2025-11-18", "14"),
		removeRow(textRow(3, "LONG_HEADLINE", "Promo", "", ""), "2025-11-19", "14"),
	)
	h.fake.AddText(h.group1, "LONG_HEADLINE", "Promo")

	res, err := h.runner.Run(context.Background(), Options{Mode: domain.ModePreview})
	require.NoError(t, err)

	assert.Zero(t, res.Run.Counts.Conflicts)
	require.Len(t, res.Preview, 2)
	for _, row := range res.Preview {
		assert.NotContains(t, row.Message, conflict.Message)
	}
}

func TestRun_ConfiguredLimits(t *testing.T) {
	h := newHarness(t, textRow(2, "LONG_HEADLINE", "Shop Now", "2025-11-16", "10"))
	h.runner.Rules.Text[domain.LongHeadline] = validator.Limits{Min: 1, Max: 4, MaxLen: 90}

	res, err := h.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Zero(t, h.fake.MutationCount())
	require.Len(t, res.Results, 1)
	assert.Contains(t, res.Results[0].Message, "MAX limit exceeded (4+1 > 4)")
}

func TestRun_ErrorsAreReportedNotExecuted(t *testing.T) {
	row := textRow(2, "HEADLINE", strings.Repeat("x", 40), "2025-11-16", "10")
	h := newHarness(t, row)

	res, err := h.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, domain.RunExecuted, res.Run.Status)
	assert.Zero(t, h.fake.MutationCount())
	require.Len(t, h.src.results, 1)
	assert.Equal(t, domain.StatusError, h.src.results[0].Status)
	assert.Contains(t, h.src.results[0].Message, "Too long")
}

func TestRun_NothingInRangeClearsPreview(t *testing.T) {
	h := newHarness(t, textRow(2, "HEADLINE", "Next Year", "2026-06-01", "9"))
	h.src.preview = []domain.ReportRow{{Member: "stale"}}

	res, err := h.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, domain.RunSkipped, res.Run.Status)
	assert.Empty(t, h.src.preview)
	assert.Equal(t, 1, res.Run.Counts.Rows)
	assert.Zero(t, res.Run.Counts.InRange)
}

func TestRun_EmptyMembersAreDropped(t *testing.T) {
	h := newHarness(t, textRow(2, "HEADLINE", "", "2025-11-16", "10"))

	res, err := h.runner.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSkipped, res.Run.Status)
	assert.Zero(t, res.Run.Counts.Rows)
}

func TestRun_ReadFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	h.src.readErr = errors.New("workbook locked")

	res, err := h.runner.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workbook locked")
	assert.Equal(t, domain.RunFailed, res.Run.Status)

	stored, err := h.store.GetRun(context.Background(), res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, stored.Status)
	assert.Contains(t, stored.Message, "workbook locked")
}

func TestFingerprint(t *testing.T) {
	a := textRow(2, "HEADLINE", "A", "2025-11-16", "10")
	b := textRow(3, "HEADLINE", "B", "2025-11-16", "10")

	assert.Equal(t, Fingerprint([]*domain.ScheduleRow{a, b}), Fingerprint([]*domain.ScheduleRow{a, b}))
	assert.NotEqual(t, Fingerprint([]*domain.ScheduleRow{a, b}), Fingerprint([]*domain.ScheduleRow{b, a}))
	assert.NotEqual(t, Fingerprint([]*domain.ScheduleRow{a}), Fingerprint([]*domain.ScheduleRow{a, b}))
	assert.Len(t, Fingerprint(nil), 64)
}
