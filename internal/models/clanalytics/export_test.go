package clanalytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	return records
}

func TestParseExportType(t *testing.T) {
	for _, value := range []string{"summary", "pageviews", "visitors"} {
		et, err := ParseExportType(value)
		require.NoError(t, err)
		assert.Equal(t, ExportType(value), et)
	}

	_, err := ParseExportType("events")
	assert.ErrorIs(t, err, ErrInvalidExportType)
	_, err = ParseExportType("")
	assert.ErrorIs(t, err, ErrInvalidExportType)
}

func TestExportFilename(t *testing.T) {
	r := DateRange{Start: day("2025-03-01"), End: day("2025-03-05")}
	assert.Equal(t, "analytics_summary_2025-03-01_to_2025-03-05.csv", ExportSummary.Filename(r))
	assert.Equal(t, "pageviews_2025-03-01_to_2025-03-05.csv", ExportPageViews.Filename(r))
	assert.Equal(t, "visitors_2025-03-01_to_2025-03-05.csv", ExportVisitors.Filename(r))
}

func TestExportSummary(t *testing.T) {
	as, _ := setupTestService(t)
	require.NoError(t, as.Db().Create(&DailySummary{Date: "2025-03-02", TotalVisits: 5, UniqueVisitors: 3, SessionCount: 4}).Error)

	var buf bytes.Buffer
	r := DateRange{Start: day("2025-03-01"), End: day("2025-03-03")}
	require.NoError(t, as.Export(context.Background(), ExportSummary, r, &buf))

	assert.Equal(t, [][]string{
		{"Date", "Total Visits", "Unique Visitors", "Session Count"},
		{"2025-03-01", "0", "0", "0"},
		{"2025-03-02", "5", "3", "4"},
		{"2025-03-03", "0", "0", "0"},
	}, readCSV(t, &buf))
}

func TestExportPageViewsEscaping(t *testing.T) {
	as, _ := setupTestService(t)
	name := `Hello, "World"`

	_, err := as.TrackPageView(context.Background(), PageViewInput{
		VisitorID: "v1", SessionID: "s1", PageName: name, Path: "/projects/hello",
	})
	require.NoError(t, err)
	insertPageView(t, as.Db(), "admin-1", "/admin", "v1", "s1", testNow)

	var buf bytes.Buffer
	r := ParseRange("", "", DefaultExportDays, testNow)
	require.NoError(t, as.Export(context.Background(), ExportPageViews, r, &buf))

	assert.Contains(t, buf.String(), `"Hello, ""World"""`)

	records := readCSV(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"Date", "Path", "Page Name", "Visitor ID", "Session ID"}, records[0])
	assert.Equal(t, []string{"2025-03-10T12:00:00Z", "/projects/hello", name, "v1", "s1"}, records[1])
}

func TestExportVisitors(t *testing.T) {
	as, clock := setupTestService(t)
	ctx := context.Background()

	_, err := as.TrackPageView(ctx, PageViewInput{
		VisitorID: "v1", SessionID: "s1", PageName: "Home", Path: "/", Referrer: "https://a.example/?q=x,y",
	})
	require.NoError(t, err)
	trackView(t, as, "v1", "s1", "/about")

	// premier passage hors plage
	clock.Set(testNow.AddDate(0, -3, 0))
	trackView(t, as, "v-old", "s-old", "/")
	clock.Set(testNow)

	var buf bytes.Buffer
	r := DateRange{Start: day("2025-03-01"), End: day("2025-03-10")}
	require.NoError(t, as.Export(ctx, ExportVisitors, r, &buf))

	assert.Equal(t, [][]string{
		{"Visitor ID", "First Visit", "Last Visit", "Visit Count", "Referrer"},
		{"v1", "2025-03-10T12:00:00Z", "2025-03-10T12:00:00Z", "2", "https://a.example/?q=x,y"},
	}, readCSV(t, &buf))
}

func TestExportInvalidType(t *testing.T) {
	as, _ := setupTestService(t)

	var buf bytes.Buffer
	err := as.Export(context.Background(), ExportType("events"), ParseRange("", "", DefaultExportDays, testNow), &buf)
	assert.ErrorIs(t, err, ErrInvalidExportType)
	assert.Zero(t, buf.Len())
}
