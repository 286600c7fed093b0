package clanalytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateDailySummaryExcludesAdmin(t *testing.T) {
	as, _ := setupTestService(t)
	ctx := context.Background()

	visitors := []string{"v1", "v2", "v3"}
	for i := 0; i < 10; i++ {
		v := visitors[i%len(visitors)]
		trackView(t, as, v, "s-"+v, "/")
	}

	// cinq pages d'administration par un quatrième visiteur dans sa propre session
	require.NoError(t, as.Db().Create(&Session{ID: "s-admin", VisitorID: "v-admin", StartTime: testNow, EndTime: testNow, PageCount: 5}).Error)
	for i := 0; i < 5; i++ {
		insertPageView(t, as.Db(), fmt.Sprintf("admin-%d", i), "/admin/posts", "v-admin", "s-admin", testNow)
	}

	result, err := as.UpdateDailySummary(ctx, testNow, false)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10", result.Date)
	assert.Equal(t, int64(10), result.TotalVisits)
	assert.Equal(t, result.TotalVisits, result.TotalPageViews)
	assert.Equal(t, int64(3), result.UniqueVisitors)
	assert.Equal(t, int64(3), result.SessionCount)
	require.Len(t, result.PopularPages, 1)
	assert.Equal(t, PageCount{Path: "/", Count: 10}, result.PopularPages[0])
}

func TestUpdateDailySummaryIsIdempotent(t *testing.T) {
	as, clock := setupTestService(t)
	ctx := context.Background()

	trackView(t, as, "v1", "s1", "/")
	trackView(t, as, "v2", "s2", "/projects/")

	first, err := as.UpdateDailySummary(ctx, testNow, false)
	require.NoError(t, err)

	clock.Set(testNow.Add(time.Minute))
	second, err := as.UpdateDailySummary(ctx, testNow, true)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.TotalVisits, second.TotalVisits)
	assert.Equal(t, first.UniqueVisitors, second.UniqueVisitors)
	assert.Equal(t, first.SessionCount, second.SessionCount)
	assert.Equal(t, first.PopularPages, second.PopularPages)
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))

	var count int64
	as.Db().Model(&DailySummary{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUpdateDailySummaryReflectsNewData(t *testing.T) {
	as, _ := setupTestService(t)
	ctx := context.Background()

	trackView(t, as, "v1", "s1", "/")
	first, err := as.UpdateDailySummary(ctx, testNow, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.TotalVisits)

	trackView(t, as, "v2", "s2", "/")
	second, err := as.UpdateDailySummary(ctx, testNow, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.TotalVisits)
	assert.Equal(t, int64(2), second.UniqueVisitors)
}

func TestUpdateDailySummaryPopularPagesOrder(t *testing.T) {
	as, _ := setupTestService(t)

	for _, path := range []string{"/b", "/a", "/c", "/b", "/a", "/b", "/a"} {
		trackView(t, as, "v1", "s1", path)
	}

	result, err := as.UpdateDailySummary(context.Background(), testNow, false)
	require.NoError(t, err)

	assert.Equal(t, []PageCount{
		{Path: "/a", Count: 3},
		{Path: "/b", Count: 3},
		{Path: "/c", Count: 1},
	}, result.PopularPages)
}

func TestUpdateDailySummaryPopularPagesLimit(t *testing.T) {
	as, _ := setupTestService(t)

	for i := 0; i < topPagesLimit+5; i++ {
		trackView(t, as, "v1", "s1", fmt.Sprintf("/p%02d", i))
	}

	result, err := as.UpdateDailySummary(context.Background(), testNow, false)
	require.NoError(t, err)
	assert.Len(t, result.PopularPages, topPagesLimit)
}

func TestUpdateDailySummaryEmptyDay(t *testing.T) {
	as, _ := setupTestService(t)

	result, err := as.UpdateDailySummary(context.Background(), testNow.AddDate(0, 0, -3), false)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-07", result.Date)
	assert.Zero(t, result.TotalVisits)
	assert.Zero(t, result.UniqueVisitors)
	assert.Zero(t, result.SessionCount)
	assert.NotNil(t, result.PopularPages)
	assert.Empty(t, result.PopularPages)
}

func TestUpdateDailySummaryZeroDayMeansToday(t *testing.T) {
	as, _ := setupTestService(t)
	trackView(t, as, "v1", "s1", "/")

	result, err := as.UpdateDailySummary(context.Background(), time.Time{}, false)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", result.Date)
	assert.Equal(t, int64(1), result.TotalVisits)
}

func TestUpdateDailySummaryDayBoundaries(t *testing.T) {
	as, _ := setupTestService(t)
	db := as.Db()

	require.NoError(t, db.Create(&Session{ID: "s1", VisitorID: "v1", StartTime: testNow, EndTime: testNow}).Error)
	insertPageView(t, db, "pv-before", "/", "v1", "s1", time.Date(2025, 3, 9, 23, 59, 59, 0, time.UTC))
	insertPageView(t, db, "pv-start", "/", "v1", "s1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	insertPageView(t, db, "pv-end", "/", "v1", "s1", time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC))
	insertPageView(t, db, "pv-after", "/", "v1", "s1", time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC))

	result, err := as.UpdateDailySummary(context.Background(), testNow, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalVisits)
}

func TestUpdateDailySummarySubMillisecondEndOfDay(t *testing.T) {
	as, clock := setupTestService(t)
	ctx := context.Background()

	clock.Set(time.Date(2025, 3, 10, 23, 59, 59, 999500000, time.UTC))
	trackView(t, as, "v1", "s1", "/")

	result, err := as.UpdateDailySummary(ctx, day("2025-03-10"), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalVisits)
	assert.Equal(t, int64(1), result.SessionCount)

	result, err = as.UpdateDailySummary(ctx, day("2025-03-11"), false)
	require.NoError(t, err)
	assert.Zero(t, result.TotalVisits)

	stats, err := as.GetRealtimeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TodayPageViews)
}

func TestUpdateDailySummaryAdminPrefixIsCaseSensitive(t *testing.T) {
	as, _ := setupTestService(t)

	trackView(t, as, "v1", "s1", "/Administration-notes")
	insertPageView(t, as.Db(), "pv-admin", "/administration", "v1", "s1", testNow)

	result, err := as.UpdateDailySummary(context.Background(), testNow, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalVisits)
	assert.Equal(t, int64(1), result.SessionCount)
	require.Len(t, result.PopularPages, 1)
	assert.Equal(t, "/Administration-notes", result.PopularPages[0].Path)
}

func TestUpdateDailySummaryAvgDuration(t *testing.T) {
	as, _ := setupTestService(t)
	ctx := context.Background()

	a := trackView(t, as, "v1", "s1", "/")
	b := trackView(t, as, "v1", "s1", "/about")
	trackView(t, as, "v1", "s1", "/contact")

	ten, thirty := 10.0, 30.0
	require.NoError(t, as.UpdateDuration(ctx, a.PageViewID, &ten))
	require.NoError(t, as.UpdateDuration(ctx, b.PageViewID, &thirty))

	result, err := as.UpdateDailySummary(ctx, testNow, false)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, result.AvgDuration, 0.0001)
}

func TestRefreshToday(t *testing.T) {
	as, _ := setupTestService(t)
	trackView(t, as, "v1", "s1", "/")

	result, err := as.RefreshToday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", result.Date)
	assert.Equal(t, int64(1), result.TotalVisits)
}
