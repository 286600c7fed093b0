package clanalytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRealtimeStatsFromDatabase(t *testing.T) {
	as, clock := setupTestService(t)

	clock.Set(testNow.AddDate(0, 0, -1))
	trackView(t, as, "v-yesterday", "s0", "/")
	clock.Set(testNow)

	trackView(t, as, "v1", "s1", "/")
	trackView(t, as, "v1", "s1", "/about")
	trackView(t, as, "v2", "s2", "/")
	insertPageView(t, as.Db(), "admin-1", "/admin", "v3", "s3", testNow)

	stats, err := as.GetRealtimeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &RealtimeStats{
		Date:                "2025-03-10",
		TodayPageViews:      3,
		TodayUniqueVisitors: 2,
		Source:              "database",
	}, stats)
}

func TestRealtimeKeys(t *testing.T) {
	assert.Equal(t, "analytics:daily:2025-03-10", dailyKey("2025-03-10"))
	assert.Equal(t, "analytics:visitors:2025-03-10", visitorsKey("2025-03-10"))
}

func TestRecordRealtimeWithoutRedis(t *testing.T) {
	as, _ := setupTestService(t)
	assert.NotPanics(t, func() {
		as.recordRealtime(context.Background(), &PageViewResult{VisitorID: "v1", Timestamp: testNow})
	})
}
