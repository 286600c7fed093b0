package clanalytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// durée de vie des compteurs temps réel
const realtimeTTL = 31 * 24 * time.Hour

type RealtimeStats struct {
	Date                string `json:"date"`
	TodayPageViews      int64  `json:"todayPageViews"`
	TodayUniqueVisitors int64  `json:"todayUniqueVisitors"`
	Source              string `json:"source"`
}

func dailyKey(day string) string {
	return fmt.Sprintf("analytics:daily:%s", day)
}

func visitorsKey(day string) string {
	return fmt.Sprintf("analytics:visitors:%s", day)
}

// recordRealtime met à jour les compteurs redis, sans bloquer l'ingestion en cas d'échec
func (as *AnalyticsService) recordRealtime(ctx context.Context, result *PageViewResult) {
	if as.redis == nil || result == nil {
		return
	}
	day := DayKey(result.Timestamp)

	pipe := as.redis.Pipeline()
	pipe.HIncrBy(ctx, dailyKey(day), "page_views", 1)
	pipe.Expire(ctx, dailyKey(day), realtimeTTL)
	pipe.SAdd(ctx, visitorsKey(day), result.VisitorID)
	pipe.Expire(ctx, visitorsKey(day), realtimeTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		as.logger.Warn().Err(err).Msg("mise à jour des compteurs redis impossible")
	}
}

// GetRealtimeStats retourne les compteurs du jour depuis redis,
// ou depuis la base quand redis n'est pas configuré ou indisponible
func (as *AnalyticsService) GetRealtimeStats(ctx context.Context) (*RealtimeStats, error) {
	now := as.Now()
	day := DayKey(now)

	if as.redis != nil {
		stats, err := as.realtimeFromRedis(ctx, day)
		if err == nil {
			return stats, nil
		}
		as.logger.Warn().Err(err).Msg("compteurs redis illisibles, lecture en base")
	}

	stats := &RealtimeStats{Date: day, Source: "database"}
	dayStart, dayEnd := DayBounds(now)
	db := as.db.WithContext(ctx)
	if err := pageViewsBetween(db, dayStart, dayEnd).Count(&stats.TodayPageViews).Error; err != nil {
		return nil, err
	}
	if err := pageViewsBetween(db, dayStart, dayEnd).Distinct("visitor_id").Count(&stats.TodayUniqueVisitors).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

func (as *AnalyticsService) realtimeFromRedis(ctx context.Context, day string) (*RealtimeStats, error) {
	pageViews, err := as.redis.HGet(ctx, dailyKey(day), "page_views").Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	visitors, err := as.redis.SCard(ctx, visitorsKey(day)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return &RealtimeStats{
		Date:                day,
		TodayPageViews:      pageViews,
		TodayUniqueVisitors: visitors,
		Source:              "redis",
	}, nil
}
