package clanalytics

import (
	"context"
	"encoding/json"
	"fmt"
	"littlefolio/internal/clmetrics"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	triggerAPI      = "api"
	triggerRead     = "read"
	triggerDuration = "duration"
	triggerCron     = "cron"
	triggerLive     = "live"
)

// RollupResult est le résumé recalculé d'un jour.
// TotalPageViews reprend TotalVisits pour les appelants qui l'attendent sous ce nom.
type RollupResult struct {
	ID             uint        `json:"id"`
	Date           string      `json:"date"`
	TotalVisits    int64       `json:"totalVisits"`
	TotalPageViews int64       `json:"totalPageViews"`
	UniqueVisitors int64       `json:"uniqueVisitors"`
	SessionCount   int64       `json:"sessionCount"`
	PopularPages   []PageCount `json:"popularPages"`
	AvgDuration    float64     `json:"avgDuration"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// UpdateDailySummary recalcule et enregistre le résumé du jour UTC de day.
// Un day nul vaut maintenant. adminCaller est seulement journalisé:
// l'exclusion de l'administration se fait sur le chemin.
func (as *AnalyticsService) UpdateDailySummary(ctx context.Context, day time.Time, adminCaller bool) (*RollupResult, error) {
	summary, err := as.rollup(ctx, day, triggerAPI, adminCaller)
	if err != nil {
		return nil, err
	}
	return toRollupResult(summary)
}

// RefreshToday recalcule le jour courant pour le flux temps réel
func (as *AnalyticsService) RefreshToday(ctx context.Context) (*RollupResult, error) {
	summary, err := as.rollup(ctx, as.Now(), triggerLive, false)
	if err != nil {
		return nil, err
	}
	return toRollupResult(summary)
}

func (as *AnalyticsService) rollup(ctx context.Context, day time.Time, trigger string, adminCaller bool) (*DailySummary, error) {
	if day.IsZero() {
		day = as.Now()
	}
	start := time.Now()

	summary, err := as.computeDailySummary(ctx, day)
	if err == nil {
		err = as.saveDailySummary(ctx, summary)
	}

	clmetrics.RollupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		clmetrics.RollupsTotal.WithLabelValues(trigger, "error").Inc()
		as.logger.Error().Err(err).Str("date", DayKey(day)).Str("trigger", trigger).Msg("échec du recalcul journalier")
		return nil, fmt.Errorf("résumé du %s: %w", DayKey(day), err)
	}
	clmetrics.RollupsTotal.WithLabelValues(trigger, "ok").Inc()

	as.logger.Debug().
		Str("date", summary.Date).
		Str("trigger", trigger).
		Bool("admin_caller", adminCaller).
		Int64("total_visits", summary.TotalVisits).
		Int64("unique_visitors", summary.UniqueVisitors).
		Int64("sessions", summary.SessionCount).
		Msg("résumé journalier mis à jour")

	return summary, nil
}

// computeDailySummary lit les données brutes du jour, hors administration
func (as *AnalyticsService) computeDailySummary(ctx context.Context, day time.Time) (*DailySummary, error) {
	dayStart, dayEnd := DayBounds(day)
	db := as.db.WithContext(ctx)

	inDay := func() *gorm.DB {
		return pageViewsBetween(db, dayStart, dayEnd)
	}

	summary := &DailySummary{Date: DayKey(dayStart)}

	if err := inDay().Count(&summary.TotalVisits).Error; err != nil {
		return nil, fmt.Errorf("comptage des pages vues: %w", err)
	}

	if err := inDay().Distinct("visitor_id").Count(&summary.UniqueVisitors).Error; err != nil {
		return nil, fmt.Errorf("comptage des visiteurs: %w", err)
	}

	// une session qui n'a vu que l'administration ne compte pas
	err := db.Model(&Session{}).
		Scopes(within("start_time", dayStart, dayEnd)).
		Where("EXISTS (SELECT 1 FROM page_views pv WHERE pv.session_id = sessions.id AND "+
			prefixExpr(db, "pv.path", len(AdminPathPrefix))+" <> ?)", AdminPathPrefix).
		Count(&summary.SessionCount).Error
	if err != nil {
		return nil, fmt.Errorf("comptage des sessions: %w", err)
	}

	var popular []PageCount
	err = inDay().
		Select("path, COUNT(*) AS count").
		Group("path").
		Order("count DESC, path ASC").
		Limit(topPagesLimit).
		Scan(&popular).Error
	if err != nil {
		return nil, fmt.Errorf("top des pages: %w", err)
	}
	if popular == nil {
		popular = []PageCount{}
	}
	data, err := json.Marshal(popular)
	if err != nil {
		return nil, err
	}
	summary.PopularPages = datatypes.JSON(data)

	var avg struct {
		Avg *float64
	}
	err = inDay().
		Select("AVG(duration) AS avg").
		Where("duration IS NOT NULL").
		Scan(&avg).Error
	if err != nil {
		return nil, fmt.Errorf("durée moyenne: %w", err)
	}
	if avg.Avg != nil {
		summary.AvgDuration = *avg.Avg
	}

	return summary, nil
}

// saveDailySummary écrase le résumé existant du même jour
func (as *AnalyticsService) saveDailySummary(ctx context.Context, summary *DailySummary) error {
	now := as.Now()
	summary.CreatedAt = now
	summary.UpdatedAt = now

	db := as.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_visits", "unique_visitors", "session_count", "popular_pages", "avg_duration", "updated_at",
		}),
	}).Create(summary).Error
	if err != nil {
		return err
	}

	// relire pour récupérer id et created_at d'origine
	var saved DailySummary
	if err := db.Where("date = ?", summary.Date).Take(&saved).Error; err != nil {
		return err
	}
	*summary = saved
	return nil
}

func toRollupResult(summary *DailySummary) (*RollupResult, error) {
	pages, err := decodePopularPages(summary.PopularPages)
	if err != nil {
		return nil, err
	}
	return &RollupResult{
		ID:             summary.ID,
		Date:           summary.Date,
		TotalVisits:    summary.TotalVisits,
		TotalPageViews: summary.TotalVisits,
		UniqueVisitors: summary.UniqueVisitors,
		SessionCount:   summary.SessionCount,
		PopularPages:   pages,
		AvgDuration:    summary.AvgDuration,
		CreatedAt:      summary.CreatedAt,
		UpdatedAt:      summary.UpdatedAt,
	}, nil
}

func decodePopularPages(data datatypes.JSON) ([]PageCount, error) {
	pages := []PageCount{}
	if len(data) == 0 {
		return pages, nil
	}
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("popular_pages illisible: %w", err)
	}
	return pages, nil
}
