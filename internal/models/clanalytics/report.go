package clanalytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	DefaultReportDays = 7
	DefaultExportDays = 30

	newVisitorsWindow = 7
	projectsPrefix    = "/projects/"
)

// DateRange est une plage de jours UTC, bornes incluses
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days retourne le nombre de jours de la plage
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Previous retourne la plage de même longueur qui précède immédiatement
func (r DateRange) Previous() DateRange {
	days := r.Days()
	return DateRange{
		Start: r.Start.AddDate(0, 0, -days),
		End:   r.Start.AddDate(0, 0, -1),
	}
}

func (r DateRange) Contains(t time.Time) bool {
	day := StartOfDay(t)
	return !day.Before(r.Start) && !day.After(r.End)
}

func (r DateRange) StartKey() string {
	return DayKey(r.Start)
}

func (r DateRange) EndKey() string {
	return DayKey(r.End)
}

// bounds retourne [début du premier jour, lendemain du dernier jour[
func (r DateRange) bounds() (time.Time, time.Time) {
	_, end := DayBounds(r.End)
	return r.Start, end
}

// ParseRange lit deux dates YYYY-MM-DD (ou RFC 3339). Une date absente,
// invalide ou une plage inversée donne les defaultDays derniers jours.
func ParseRange(start, end string, defaultDays int, now time.Time) DateRange {
	s, errStart := ParseDay(start)
	e, errEnd := ParseDay(end)
	if errStart != nil || errEnd != nil || e.Before(s) {
		today := StartOfDay(now)
		return DateRange{Start: today.AddDate(0, 0, -(defaultDays - 1)), End: today}
	}

	return DateRange{Start: s, End: e}
}

// ParseDay lit une date YYYY-MM-DD ou RFC 3339 et la ramène à minuit UTC
func ParseDay(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("date vide")
	}
	if t, err := time.Parse(DayLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfDay(t), nil
}

// SummaryPoint est un jour de la série, réel ou complété à zéro
type SummaryPoint struct {
	Date           string      `json:"date"`
	TotalVisits    int64       `json:"totalVisits"`
	UniqueVisitors int64       `json:"uniqueVisitors"`
	SessionCount   int64       `json:"sessionCount"`
	PopularPages   []PageCount `json:"popularPages"`
	AvgDuration    float64     `json:"avgDuration"`
}

// NamedCount est une ligne de classement {name, value}
type NamedCount struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type ReportStats struct {
	TotalVisitors  int64   `json:"totalVisitors"`
	NewVisitors    int64   `json:"newVisitors"`
	PeriodVisitors int64   `json:"periodVisitors"`
	VisitorGrowth  float64 `json:"visitorGrowth"`
	TotalPageViews int64   `json:"totalPageViews"`
	PageViewGrowth float64 `json:"pageViewGrowth"`
	TotalSessions  int64   `json:"totalSessions"`
	SessionGrowth  float64 `json:"sessionGrowth"`
}

type Report struct {
	StartDate       string         `json:"startDate"`
	EndDate         string         `json:"endDate"`
	Summaries       []SummaryPoint `json:"summaries"`
	PageViews       []NamedCount   `json:"pageViews"`
	PopularProjects []NamedCount   `json:"popularProjects"`
	Stats           ReportStats    `json:"stats"`
}

// GetReport assemble la série complétée, le top des pages et les tendances de la plage
func (as *AnalyticsService) GetReport(ctx context.Context, r DateRange) (*Report, error) {
	summaries, err := as.summariesWithToday(ctx, r)
	if err != nil {
		return nil, err
	}

	points, err := FillDays(r, summaries)
	if err != nil {
		return nil, err
	}

	stats, err := as.computeStats(ctx, r)
	if err != nil {
		return nil, err
	}

	pageViews, err := as.topPageNames(ctx, r, "")
	if err != nil {
		return nil, err
	}
	projects, err := as.topPageNames(ctx, r, projectsPrefix)
	if err != nil {
		return nil, err
	}

	return &Report{
		StartDate:       r.StartKey(),
		EndDate:         r.EndKey(),
		Summaries:       points,
		PageViews:       pageViews,
		PopularProjects: projects,
		Stats:           *stats,
	}, nil
}

// summariesWithToday lit les résumés de la plage. Si elle contient aujourd'hui,
// le jour est recalculé d'abord; un échec est journalisé et la lecture continue.
func (as *AnalyticsService) summariesWithToday(ctx context.Context, r DateRange) ([]DailySummary, error) {
	var summaries []DailySummary
	err := as.db.WithContext(ctx).
		Where("date BETWEEN ? AND ?", r.StartKey(), r.EndKey()).
		Order("date ASC").
		Find(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("lecture des résumés: %w", err)
	}

	now := as.Now()
	if !r.Contains(now) {
		return summaries, nil
	}

	today, err := as.rollup(ctx, now, triggerRead, false)
	if err != nil {
		as.logger.Warn().Err(err).Msg("recalcul du jour impossible, résumés existants conservés")
		return summaries, nil
	}

	merged := make([]DailySummary, 0, len(summaries)+1)
	for _, s := range summaries {
		if s.Date != today.Date {
			merged = append(merged, s)
		}
	}
	return append(merged, *today), nil
}

// FillDays produit exactement un point par jour de la plage, à zéro quand
// aucun résumé n'existe
func FillDays(r DateRange, summaries []DailySummary) ([]SummaryPoint, error) {
	byDate := make(map[string]DailySummary, len(summaries))
	for _, s := range summaries {
		byDate[s.Date] = s
	}

	points := make([]SummaryPoint, 0, r.Days())
	for day := r.Start; !day.After(r.End); day = day.AddDate(0, 0, 1) {
		key := DayKey(day)
		s, ok := byDate[key]
		if !ok {
			points = append(points, SummaryPoint{Date: key, PopularPages: []PageCount{}})
			continue
		}

		pages, err := decodePopularPages(s.PopularPages)
		if err != nil {
			return nil, err
		}
		points = append(points, SummaryPoint{
			Date:           key,
			TotalVisits:    s.TotalVisits,
			UniqueVisitors: s.UniqueVisitors,
			SessionCount:   s.SessionCount,
			PopularPages:   pages,
			AvgDuration:    s.AvgDuration,
		})
	}
	return points, nil
}

// Growth retourne la variation en pourcentage, 0 si la période précédente est vide
func Growth(current, previous int64) float64 {
	if previous == 0 {
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}

func (as *AnalyticsService) computeStats(ctx context.Context, r DateRange) (*ReportStats, error) {
	db := as.db.WithContext(ctx)
	stats := &ReportStats{}
	prev := r.Previous()
	start, end := r.bounds()
	prevStart, prevEnd := prev.bounds()

	if err := db.Model(&Visitor{}).Count(&stats.TotalVisitors).Error; err != nil {
		return nil, fmt.Errorf("comptage des visiteurs: %w", err)
	}

	newSince := end.Add(-newVisitorsWindow * 24 * time.Hour)
	err := db.Model(&Visitor{}).
		Scopes(within("first_seen", newSince, end)).
		Count(&stats.NewVisitors).Error
	if err != nil {
		return nil, fmt.Errorf("nouveaux visiteurs: %w", err)
	}

	type periodCount struct {
		model  any
		column string
		scope  func(*gorm.DB) *gorm.DB
		dest   *int64
		growth *float64
	}
	noScope := func(db *gorm.DB) *gorm.DB { return db }
	counts := []periodCount{
		{&Visitor{}, "first_seen", noScope, &stats.PeriodVisitors, &stats.VisitorGrowth},
		{&PageView{}, "visited_at", nonAdmin, &stats.TotalPageViews, &stats.PageViewGrowth},
		{&Session{}, "start_time", noScope, &stats.TotalSessions, &stats.SessionGrowth},
	}

	for _, pc := range counts {
		var previous int64
		err := db.Model(pc.model).Scopes(pc.scope).
			Scopes(within(pc.column, start, end)).
			Count(pc.dest).Error
		if err == nil {
			err = db.Model(pc.model).Scopes(pc.scope).
				Scopes(within(pc.column, prevStart, prevEnd)).
				Count(&previous).Error
		}
		if err != nil {
			return nil, fmt.Errorf("comptage sur %s: %w", pc.column, err)
		}
		*pc.growth = Growth(*pc.dest, previous)
	}

	return stats, nil
}

// topPageNames classe les noms de pages les plus vus de la plage, filtrés par préfixe de chemin
func (as *AnalyticsService) topPageNames(ctx context.Context, r DateRange, pathPrefix string) ([]NamedCount, error) {
	start, end := r.bounds()
	query := pageViewsBetween(as.db.WithContext(ctx), start, end).
		Select("page_name AS name, COUNT(*) AS value")
	if pathPrefix != "" {
		query = withPathPrefix(query, "path", pathPrefix)
	}

	top := []NamedCount{}
	err := query.
		Group("page_name").
		Order("value DESC, name ASC").
		Limit(topPagesLimit).
		Scan(&top).Error
	if err != nil {
		return nil, fmt.Errorf("top des pages: %w", err)
	}
	return top, nil
}
