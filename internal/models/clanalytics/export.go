package clanalytics

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

type ExportType string

const (
	ExportSummary   ExportType = "summary"
	ExportPageViews ExportType = "pageviews"
	ExportVisitors  ExportType = "visitors"

	exportTimeLayout = time.RFC3339
)

func ParseExportType(value string) (ExportType, error) {
	switch t := ExportType(value); t {
	case ExportSummary, ExportPageViews, ExportVisitors:
		return t, nil
	}
	return "", ErrInvalidExportType
}

// Filename retourne le nom du fichier joint pour ce type et cette plage
func (t ExportType) Filename(r DateRange) string {
	prefix := string(t)
	if t == ExportSummary {
		prefix = "analytics_summary"
	}
	return fmt.Sprintf("%s_%s_to_%s.csv", prefix, r.StartKey(), r.EndKey())
}

// Export écrit le csv demandé dans w. Les champs contenant virgule, guillemet
// ou retour à la ligne sont entourés de guillemets, les guillemets doublés.
func (as *AnalyticsService) Export(ctx context.Context, t ExportType, r DateRange, w io.Writer) error {
	cw := csv.NewWriter(w)

	var err error
	switch t {
	case ExportSummary:
		err = as.exportSummaries(ctx, r, cw)
	case ExportPageViews:
		err = as.exportPageViews(ctx, r, cw)
	case ExportVisitors:
		err = as.exportVisitors(ctx, r, cw)
	default:
		return ErrInvalidExportType
	}
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func (as *AnalyticsService) exportSummaries(ctx context.Context, r DateRange, cw *csv.Writer) error {
	var summaries []DailySummary
	err := as.db.WithContext(ctx).
		Where("date BETWEEN ? AND ?", r.StartKey(), r.EndKey()).
		Find(&summaries).Error
	if err != nil {
		return fmt.Errorf("lecture des résumés: %w", err)
	}
	points, err := FillDays(r, summaries)
	if err != nil {
		return err
	}

	if err := cw.Write([]string{"Date", "Total Visits", "Unique Visitors", "Session Count"}); err != nil {
		return err
	}
	for _, p := range points {
		err := cw.Write([]string{
			p.Date,
			strconv.FormatInt(p.TotalVisits, 10),
			strconv.FormatInt(p.UniqueVisitors, 10),
			strconv.FormatInt(p.SessionCount, 10),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (as *AnalyticsService) exportPageViews(ctx context.Context, r DateRange, cw *csv.Writer) error {
	if err := cw.Write([]string{"Date", "Path", "Page Name", "Visitor ID", "Session ID"}); err != nil {
		return err
	}

	start, end := r.bounds()
	db := as.db.WithContext(ctx)
	rows, err := db.Model(&PageView{}).
		Scopes(within("visited_at", start, end), nonAdmin).
		Order("visited_at ASC, id ASC").
		Rows()
	if err != nil {
		return fmt.Errorf("lecture des pages vues: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pv PageView
		if err := db.ScanRows(rows, &pv); err != nil {
			return err
		}
		err := cw.Write([]string{
			pv.VisitedAt.UTC().Format(exportTimeLayout),
			pv.Path,
			pv.PageName,
			pv.VisitorID,
			pv.SessionID,
		})
		if err != nil {
			return err
		}
	}
	return rows.Err()
}

func (as *AnalyticsService) exportVisitors(ctx context.Context, r DateRange, cw *csv.Writer) error {
	if err := cw.Write([]string{"Visitor ID", "First Visit", "Last Visit", "Visit Count", "Referrer"}); err != nil {
		return err
	}

	start, end := r.bounds()
	db := as.db.WithContext(ctx)
	rows, err := db.Model(&Visitor{}).
		Scopes(within("first_seen", start, end)).
		Order("first_seen ASC, id ASC").
		Rows()
	if err != nil {
		return fmt.Errorf("lecture des visiteurs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v Visitor
		if err := db.ScanRows(rows, &v); err != nil {
			return err
		}
		err := cw.Write([]string{
			v.ID,
			v.FirstSeen.UTC().Format(exportTimeLayout),
			v.LastSeen.UTC().Format(exportTimeLayout),
			strconv.Itoa(v.VisitCount),
			v.Referrer,
		})
		if err != nil {
			return err
		}
	}
	return rows.Err()
}
