package clanalytics

import (
	"context"
	"errors"
	"fmt"
	"littlefolio/internal/clmetrics"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	stripmd "github.com/writeas/go-strip-markdown"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// nombre de tentatives quand deux ingestions créent la même ligne en parallèle
const maxIngestAttempts = 3

type PageViewInput struct {
	// PageViewID, s'il est fourni, devient l'id de la page vue
	PageViewID string
	VisitorID  string
	SessionID  string
	PageName   string
	Path       string
	Referrer   string
	UserAgent  string
	IP         string
	IsAdmin    bool
}

type SkipReason string

const (
	SkipAdminFlag SkipReason = "admin"
	SkipAdminPath SkipReason = "admin_path"
	SkipDashboard SkipReason = "dashboard"
)

type PageViewResult struct {
	Skipped    SkipReason `json:"-"`
	VisitorID  string     `json:"visitorId"`
	SessionID  string     `json:"sessionId"`
	PageViewID string     `json:"pageViewId"`
	Timestamp  time.Time  `json:"timestamp"`
	// la session fournie appartenait à un autre visiteur
	SessionRenewed bool `json:"-"`
}

type EventInput struct {
	VisitorID  string
	EventName  string
	EventType  string
	Properties map[string]any
	PageViewID string
}

func (in *PageViewInput) normalize() {
	in.PageViewID = strings.TrimSpace(in.PageViewID)
	in.VisitorID = strings.TrimSpace(in.VisitorID)
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.Path = truncate(strings.TrimSpace(in.Path), 512)
	in.Referrer = truncate(strings.TrimSpace(in.Referrer), 1024)
	in.UserAgent = truncate(in.UserAgent, 512)

	name := strings.TrimSpace(in.PageName)
	// les titres de projets peuvent contenir du markdown
	if plain := strings.TrimSpace(stripmd.Strip(name)); plain != "" {
		name = plain
	}
	in.PageName = truncate(name, 255)
}

func (in PageViewInput) validate() error {
	switch {
	case in.VisitorID == "":
		return missing("visitorId")
	case in.PageName == "":
		return missing("pageName")
	case in.Path == "":
		return missing("path")
	}
	return nil
}

func (in PageViewInput) skipReason() SkipReason {
	switch {
	case in.IsAdmin:
		return SkipAdminFlag
	case IsAdminPath(in.Path):
		return SkipAdminPath
	case IsDashboardPath(in.Path):
		return SkipDashboard
	}
	return ""
}

// TrackPageView enregistre visiteur, session et page vue dans une seule transaction.
// Un SessionID vide crée une nouvelle session.
func (as *AnalyticsService) TrackPageView(ctx context.Context, in PageViewInput) (*PageViewResult, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	if reason := in.skipReason(); reason != "" {
		clmetrics.PageViewsSkipped.WithLabelValues(string(reason)).Inc()
		as.logger.Debug().Str("path", in.Path).Str("reason", string(reason)).Msg("page vue ignorée")
		return &PageViewResult{Skipped: reason}, nil
	}

	country := ""
	if as.geo != nil && in.IP != "" {
		country = as.geo.Country(in.IP)
	}

	var result *PageViewResult
	err := as.withRetry(func() error {
		var err error
		result, err = as.recordPageView(ctx, in, country)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("enregistrement page vue: %w", err)
	}

	clmetrics.PageViewsTracked.Inc()
	if result.SessionRenewed {
		as.logger.Warn().
			Str("visitor_id", in.VisitorID).
			Str("session_id", in.SessionID).
			Msg("session appartenant à un autre visiteur, nouvelle session créée")
	}
	as.recordRealtime(ctx, result)

	return result, nil
}

func (as *AnalyticsService) recordPageView(ctx context.Context, in PageViewInput, country string) (*PageViewResult, error) {
	now := as.Now()
	result := &PageViewResult{VisitorID: in.VisitorID, Timestamp: now}

	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := upsertVisitor(tx, visitorUpsert{
			id:         in.VisitorID,
			referrer:   in.Referrer,
			userAgent:  in.UserAgent,
			country:    country,
			countVisit: true,
		}, now)
		if err != nil {
			return err
		}

		sessionID, renewed, err := resolveSession(tx, in.VisitorID, in.SessionID, now)
		if err != nil {
			return err
		}

		pageViewID := in.PageViewID
		if pageViewID == "" {
			pageViewID = uuid.NewString()
		}
		pageView := PageView{
			ID:        pageViewID,
			Path:      in.Path,
			PageName:  in.PageName,
			VisitorID: in.VisitorID,
			SessionID: sessionID,
			VisitedAt: now,
		}
		if err := tx.Create(&pageView).Error; err != nil {
			return err
		}

		result.SessionID = sessionID
		result.SessionRenewed = renewed
		result.PageViewID = pageView.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type visitorUpsert struct {
	id         string
	referrer   string
	userAgent  string
	country    string
	countVisit bool
}

// upsertVisitor crée le visiteur ou met à jour last_seen en une seule requête.
// Le referrer existant est conservé si aucun nouveau n'est fourni.
func upsertVisitor(tx *gorm.DB, v visitorUpsert, now time.Time) error {
	visitor := Visitor{
		ID:        v.id,
		FirstSeen: now,
		LastSeen:  now,
		Referrer:  v.referrer,
		UserAgent: v.userAgent,
		Country:   v.country,
	}
	updates := map[string]any{"last_seen": now}
	if v.countVisit {
		visitor.VisitCount = 1
		updates["visit_count"] = gorm.Expr("visitors.visit_count + 1")
	}
	if v.referrer != "" {
		updates["referrer"] = v.referrer
	}
	if v.userAgent != "" {
		updates["user_agent"] = v.userAgent
	}
	if v.country != "" {
		updates["country"] = v.country
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&visitor).Error
}

// resolveSession retourne la session à utiliser pour la page vue.
// renewed vaut true quand l'id fourni appartenait à un autre visiteur.
func resolveSession(tx *gorm.DB, visitorID, sessionID string, now time.Time) (string, bool, error) {
	if sessionID == "" {
		id := uuid.NewString()
		return id, false, createSession(tx, id, visitorID, now)
	}

	var session Session
	err := forUpdate(tx).Where("id = ?", sessionID).Take(&session).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return sessionID, false, createSession(tx, sessionID, visitorID, now)
	case err != nil:
		return "", false, err
	case session.VisitorID != visitorID:
		id := uuid.NewString()
		return id, true, createSession(tx, id, visitorID, now)
	}

	err = tx.Model(&Session{}).
		Where("id = ? AND visitor_id = ?", sessionID, visitorID).
		Updates(map[string]any{
			"end_time":   now,
			"page_count": gorm.Expr("page_count + 1"),
		}).Error
	return sessionID, false, err
}

func createSession(tx *gorm.DB, id, visitorID string, now time.Time) error {
	return tx.Create(&Session{
		ID:        id,
		VisitorID: visitorID,
		StartTime: now,
		EndTime:   now,
		PageCount: 1,
	}).Error
}

// forUpdate verrouille les lignes lues quand le dialecte le permet
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (as *AnalyticsService) withRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxIngestAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		clmetrics.IngestionRetries.Inc()
		as.logger.Warn().Err(err).Int("attempt", attempt).Msg("conflit d'insertion, transaction rejouée")
	}
	return err
}

// TrackEvent enregistre un événement et rafraîchit last_seen du visiteur
func (as *AnalyticsService) TrackEvent(ctx context.Context, in EventInput) (*AnalyticsEvent, error) {
	in.VisitorID = strings.TrimSpace(in.VisitorID)
	in.EventName = truncate(strings.TrimSpace(in.EventName), 128)
	in.PageViewID = strings.TrimSpace(in.PageViewID)

	if in.VisitorID == "" {
		return nil, missing("visitorId")
	}
	if in.EventName == "" {
		return nil, missing("eventName")
	}

	payload, err := ParseEventPayload(in.EventType, in.Properties)
	if err != nil {
		return nil, err
	}
	properties, err := payload.JSON()
	if err != nil {
		return nil, err
	}

	event := AnalyticsEvent{
		ID:         uuid.NewString(),
		EventName:  in.EventName,
		EventType:  string(payload.Type),
		Properties: properties,
		VisitorID:  in.VisitorID,
	}
	if in.PageViewID != "" {
		pageViewID := in.PageViewID
		event.PageViewID = &pageViewID
	}

	err = as.withRetry(func() error {
		now := as.Now()
		event.Timestamp = now
		return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := upsertVisitor(tx, visitorUpsert{id: in.VisitorID}, now); err != nil {
				return err
			}
			return tx.Create(&event).Error
		})
	})
	if err != nil {
		return nil, fmt.Errorf("enregistrement événement: %w", err)
	}

	clmetrics.EventsTracked.WithLabelValues(eventTypeLabel(payload)).Inc()
	return &event, nil
}

// TrackInteraction enregistre une interaction sous forme d'événement typé
func (as *AnalyticsService) TrackInteraction(ctx context.Context, visitorID, kind, element, path string, metadata map[string]any) (*AnalyticsEvent, error) {
	if strings.TrimSpace(kind) == "" {
		return nil, missing("type")
	}
	properties := map[string]any{
		"element": element,
		"path":    path,
	}
	if len(metadata) > 0 {
		properties["metadata"] = metadata
	}
	return as.TrackEvent(ctx, EventInput{
		VisitorID:  visitorID,
		EventName:  kind,
		EventType:  string(EventInteraction),
		Properties: properties,
	})
}

// UpdateDuration renseigne la durée d'une page vue puis recalcule le jour courant
func (as *AnalyticsService) UpdateDuration(ctx context.Context, pageViewID string, duration *float64) error {
	pageViewID = strings.TrimSpace(pageViewID)
	if pageViewID == "" {
		return missing("pageViewId")
	}
	if duration == nil {
		return missing("duration")
	}
	if *duration < 0 || math.IsNaN(*duration) || math.IsInf(*duration, 0) {
		return &ValidationError{Field: "duration", Reason: "doit être un nombre positif"}
	}

	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pageView PageView
		err := tx.Select("id").Where("id = ?", pageViewID).Take(&pageView).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPageViewNotFound
		}
		if err != nil {
			return err
		}
		return tx.Model(&PageView{}).Where("id = ?", pageViewID).Update("duration", *duration).Error
	})
	if err != nil {
		return err
	}

	if _, err := as.rollup(ctx, as.Now(), triggerDuration, false); err != nil {
		return fmt.Errorf("recalcul du jour après durée: %w", err)
	}
	return nil
}

func eventTypeLabel(payload EventPayload) string {
	if payload.Known() || payload.Type == EventCustom {
		return string(payload.Type)
	}
	// évite une cardinalité libre dans prometheus
	return "other"
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
