package clanalytics

import (
	"time"

	"gorm.io/datatypes"
)

// Visitor représente un navigateur unique, identifié par l'uuid du client
type Visitor struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	FirstSeen  time.Time `gorm:"index;not null" json:"firstSeen"`
	LastSeen   time.Time `gorm:"not null" json:"lastSeen"`
	VisitCount int       `gorm:"not null;default:0" json:"visitCount"`
	Referrer   string    `gorm:"size:1024" json:"referrer,omitempty"`
	UserAgent  string    `gorm:"size:512" json:"userAgent,omitempty"`
	Country    string    `gorm:"size:2" json:"country,omitempty"`
}

// Session représente une navigation continue d'un visiteur
type Session struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	VisitorID string    `gorm:"index;size:64;not null" json:"visitorId"`
	StartTime time.Time `gorm:"index;not null" json:"startTime"`
	EndTime   time.Time `gorm:"not null" json:"endTime"`
	PageCount int       `gorm:"not null;default:0" json:"pageCount"`
}

// PageView représente un chargement de page
type PageView struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Path      string    `gorm:"index;size:512;not null" json:"path"`
	PageName  string    `gorm:"size:255;not null" json:"pageName"`
	VisitorID string    `gorm:"index;size:64;not null" json:"visitorId"`
	SessionID string    `gorm:"index;size:64;not null" json:"sessionId"`
	VisitedAt time.Time `gorm:"index;not null" json:"visitedAt"`
	Duration  *float64  `json:"duration,omitempty"`
}

// AnalyticsEvent est une interaction nommée, indépendante des pages vues
type AnalyticsEvent struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	EventName  string         `gorm:"index;size:128;not null" json:"eventName"`
	EventType  string         `gorm:"index;size:32;not null;default:'custom'" json:"eventType"`
	Properties datatypes.JSON `json:"properties,omitempty"`
	VisitorID  string         `gorm:"index;size:64;not null" json:"visitorId"`
	PageViewID *string        `gorm:"index;size:36" json:"pageViewId,omitempty"`
	Timestamp  time.Time      `gorm:"index;not null" json:"timestamp"`
}

// DailySummary est l'agrégat d'un jour UTC, recalculable à tout moment
type DailySummary struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Date           string         `gorm:"uniqueIndex;size:10;not null" json:"date"`
	TotalVisits    int64          `json:"totalVisits"`
	UniqueVisitors int64          `json:"uniqueVisitors"`
	SessionCount   int64          `json:"sessionCount"`
	PopularPages   datatypes.JSON `json:"popularPages"`
	AvgDuration    float64        `json:"avgDuration"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// PageCount est une entrée du top des chemins d'un jour
type PageCount struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

func (Visitor) TableName() string {
	return "visitors"
}

func (Session) TableName() string {
	return "sessions"
}

func (PageView) TableName() string {
	return "page_views"
}

func (AnalyticsEvent) TableName() string {
	return "analytics_events"
}

func (DailySummary) TableName() string {
	return "daily_summaries"
}
