package clanalytics

import (
	"fmt"
	"littlefolio/internal/models/cllog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	DayLayout = "2006-01-02"

	AdminPathPrefix = "/admin"
	DashboardPath   = "/analytics"

	topPagesLimit = 10
)

// CountryResolver retrouve le code pays ISO d'une adresse IP, vide si inconnu
type CountryResolver interface {
	Country(ip string) string
}

type AnalyticsService struct {
	db            *gorm.DB
	redis         *redis.Client
	geo           CountryResolver
	cron          *cron.Cron
	now           func() time.Time
	retentionDays int
	logger        zerolog.Logger
}

type Option func(*AnalyticsService)

// WithRedis active les compteurs temps réel
func WithRedis(client *redis.Client) Option {
	return func(as *AnalyticsService) {
		as.redis = client
	}
}

func WithGeoIP(geo CountryResolver) Option {
	return func(as *AnalyticsService) {
		as.geo = geo
	}
}

// WithClock remplace l'horloge, utilisé par les tests
func WithClock(now func() time.Time) Option {
	return func(as *AnalyticsService) {
		as.now = now
	}
}

// WithRetention active le nettoyage des données brutes plus vieilles que days jours
func WithRetention(days int) Option {
	return func(as *AnalyticsService) {
		as.retentionDays = days
	}
}

func NewAnalyticsService(db *gorm.DB, opts ...Option) *AnalyticsService {
	as := &AnalyticsService{
		db:     db,
		now:    time.Now,
		logger: cllog.Component("analytics"),
	}
	for _, opt := range opts {
		opt(as)
	}
	return as
}

// Now retourne l'heure courante en UTC
func (as *AnalyticsService) Now() time.Time {
	return as.now().UTC()
}

func (as *AnalyticsService) Db() *gorm.DB {
	return as.db
}

// StartOfDay ramène t à minuit UTC
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayBounds retourne [minuit, minuit du lendemain[ du jour UTC de t
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := StartOfDay(t)
	return start, start.AddDate(0, 0, 1)
}

func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// IsAdminPath couvre la zone d'administration, exclue de toutes les mesures
func IsAdminPath(path string) bool {
	return strings.HasPrefix(path, AdminPathPrefix)
}

// IsDashboardPath couvre le tableau de bord analytics lui-même
func IsDashboardPath(path string) bool {
	return path == DashboardPath || strings.HasPrefix(path, DashboardPath+"/")
}

// prefixExpr extrait les n premiers caractères de column, comparés en
// binaire comme strings.HasPrefix
func prefixExpr(db *gorm.DB, column string, n int) string {
	expr := fmt.Sprintf("SUBSTR(%s, 1, %d)", column, n)
	if db.Dialector != nil && db.Dialector.Name() == "mysql" {
		return "BINARY " + expr
	}
	return expr
}

// withPathPrefix garde les lignes dont column commence par prefix
func withPathPrefix(db *gorm.DB, column, prefix string) *gorm.DB {
	return db.Where(prefixExpr(db, column, len(prefix))+" = ?", prefix)
}

// nonAdmin filtre les pages vues hors administration
func nonAdmin(db *gorm.DB) *gorm.DB {
	return db.Where(prefixExpr(db, "path", len(AdminPathPrefix))+" <> ?", AdminPathPrefix)
}

// within borne column à l'intervalle semi-ouvert [start, end[
func within(column string, start, end time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" >= ? AND "+column+" < ?", start, end)
	}
}

// pageViewsBetween sélectionne les pages vues hors administration de [start, end[
func pageViewsBetween(db *gorm.DB, start, end time.Time) *gorm.DB {
	return db.Model(&PageView{}).
		Scopes(within("visited_at", start, end), nonAdmin)
}
