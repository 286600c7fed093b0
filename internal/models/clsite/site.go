package clsite

import (
	"context"
	"fmt"
	"littlefolio/internal/clredis"
	"littlefolio/internal/models/clanalytics"
	"littlefolio/internal/models/clcaptchas"
	"littlefolio/internal/models/clconfig"
	"littlefolio/internal/models/cldatabase"
	"littlefolio/internal/models/clgeoip"
	"strings"
	"unicode"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Littlefolio struct {
	Pages         []clconfig.PageConfig
	Db            *gorm.DB
	Redis         *redis.Client
	GeoIP         *clgeoip.Lookup
	Analytics     *clanalytics.AnalyticsService
	Configuration *clconfig.Config
	Captcha       *clcaptchas.Captchas
	Version       string
	BuildID       string
}

// Init ouvre la base, redis et geoip puis construit les services
func Init(ctx context.Context, config *clconfig.Config, version string, buildid string) (*Littlefolio, error) {
	lf := &Littlefolio{
		Configuration: config,
		Version:       version,
		BuildID:       buildid,
	}

	if err := lf.initDatabase(); err != nil {
		return nil, err
	}
	lf.initRedis(ctx)
	if err := lf.initGeoIP(); err != nil {
		return nil, err
	}
	if err := lf.initPages(); err != nil {
		return nil, err
	}
	lf.initCaptcha()
	lf.initAnalytics()

	return lf, nil
}

func (lf *Littlefolio) initDatabase() error {
	db, err := cldatabase.Open(lf.Configuration.Database, lf.Configuration.Production, lf.Configuration.Logger.Level)
	if err != nil {
		return err
	}
	lf.Db = db
	return nil
}

// redis est optionnel: sans lui les compteurs temps réel sont lus en base
func (lf *Littlefolio) initRedis(ctx context.Context) {
	cfg := lf.Configuration.Analytics.Redis
	client, err := clredis.NewClient(ctx, cfg.Addr, cfg.Db)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis injoignable, fonctionnement sans redis")
		return
	}
	lf.Redis = client
}

func (lf *Littlefolio) initGeoIP() error {
	lookup, err := clgeoip.Open(lf.Configuration.Analytics.GeoIP)
	if err != nil {
		return err
	}
	lf.GeoIP = lookup
	return nil
}

func (lf *Littlefolio) initCaptcha() {
	lf.Captcha = clcaptchas.New(lf.Redis, lf.Configuration.Production)
}

func (lf *Littlefolio) initAnalytics() {
	opts := []clanalytics.Option{
		clanalytics.WithRetention(lf.Configuration.Analytics.RetentionDays),
	}
	if lf.Redis != nil {
		opts = append(opts, clanalytics.WithRedis(lf.Redis))
	}
	if lf.GeoIP.Enabled() {
		opts = append(opts, clanalytics.WithGeoIP(lf.GeoIP))
	}
	lf.Analytics = clanalytics.NewAnalyticsService(lf.Db, opts...)
}

// initPages complète les noms de pages et refuse les chemins en double
func (lf *Littlefolio) initPages() error {
	seen := make(map[string]bool, len(lf.Configuration.Site.Pages))
	lf.Pages = make([]clconfig.PageConfig, 0, len(lf.Configuration.Site.Pages))

	for _, page := range lf.Configuration.Site.Pages {
		if seen[page.Path] {
			return fmt.Errorf("la page %s est déclarée deux fois", page.Path)
		}
		seen[page.Path] = true

		if page.Name == "" {
			page.Name = PageName(page.Path)
		}
		if page.File == "" {
			page.File = page.Name + ".html"
		}
		lf.Pages = append(lf.Pages, page)
	}
	return nil
}

// Close arrête le planificateur et libère les connexions
func (lf *Littlefolio) Close() {
	if lf.Analytics != nil {
		lf.Analytics.Stop()
	}
	if lf.GeoIP != nil {
		if err := lf.GeoIP.Close(); err != nil {
			log.Warn().Err(err).Msg("fermeture geoip")
		}
	}
	if lf.Redis != nil {
		if err := lf.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("fermeture redis")
		}
	}
	if lf.Db != nil {
		if sqlDB, err := lf.Db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// PageName dérive un nom de page de son chemin, "home" pour la racine
func PageName(path string) string {
	name := Slugify(strings.ReplaceAll(strings.Trim(path, "/"), "/", "-"))
	if name == "" {
		return "home"
	}
	return strings.ToLower(name)
}

func Slugify(s string) string {
	var result strings.Builder

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		} else if unicode.IsSpace(r) {
			result.WriteRune('-')
		} else if r == '-' {
			result.WriteRune(r)
		}
	}

	return result.String()
}
