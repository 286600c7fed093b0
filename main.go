package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	handlers_admin "littlefolio/internal/handlers/admin"
	handlers_analytics "littlefolio/internal/handlers/analytics"
	handlers_site "littlefolio/internal/handlers/site"
	"littlefolio/internal/clmetrics"
	"littlefolio/internal/clmiddleware"
	"littlefolio/internal/models/clanalytics"
	"littlefolio/internal/models/clconfig"
	"littlefolio/internal/models/cllog"
	"littlefolio/internal/models/clsite"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const VERSION string = "1.0.0"

const (
	loginRateLimit  = 5
	shutdownTimeout = 10 * time.Second
)

var BuildID string

func main() {
	if BuildID == "" {
		BuildID = VERSION
	}

	conf := initConfiguration()
	cllog.InitLogger(conf.Logger, conf.Production)
	clconfig.DisplayConfiguration(conf, VERSION)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lf, err := clsite.Init(ctx, conf, VERSION, BuildID)
	if err != nil {
		log.Fatal().Err(err).Msg("initialisation impossible")
	}
	defer lf.Close()

	if conf.Analytics.Enabled {
		err := lf.Analytics.StartScheduler(clanalytics.ScheduleConfig{
			Today:     conf.Analytics.Cron.Today,
			Yesterday: conf.Analytics.Cron.Yesterday,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("démarrage du planificateur analytics")
		}
	}

	r := newServer(conf)
	clmiddleware.InitMiddleware(r, conf.Site.SessionSecret, conf.Production)
	tracker := setRoutes(r, lf)

	startServer(ctx, r, conf, tracker)
}

func initConfiguration() *clconfig.Config {
	configFile, shouldCreateExample, versionDisplay, err := parseCommandLineArgs(os.Args[1:])
	if err != nil {
		fmt.Println("Usage:")
		fmt.Println("  littlefolio -config littlefolio.yaml")
		fmt.Println("  littlefolio -example  (pour créer un fichier exemple)")
		fmt.Println("  littlefolio -version  (affiche la version)")
		os.Exit(1)
	}

	if versionDisplay {
		println(VERSION)
		os.Exit(0)
	}

	clconfig.CreateExample(shouldCreateExample, configFile)

	// Load and validate configuration
	conf, err := clconfig.LoadAndConvertConfig(configFile)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	return conf
}

func parseCommandLineArgs(args []string) (configFile string, shouldCreateExample bool, versionDisplay bool, err error) {
	flags := flag.NewFlagSet("littlefolio", flag.ContinueOnError)
	var config = flags.String("config", "", "Fichier de configuration YAML")
	var example = flags.Bool("example", false, "Créer un fichier de configuration exemple")
	var version = flags.Bool("version", false, "version du produit")
	if err := flags.Parse(args); err != nil {
		return "", false, false, err
	}

	if *version {
		return "", false, true, nil
	}

	if *example {
		return *config, true, false, nil
	}

	if *config == "" {
		return "", false, false, fmt.Errorf("fichier de configuration requis")
	}

	return *config, false, false, nil
}

func newServer(conf *clconfig.Config) *gin.Engine {
	if conf.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	if conf.TrustedProxies != nil {
		if err := r.SetTrustedProxies(conf.TrustedProxies); err != nil {
			log.Warn().Err(err).Msg("proxies de confiance invalides")
		}
	}
	if conf.TrustedPlatform != "" {
		switch conf.TrustedPlatform {
		case "cloudflare":
			r.TrustedPlatform = gin.PlatformCloudflare
		case "google":
			r.TrustedPlatform = gin.PlatformGoogleAppEngine
		case "flyio":
			r.TrustedPlatform = gin.PlatformFlyIO
		default:
			r.TrustedPlatform = conf.TrustedPlatform
		}
	}

	return r
}

// setRoutes déclare les routes et retourne le tracker des pages, nil sans analytics
func setRoutes(r *gin.Engine, lf *clsite.Littlefolio) *clmiddleware.PageTracker {
	conf := lf.Configuration

	//default
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Page non trouvée"})
	})

	// Route statiques
	r.Static("/static/", conf.StaticPath)

	var tracker *clmiddleware.PageTracker
	if conf.Analytics.Enabled {
		tracker = clmiddleware.NewPageTracker(lf.Analytics, conf.Production)
	}
	handlers_site.NewSiteHandler(conf.StaticPath).Register(r, tracker, lf.Pages)

	// Routes d'authentification
	adminHandler := handlers_admin.NewAdminHandler(conf.User, lf.Captcha, lf.Analytics)
	r.GET("/admin/captcha", adminHandler.Captcha)
	r.POST("/admin/login", clmiddleware.NewLimiter(loginRateLimit, lf.Redis, "login"), adminHandler.Login)
	r.POST("/admin/logout", adminHandler.Logout)

	// Routes d'administration protégées
	admin := r.Group("/admin")
	admin.Use(clmiddleware.AuthRequired())
	{
		admin.GET("/me", adminHandler.Me)
		admin.POST("/analytics/reset", adminHandler.ResetAnalytics)
	}

	if !conf.Analytics.Enabled {
		return tracker
	}

	analyticsHandler := handlers_analytics.NewAnalyticsHandler(lf.Analytics, conf.Production)

	// ingestion, ouverte et limitée par IP
	ingest := r.Group("/analytics")
	ingest.Use(clmiddleware.NewLimiter(conf.Analytics.RateLimit, lf.Redis, "analytics"))
	{
		ingest.POST("/pageview", analyticsHandler.TrackPageView)
		ingest.POST("/event", analyticsHandler.TrackEvent)
		ingest.POST("/duration", analyticsHandler.UpdateDuration)
		ingest.POST("/page-view", analyticsHandler.TrackLegacyPageView)
		ingest.POST("/interaction", analyticsHandler.TrackInteraction)
	}

	// lecture, clé API ou session admin
	apiKey := clmiddleware.APIKey(conf.Analytics.ApiKey, conf.Production)
	reporting := r.Group("/analytics")
	reporting.Use(apiKey)
	{
		reporting.GET("/data", analyticsHandler.GetData)
		reporting.GET("/export", analyticsHandler.Export)
		reporting.GET("/update-summary", analyticsHandler.UpdateSummary)
		reporting.GET("/realtime", analyticsHandler.GetRealtime)
		reporting.GET("/live", analyticsHandler.Live)
	}
	r.GET("/cron/update-analytics", apiKey, analyticsHandler.CronUpdate)

	return tracker
}

func startServer(ctx context.Context, r *gin.Engine, conf *clconfig.Config, tracker *clmiddleware.PageTracker) {
	var metricsServer *http.Server
	if conf.Listen.Metrics != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", clmetrics.Handler())
		metricsServer = &http.Server{Addr: conf.Listen.Metrics, Handler: mux}
		log.Info().Msgf("Metrics disponible sur http://%s/metrics", conf.Listen.Metrics)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("serveur de métriques")
			}
		}()
	}

	server := &http.Server{
		Addr:              conf.Listen.Website,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Msgf("Website démarré sur http://%s", conf.Listen.Website)
		log.Info().Msgf("Admin: http://%s/admin/login", conf.Listen.Website)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("serveur web")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("arrêt demandé")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("arrêt du serveur web")
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	if tracker != nil {
		tracker.Wait()
	}
	log.Info().Msg("serveur arrêté")
}
