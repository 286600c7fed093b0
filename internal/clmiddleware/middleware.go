package clmiddleware

import (
	"crypto/rand"
	"crypto/subtle"
	"littlefolio/internal/clmetrics"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const (
	SessionName = "littlefolio"
	// clé de session posée au login admin
	SessionUserID = "user_id"

	APIKeyHeader = "X-API-Key"
)

// le flux websocket ne doit pas être compressé
var gzipExcluded = []string{"/analytics/live"}

func InitMiddleware(r *gin.Engine, sessionSecret string, production bool) {
	// logger
	r.Use(Logger())
	r.Use(Recovery())

	// métriques prometheus
	r.Use(Metrics())

	// use Compression, with gzip
	r.Use(gzip.Gzip(gzip.BestSpeed, gzip.WithExcludedPaths(gzipExcluded)))

	// Configuration des sessions
	r.Use(NewSession(sessionSecret, production))

	// CORS
	r.Use(CORS)
}

func CORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Visitor-Id, X-Session-Id, X-API-Key, X-Is-Admin")

	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(204)
		return
	}

	c.Next()
}

// NewLimiter limite chaque IP à perMinute requêtes par minute.
// Le compteur est partagé dans redis quand un client est fourni.
func NewLimiter(perMinute int64, client *redis.Client, prefix string) gin.HandlerFunc {
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  perMinute,
	}

	var store limiter.Store = memory.NewStore()
	if client != nil {
		rstore, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix: "limiter:" + prefix,
		})
		if err != nil {
			log.Warn().Err(err).Str("limiter", prefix).Msg("store redis indisponible, limiteur en mémoire")
		} else {
			store = rstore
		}
	}

	instance := limiter.New(store, rate)
	return ginlimiter.NewMiddleware(instance, ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Trop de requêtes"})
	}))
}

func NewSession(secret string, production bool) gin.HandlerFunc {
	key := []byte(secret)
	if secret == "" {
		// sessions perdues au redémarrage
		key = generateSecretKey()
	}
	store := cookie.NewStore(key)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, store)
}

// IsAdminSession indique si la requête porte une session admin ouverte
func IsAdminSession(c *gin.Context) bool {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return false
	}
	return sessions.Default(c).Get(SessionUserID) != nil
}

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdminSession(c) {
			if c.ContentType() == "application/json" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentification requise"})
			} else {
				c.Redirect(http.StatusTemporaryRedirect, "/admin/login")
			}
			c.Abort()
			return
		}
		c.Set("authenticated", true)
		c.Next()
	}
}

// APIKey protège les lectures analytics. Sans clé configurée, aucun contrôle;
// une clé absente ou fausse bloque en production et n'est que signalée ailleurs.
// Une session admin passe toujours.
func APIKey(expected string, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" || IsAdminSession(c) {
			c.Next()
			return
		}

		provided := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1 {
			c.Next()
			return
		}

		if production {
			log.Warn().Str("path", c.Request.URL.Path).Str("ip", c.ClientIP()).Msg("clé API invalide")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Non autorisé"})
			return
		}
		log.Warn().Str("path", c.Request.URL.Path).Msg("clé API invalide, acceptée hors production")
		c.Next()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Traiter la requête
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		var logEvent *zerolog.Event
		switch {
		case statusCode == 404:
			logEvent = log.Debug()
		case statusCode >= 500:
			logEvent = log.Error()
		case statusCode >= 400:
			logEvent = log.Warn()
		default:
			logEvent = log.Info()
		}

		logEvent.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP Request")

		for _, err := range c.Errors {
			log.Error().
				Err(err.Err).
				Str("type", strconv.FormatUint(uint64(err.Type), 10)).
				Msg("Request error")
		}
	}
}

// Metrics compte les requêtes par route déclarée, pas par chemin brut
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		clmetrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		clmetrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("path", c.Request.URL.Path).
					Str("method", c.Request.Method).
					Msg("Panic recovered")

				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}

// Générer une clé secrète aléatoire
func generateSecretKey() []byte {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	if err != nil {
		log.Fatal().Err(err).Msg("Erreur génération clé secrète")
	}
	return key
}
