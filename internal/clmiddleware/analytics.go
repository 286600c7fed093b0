package clmiddleware

import (
	"context"
	"littlefolio/internal/models/clanalytics"
	"littlefolio/internal/models/clidentity"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ContextVisitorID  = "visitor_id"
	ContextSessionID  = "session_id"
	ContextPageViewID = "page_view_id"

	// lu puis effacé par tracker.js, qui n'envoie alors pas sa propre page vue
	PageViewCookie    = "jb_pageview"
	pageViewCookieTTL = 60

	trackTimeout = 10 * time.Second
)

// PageTracker enregistre côté serveur les pages du site servies par gin
type PageTracker struct {
	Analytics  *clanalytics.AnalyticsService
	Production bool
	wg         sync.WaitGroup
}

func NewPageTracker(analytics *clanalytics.AnalyticsService, production bool) *PageTracker {
	return &PageTracker{Analytics: analytics, Production: production}
}

// Track résout visiteur et session avant de servir la page. La vue n'est
// enregistrée, en arrière-plan, que si la page a répondu en 2xx.
func (pt *PageTracker) Track(pageName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resolver := clidentity.New(
			clidentity.NewCookieStorage(c, pt.Production),
			clidentity.NewHeaderStorage(c.Request.Header),
		)
		visitorID := resolver.VisitorID()
		sessionID := resolver.SessionID()
		c.Set(ContextVisitorID, visitorID)
		c.Set(ContextSessionID, sessionID)

		input := clanalytics.PageViewInput{
			PageViewID: uuid.NewString(),
			VisitorID:  visitorID,
			SessionID:  sessionID,
			PageName:   pageName,
			Path:       c.Request.URL.Path,
			Referrer:   c.Request.Referer(),
			UserAgent:  c.Request.UserAgent(),
			IP:         c.ClientIP(),
			IsAdmin:    IsAdminSession(c),
		}
		c.Set(ContextPageViewID, input.PageViewID)

		// les en-têtes partent avec le corps, le cookie est posé avant la page
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(PageViewCookie, input.PageViewID, pageViewCookieTTL, input.Path, "", pt.Production, false)

		c.Next()

		if status := c.Writer.Status(); status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}
		pt.wg.Add(1)
		go pt.record(input)
	}
}

func (pt *PageTracker) record(input clanalytics.PageViewInput) {
	defer pt.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), trackTimeout)
	defer cancel()

	result, err := pt.Analytics.TrackPageView(ctx, input)
	if err != nil {
		// Log l'erreur mais ne pas faire échouer la requête
		log.Error().Err(err).Str("path", input.Path).Msg("enregistrement page vue serveur")
		return
	}
	if result.Skipped != "" {
		return
	}
	log.Debug().
		Str("path", input.Path).
		Str("visitor_id", result.VisitorID).
		Str("page_view_id", result.PageViewID).
		Msg("page vue serveur enregistrée")
}

// Wait attend la fin des enregistrements en cours, à l'arrêt du serveur
func (pt *PageTracker) Wait() {
	pt.wg.Wait()
}
