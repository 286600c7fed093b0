package handlers_analytics

import (
	"errors"
	"littlefolio/internal/clmiddleware"
	"littlefolio/internal/models/clanalytics"
	"littlefolio/internal/models/clidentity"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const VisitorHeader = "X-Visitor-Id"

type AnalyticsHandler struct {
	service    *clanalytics.AnalyticsService
	production bool
}

func NewAnalyticsHandler(service *clanalytics.AnalyticsService, production bool) *AnalyticsHandler {
	registerValidators()
	return &AnalyticsHandler{
		service:    service,
		production: production,
	}
}

var validatorsOnce sync.Once

// registerValidators ajoute le tag eventtype au validateur de gin
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		err := v.RegisterValidation("eventtype", func(fl validator.FieldLevel) bool {
			return clanalytics.ValidEventType(fl.Field().String())
		})
		if err != nil {
			log.Error().Err(err).Msg("enregistrement du validateur eventtype")
		}
	})
}

// respondError traduit les erreurs du service en statut HTTP
func respondError(c *gin.Context, err error, message string) {
	switch {
	case clanalytics.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, clanalytics.ErrPageViewNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Page view introuvable"})
	case errors.Is(err, clanalytics.ErrInvalidExportType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Type de rapport invalide"})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(message)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   message,
			"details": err.Error(),
		})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Champs requis manquants",
		"details": err.Error(),
	})
}

type pageViewRequest struct {
	VisitorID string `json:"visitorId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
	PageName  string `json:"pageName" binding:"required"`
	Path      string `json:"path" binding:"required"`
	Referrer  string `json:"referrer"`
	IsAdmin   bool   `json:"isAdmin"`
}

// TrackPageView POST /analytics/pageview
func (ah *AnalyticsHandler) TrackPageView(c *gin.Context) {
	var req pageViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := ah.service.TrackPageView(c.Request.Context(), clanalytics.PageViewInput{
		VisitorID: req.VisitorID,
		SessionID: req.SessionID,
		PageName:  req.PageName,
		Path:      req.Path,
		Referrer:  req.Referrer,
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
		IsAdmin:   req.IsAdmin || clmiddleware.IsAdminSession(c),
	})
	if err != nil {
		respondError(c, err, "Échec de l'enregistrement de la page vue")
		return
	}

	if result.Skipped != "" {
		c.JSON(http.StatusOK, skippedResponse(result.Skipped))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"visitorId":  result.VisitorID,
		"sessionId":  result.SessionID,
		"pageViewId": result.PageViewID,
		"timestamp":  result.Timestamp,
	})
}

func skippedResponse(reason clanalytics.SkipReason) gin.H {
	body := gin.H{
		"success": true,
		"skipped": true,
		"reason":  reason,
	}
	// drapeaux attendus par les anciens clients
	if reason == clanalytics.SkipAdminFlag {
		body["adminSkipped"] = true
	} else {
		body["adminPathSkipped"] = true
	}
	return body
}

type eventRequest struct {
	VisitorID  string         `json:"visitorId" binding:"required"`
	EventName  string         `json:"eventName" binding:"required"`
	EventType  string         `json:"eventType" binding:"omitempty,eventtype"`
	Properties map[string]any `json:"properties"`
	PageViewID string         `json:"pageViewId"`
}

// TrackEvent POST /analytics/event
func (ah *AnalyticsHandler) TrackEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	event, err := ah.service.TrackEvent(c.Request.Context(), clanalytics.EventInput{
		VisitorID:  req.VisitorID,
		EventName:  req.EventName,
		EventType:  req.EventType,
		Properties: req.Properties,
		PageViewID: req.PageViewID,
	})
	if err != nil {
		respondError(c, err, "Échec de l'enregistrement de l'événement")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"eventId": event.ID,
	})
}

type durationRequest struct {
	PageViewID string   `json:"pageViewId" binding:"required"`
	Duration   *float64 `json:"duration"`
}

// UpdateDuration POST /analytics/duration
func (ah *AnalyticsHandler) UpdateDuration(c *gin.Context) {
	var req durationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := ah.service.UpdateDuration(c.Request.Context(), req.PageViewID, req.Duration); err != nil {
		respondError(c, err, "Échec de la mise à jour de la durée")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type legacyPageViewRequest struct {
	Path     string `json:"path" binding:"required"`
	PageName string `json:"pageName" binding:"required"`
	Referrer string `json:"referrer"`
}

// TrackLegacyPageView POST /analytics/page-view, visiteur dans l'en-tête
// et session tenue par les cookies du serveur
func (ah *AnalyticsHandler) TrackLegacyPageView(c *gin.Context) {
	visitorID := c.GetHeader(VisitorHeader)
	if visitorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Identifiant visiteur manquant"})
		return
	}

	var req legacyPageViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resolver := clidentity.New(
		clidentity.NewCookieStorage(c, ah.production),
		clidentity.NewHeaderStorage(c.Request.Header),
	)

	_, err := ah.service.TrackPageView(c.Request.Context(), clanalytics.PageViewInput{
		VisitorID: visitorID,
		SessionID: resolver.SessionID(),
		PageName:  req.PageName,
		Path:      req.Path,
		Referrer:  req.Referrer,
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
		IsAdmin:   clmiddleware.IsAdminSession(c),
	})
	if err != nil {
		respondError(c, err, "Échec de l'enregistrement de la page vue")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type interactionRequest struct {
	Type     string         `json:"type" binding:"required"`
	Element  string         `json:"element" binding:"required"`
	Path     string         `json:"path" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}

// TrackInteraction POST /analytics/interaction
func (ah *AnalyticsHandler) TrackInteraction(c *gin.Context) {
	visitorID := c.GetHeader(VisitorHeader)
	if visitorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Identifiant visiteur manquant"})
		return
	}

	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	_, err := ah.service.TrackInteraction(c.Request.Context(), visitorID, req.Type, req.Element, req.Path, req.Metadata)
	if err != nil {
		respondError(c, err, "Échec de l'enregistrement de l'interaction")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
