package handlers_admin

import (
	"errors"
	"littlefolio/internal/clmiddleware"
	"littlefolio/internal/models/clanalytics"
	"littlefolio/internal/models/clcaptchas"
	"littlefolio/internal/models/clconfig"
	"net/http"

	"github.com/andskur/argon2-hashing"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionUsername = "username"
	dashboardPath   = "/analytics"
)

type AdminHandler struct {
	user      clconfig.UserConfig
	captcha   *clcaptchas.Captchas
	analytics *clanalytics.AnalyticsService
}

func NewAdminHandler(user clconfig.UserConfig, captcha *clcaptchas.Captchas, analytics *clanalytics.AnalyticsService) *AdminHandler {
	return &AdminHandler{
		user:      user,
		captcha:   captcha,
		analytics: analytics,
	}
}

type LoginRequest struct {
	CaptchaID     string `json:"captchaID"`
	CaptchaAnswer string `json:"captchaAnswer"`
	Username      string `json:"username" binding:"required"`
	Password      string `json:"password" binding:"required"`
}

// Captcha GET /admin/captcha
func (ah *AdminHandler) Captcha(c *gin.Context) {
	ah.captcha.Handler(c)
}

// Login POST /admin/login
func (ah *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides"})
		return
	}

	if err := ah.captcha.Verify(req.CaptchaID, req.CaptchaAnswer); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, clcaptchas.ErrCaptchaIncorrect) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	// Vérification login / pass
	err := argon2.CompareHashAndPassword([]byte(ah.user.Hash), []byte(req.Password))
	if err != nil || req.Username != ah.user.Login {
		log.Warn().Str("user", req.Username).Str("ip", c.ClientIP()).Msg("tentative de connexion échouée")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Identifiants incorrects"})
		return
	}
	log.Info().Str("user", req.Username).Str("ip", c.ClientIP()).Msg("connexion réussie")

	session := sessions.Default(c)
	session.Set(clmiddleware.SessionUserID, "admin")
	session.Set(sessionUsername, req.Username)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Connexion réussie",
		"redirect": dashboardPath,
	})
}

// Logout POST /admin/logout
func (ah *AdminHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		log.Error().Err(err).Msg("fermeture de session")
	}

	c.JSON(http.StatusOK, gin.H{"message": "Déconnexion réussie"})
}

// Me GET /admin/me, derrière AuthRequired
func (ah *AdminHandler) Me(c *gin.Context) {
	session := sessions.Default(c)
	c.JSON(http.StatusOK, gin.H{
		"authenticated": c.GetBool("authenticated"),
		"username":      session.Get(sessionUsername),
	})
}

// ResetAnalytics POST /admin/analytics/reset vide toutes les tables analytics
func (ah *AdminHandler) ResetAnalytics(c *gin.Context) {
	result, err := ah.analytics.Reset(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("remise à zéro des analytics")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Échec de la remise à zéro",
			"details": err.Error(),
		})
		return
	}

	session := sessions.Default(c)
	log.Warn().
		Interface("user", session.Get(sessionUsername)).
		Int64("page_views", result.PageViews).
		Int64("visitors", result.Visitors).
		Msg("analytics remises à zéro")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"deleted": result,
	})
}
