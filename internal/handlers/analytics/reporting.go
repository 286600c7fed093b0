package handlers_analytics

import (
	"bytes"
	"fmt"
	"littlefolio/internal/models/clanalytics"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// GetData GET /analytics/data?startDate&endDate
func (ah *AnalyticsHandler) GetData(c *gin.Context) {
	r := clanalytics.ParseRange(c.Query("startDate"), c.Query("endDate"), clanalytics.DefaultReportDays, ah.service.Now())

	report, err := ah.service.GetReport(c.Request.Context(), r)
	if err != nil {
		respondError(c, err, "Échec de la lecture des statistiques")
		return
	}

	c.JSON(http.StatusOK, report)
}

// Export GET /analytics/export?type&startDate&endDate
func (ah *AnalyticsHandler) Export(c *gin.Context) {
	exportType, err := clanalytics.ParseExportType(c.DefaultQuery("type", string(clanalytics.ExportSummary)))
	if err != nil {
		respondError(c, err, "")
		return
	}
	r := clanalytics.ParseRange(c.Query("startDate"), c.Query("endDate"), clanalytics.DefaultExportDays, ah.service.Now())

	// le csv est construit entièrement avant d'envoyer les en-têtes
	var buf bytes.Buffer
	if err := ah.service.Export(c.Request.Context(), exportType, r, &buf); err != nil {
		respondError(c, err, "Échec de l'export")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportType.Filename(r)))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// UpdateSummary GET /analytics/update-summary?date
func (ah *AnalyticsHandler) UpdateSummary(c *gin.Context) {
	var day time.Time
	if value := c.Query("date"); value != "" {
		parsed, err := clanalytics.ParseDay(value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Date invalide", "details": err.Error()})
			return
		}
		day = parsed
	}

	result, err := ah.service.UpdateDailySummary(c.Request.Context(), day, false)
	if err != nil {
		respondError(c, err, "Échec du recalcul du résumé")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Résumé analytics du %s mis à jour", result.Date),
		"summary": result,
	})
}

// CronUpdate GET /cron/update-analytics recalcule le jour courant
func (ah *AnalyticsHandler) CronUpdate(c *gin.Context) {
	isAdmin := c.GetHeader("X-Is-Admin") == "true"
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")

	result, err := ah.service.UpdateDailySummary(c.Request.Context(), time.Time{}, isAdmin)
	if err != nil {
		log.Error().Err(err).Msg("recalcul analytics planifié")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Échec du recalcul analytics",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Résumé journalier mis à jour",
		"date":           result.Date,
		"totalVisits":    result.TotalPageViews,
		"uniqueVisitors": result.UniqueVisitors,
		"isAdminRequest": isAdmin,
	})
}

// GetRealtime GET /analytics/realtime
func (ah *AnalyticsHandler) GetRealtime(c *gin.Context) {
	stats, err := ah.service.GetRealtimeStats(c.Request.Context())
	if err != nil {
		respondError(c, err, "Échec de la lecture des compteurs temps réel")
		return
	}

	c.JSON(http.StatusOK, stats)
}
