package clmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "littlefolio_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "littlefolio_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	PageViewsTracked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "littlefolio_pageviews_tracked_total",
			Help: "Page views committed by the ingestion",
		},
	)

	PageViewsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "littlefolio_pageviews_skipped_total",
			Help: "Page views skipped as admin traffic",
		},
		[]string{"reason"},
	)

	EventsTracked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "littlefolio_events_tracked_total",
			Help: "Analytics events committed by the ingestion",
		},
		[]string{"type"},
	)

	IngestionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "littlefolio_ingestion_retries_total",
			Help: "Ingestion transactions replayed after a duplicate key",
		},
	)

	RollupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "littlefolio_rollups_total",
			Help: "Daily summary recomputations",
		},
		[]string{"trigger", "status"},
	)

	RollupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "littlefolio_rollup_duration_seconds",
			Help:    "Daily summary recomputation duration",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PageViewsTracked,
		PageViewsSkipped,
		EventsTracked,
		IngestionRetries,
		RollupsTotal,
		RollupDuration,
	)
}

// Handler expose le registre par défaut
func Handler() http.Handler {
	return promhttp.Handler()
}
