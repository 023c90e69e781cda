package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rakurai_distributor_build_info",
			Help: "Build information of the Rakurai distributor",
		},
		[]string{"version", "commit", "date"},
	)

	ViewRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rakurai_distributor_view_refresh_total",
			Help: "Total number of view refreshes",
		},
		[]string{"view_type", "status"},
	)

	ViewRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rakurai_distributor_view_refresh_duration_seconds",
			Help:    "Duration of view refreshes",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~410s
		},
		[]string{"view_type"},
	)

	CollectionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rakurai_distributor_collections",
			Help: "Number of reward collection accounts by lifecycle state",
		},
		[]string{"state"},
	)

	CollectionLamportsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rakurai_distributor_collection_lamports",
			Help: "Lamports held by reward collection accounts by lifecycle state",
		},
		[]string{"state"},
	)

	ClaimStatuses = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rakurai_distributor_claim_statuses",
			Help: "Number of claim status accounts by closability",
		},
		[]string{"closable"},
	)

	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rakurai_distributor_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"status"},
	)

	DatabaseQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rakurai_distributor_database_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rakurai_distributor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rakurai_distributor_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rakurai_distributor_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func RecordDatabaseQuery(duration time.Duration, err error) {
	DatabaseQueriesTotal.WithLabelValues(status(err)).Inc()
	DatabaseQueryDuration.Observe(duration.Seconds())
}

func RecordViewRefresh(viewType string, duration time.Duration, err error) {
	ViewRefreshTotal.WithLabelValues(viewType, status(err)).Inc()
	ViewRefreshDuration.WithLabelValues(viewType).Observe(duration.Seconds())
}

// Middleware records HTTP metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
