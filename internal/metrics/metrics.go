package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myplanner_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "myplanner_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	ConflictsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "myplanner_conflicts_detected_total",
		Help: "Total number of save attempts that hit a scheduling conflict.",
	})

	ConflictOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myplanner_conflict_outcomes_total",
		Help: "Terminal outcomes of detected conflicts.",
	}, []string{"outcome"}) // accept, ignore

	SuggestionsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "myplanner_suggestions_discarded_total",
		Help: "External conflict suggestions rejected by the local validator.",
	})

	SeriesExpansions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "myplanner_series_expansions_total",
		Help: "Total number of recurring-series expansions performed.",
	})

	SeriesInstances = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "myplanner_series_instances",
		Help:    "Instances produced per series expansion.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	AlertCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "myplanner_alert_cycles_total",
		Help: "Total number of proximity/reminder evaluator cycles.",
	})

	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myplanner_alerts_fired_total",
		Help: "Alerts emitted by the evaluator, by kind.",
	}, []string{"kind"}) // reminder, proximity

	PositionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "myplanner_position_errors_total",
		Help: "Failed position-source fetches.",
	})
)

// Middleware records request count and latency labeled by chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the default registry at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
