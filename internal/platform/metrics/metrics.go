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

// Metrics holds the HTTP-level Prometheus metrics.
type Metrics struct {
	RequestLatency *prometheus.HistogramVec
	Requests       *prometheus.CounterVec
}

// New creates and registers the HTTP metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signupgate_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signupgate_http_requests_total",
			Help: "Total HTTP requests by route, method and status code",
		}, []string{"route", "method", "status"}),
	}
}

// Middleware records latency and status per chi route pattern. Unmatched
// requests are labelled "unmatched" to keep cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestLatency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
	})
}
