package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records API request latencies and auth outcomes.
type HTTPMetrics struct {
	requests *prometheus.HistogramVec
	auth     *prometheus.CounterVec
}

// NewHTTPMetrics registers the API metrics on the provided registerer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	auth := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_events_total",
		Help:      "Identity operations by kind and outcome code.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(requests, auth)
	return &HTTPMetrics{requests: requests, auth: auth}
}

// ObserveRequest records one completed request.
func (h *HTTPMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if h == nil || h.requests == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	h.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// IncAuth counts an identity operation; outcome is "ok" or an error code.
func (h *HTTPMetrics) IncAuth(kind, outcome string) {
	if h == nil || h.auth == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	h.auth.WithLabelValues(jobLabel(kind), outcome).Inc()
}
