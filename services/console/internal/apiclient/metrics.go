package apiclient

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records remote API call latency and token refresh outcomes.
type Metrics struct {
	requests *prometheus.HistogramVec
	refresh  *prometheus.CounterVec
}

// NewMetrics registers the console API collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "console",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of calls to the pump inventory backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "session",
			Name:      "token_refresh_total",
			Help:      "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.refresh)
	}
	return m
}

func (m *Metrics) observe(method, route string, status int, started time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, statusClass(status)).Observe(time.Since(started).Seconds())
}

// RefreshOutcome counts one refresh attempt ("success", "failure", "skipped").
func (m *Metrics) RefreshOutcome(outcome string) {
	if m == nil {
		return
	}
	m.refresh.WithLabelValues(outcome).Inc()
}

func statusClass(status int) string {
	if status == 0 {
		return "network"
	}
	return strconv.Itoa(status/100) + "xx"
}
