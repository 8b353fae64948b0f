package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "toggl_earnings"

// Metrics groups the collectors shared by the client, poller and broadcaster.
type Metrics struct {
	Requests         *prometheus.CounterVec
	Retries          *prometheus.CounterVec
	Cycles           *prometheus.CounterVec
	Broadcasts       prometheus.Counter
	DeliveryFailures prometheus.Counter
	Subscribers      prometheus.Gauge
	MonthTotal       prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Outbound Toggl API requests by status class.",
		}, []string{"status"}),
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Retried outbound attempts by policy layer.",
		}, []string{"layer"}),
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Polling cycles by result.",
		}, []string{"result"}),
		Broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Values fanned out to subscribers.",
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Failed sends to individual subscribers.",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Currently connected subscribers.",
		}),
		MonthTotal: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "month_total",
			Help:      "Last computed monthly earnings (display only).",
		}),
	}
}

// StatusClass buckets an HTTP status code as 2xx, 4xx, ... or "error" for 0.
func StatusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return string(rune('0'+code/100)) + "xx"
}
