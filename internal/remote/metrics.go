package remote

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-operation latency of backend calls.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clinic",
				Subsystem: "client",
				Name:      "request_duration_seconds",
				Help:      "Latency of clinic backend requests by operation and outcome.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requestDuration)
	}
	return m
}

func (m *Metrics) observe(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}
