package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-session call statistics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	inFlight prometheus.Gauge
	calls    *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewMetrics creates session metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "holoclient",
			Subsystem: "transport",
			Name:      "calls_in_flight",
			Help:      "Requests awaiting a response.",
		}),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "holoclient",
				Subsystem: "transport",
				Name:      "calls_total",
				Help:      "Completed calls by outcome.",
			},
			[]string{"outcome"},
		),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "holoclient",
			Subsystem: "transport",
			Name:      "call_duration_seconds",
			Help:      "Time from request write to response.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{m.inFlight, m.calls, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) callStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) callFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.calls.WithLabelValues(outcome).Inc()
	m.latency.Observe(d.Seconds())
}
