package reservation

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// Metrics holds the Prometheus collectors of the admission pipeline.  A
// nil *Metrics is valid and records nothing.
type Metrics struct {
	queueDepth prometheus.Gauge
	requests   *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reservation_queue_depth",
			Help: "Number of reservation requests waiting for a worker",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_requests_total",
			Help: "Reservation requests by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reservation_processing_seconds",
			Help:    "Time a worker spends processing one reservation request",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.queueDepth, m.requests, m.duration)
	return m
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) observe(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(elapsed.Seconds())
	m.count(err)
}

func (m *Metrics) count(err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(model.KindOf(err))
}
