package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Bulk executor metrics
	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mantle_bulk_batches_total",
			Help: "Total number of executed batches by executor and result",
		},
		[]string{"executor", "result"},
	)

	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mantle_bulk_batch_duration_seconds",
			Help:    "Batch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"executor"},
	)

	BatchesInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mantle_bulk_batches_in_flight",
			Help: "Number of admitted batches not yet released",
		},
		[]string{"executor"},
	)

	// Poller metrics
	PollAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mantle_poll_attempts_total",
			Help: "Total number of poll attempts by poller kind",
		},
		[]string{"kind"},
	)

	PollOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mantle_poll_outcomes_total",
			Help: "Total number of finished polls by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// Gateway metrics
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mantle_gateway_requests_total",
			Help: "Total number of service requests by service and status code",
		},
		[]string{"service", "code"},
	)

	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mantle_gateway_request_duration_seconds",
			Help:    "Service request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)

func init() {
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(BatchesInFlight)
	prometheus.MustRegister(PollAttemptsTotal)
	prometheus.MustRegister(PollOutcomesTotal)
	prometheus.MustRegister(GatewayRequestsTotal)
	prometheus.MustRegister(GatewayRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in a histogram
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in a histogram vec
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
