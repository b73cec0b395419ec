package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes Prometheus counters for the analytics API and the
// market data refresh pipeline.
type Recorder struct {
	requestsTotal  *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	refreshesTotal *prometheus.CounterVec
	signalsTotal   *prometheus.CounterVec
	lastClose      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dma_requests_total",
				Help: "Total number of API requests served",
			},
			[]string{"endpoint"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dma_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		refreshesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dma_refreshes_total",
				Help: "Total number of market data refresh attempts",
			},
			[]string{"code", "status"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dma_signals_generated_total",
				Help: "Total number of trading signals generated",
			},
			[]string{"code", "type"},
		),
		lastClose: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dma_last_close",
				Help: "Last close price observed for a code",
			},
			[]string{"code"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dma_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordRequest records a served API request.
func (r *Recorder) RecordRequest(endpoint string) {
	r.requestsTotal.WithLabelValues(endpoint).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordRefresh records the outcome of a market data refresh attempt.
func (r *Recorder) RecordRefresh(code, status string) {
	r.refreshesTotal.WithLabelValues(code, status).Inc()
}

// RecordSignals records generated signals by type.
func (r *Recorder) RecordSignals(code, signalType string, n int) {
	r.signalsTotal.WithLabelValues(code, signalType).Add(float64(n))
}

// RecordLastClose records the last close price observed for a code.
func (r *Recorder) RecordLastClose(code string, price float64) {
	r.lastClose.WithLabelValues(code).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
