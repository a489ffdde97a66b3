package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	connState    *prometheus.GaugeVec
	poolDepth    prometheus.Gauge
	tasksTotal   *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cypher_messages_sent_total",
				Help: "Total number of messages sent to backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cypher_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cypher_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cypher_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		connState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cypher_ws_connection_state",
				Help: "WebSocket connection state (1 for the active state, 0 otherwise)",
			},
			[]string{"connection", "state"},
		),
		poolDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cypher_worker_queue_depth",
				Help: "Number of tasks waiting in the worker pool queue",
			},
		),
		tasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cypher_worker_tasks_total",
				Help: "Worker pool tasks by type and outcome",
			},
			[]string{"type", "outcome"},
		),
	}
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// wsStates is the full set of connection states; exactly one is 1 per connection.
var wsStates = []string{"disconnected", "connecting", "connected", "reconnecting", "closed"}

// RecordConnState records the state of a named WebSocket connection.
func (r *Recorder) RecordConnState(connection, state string) {
	for _, s := range wsStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		r.connState.WithLabelValues(connection, s).Set(v)
	}
}

// RecordPoolDepth records the current worker pool queue depth.
func (r *Recorder) RecordPoolDepth(n int) {
	r.poolDepth.Set(float64(n))
}

// RecordTask records a completed worker pool task by outcome.
func (r *Recorder) RecordTask(taskType, outcome string) {
	r.tasksTotal.WithLabelValues(taskType, outcome).Inc()
}
