package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	applogger "CypherFeed/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	serverRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cypher_server_requests_total",
			Help: "HTTP requests served, by path, method and status",
		},
		[]string{"path", "method", "status"},
	)

	serverDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cypher_server_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"path", "method"},
	)

	serverInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cypher_server_in_flight_requests",
			Help: "HTTP requests currently being served",
		},
	)

	serverResponseBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cypher_server_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{200, 1_000, 5_000, 25_000, 100_000, 1_000_000},
		},
		[]string{"path"},
	)

	serverRegOnce sync.Once
)

// Metrics records request counters, latency, in-flight and response-size
// series for every route, and logs slow or failed requests when a logger
// is supplied. Labels use the raw URL path; the route set is small and
// fixed so cardinality stays bounded.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) func(http.Handler) http.Handler {
	serverRegOnce.Do(func() {
		prometheus.MustRegister(serverRequests, serverDuration, serverInFlight, serverResponseBytes)
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			serverInFlight.Inc()
			start := time.Now()

			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			elapsed := time.Since(start)
			serverInFlight.Dec()
			serverRequests.WithLabelValues(path, r.Method, strconv.Itoa(rw.status)).Inc()
			serverDuration.WithLabelValues(path, r.Method).Observe(elapsed.Seconds())
			serverResponseBytes.WithLabelValues(path).Observe(float64(rw.written))

			if l == nil {
				return
			}
			switch {
			case rw.status >= http.StatusInternalServerError:
				l.Error("http request failed",
					applogger.String("path", path),
					applogger.String("method", r.Method),
					applogger.Int("status", rw.status),
					applogger.Duration("elapsed", elapsed),
				)
			case slowThreshold > 0 && elapsed >= slowThreshold:
				l.Warn("http request slow",
					applogger.String("path", path),
					applogger.String("method", r.Method),
					applogger.Int("status", rw.status),
					applogger.Duration("elapsed", elapsed),
				)
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}
