package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cypher",
			Subsystem: "http",
			Name:      "latency_seconds",
			Help:      "Latency of API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RequestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cypher",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Error responses by endpoint and status",
		},
		[]string{"route", "status"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(RequestLatency, RequestErrors)
	})
}

// Middleware records per-route latency and error counts.
func Middleware() echo.MiddlewareFunc {
	Register()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			route := c.Path()
			RequestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			if status >= 400 {
				RequestErrors.WithLabelValues(route, strconv.Itoa(status)).Inc()
			}
			return err
		}
	}
}
