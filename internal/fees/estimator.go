package fees

import (
	"context"
	"net/http"
	"sync"
	"time"

	"CypherFeed/internal/domain/models"
	xhttp "CypherFeed/pkg/http"
	"CypherFeed/pkg/logger"
)

// staticEstimate is served until a remote fetch succeeds, and whenever
// no estimate URL is configured.
var staticEstimate = models.NetworkEstimate{
	LowSatVB:    5,
	MediumSatVB: 15,
	HighSatVB:   40,
	Source:      "static",
}

// mempoolFees matches the mempool.space recommended-fees payload.
type mempoolFees struct {
	FastestFee  float64 `json:"fastestFee"`
	HalfHourFee float64 `json:"halfHourFee"`
	HourFee     float64 `json:"hourFee"`
}

// NetworkEstimator serves sat/vB rates per priority, refreshed in the
// background from a remote endpoint with a static fallback.
type NetworkEstimator struct {
	url     string
	refresh time.Duration
	client  *xhttp.Client
	l       *logger.Logger

	mu      sync.RWMutex
	current models.NetworkEstimate

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewNetworkEstimator builds an estimator. An empty url disables remote
// refresh entirely.
func NewNetworkEstimator(url string, refresh, timeout time.Duration, l *logger.Logger) *NetworkEstimator {
	if refresh <= 0 {
		refresh = 5 * time.Minute
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	e := &NetworkEstimator{
		url:     url,
		refresh: refresh,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		l:       l,
		current: staticEstimate,
		stopCh:  make(chan struct{}),
	}
	e.current.FetchedAt = time.Now()
	return e
}

// Current returns the latest estimate.
func (e *NetworkEstimator) Current() models.NetworkEstimate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// SatVB returns the rate for a priority. Unknown priorities get medium.
func (e *NetworkEstimator) SatVB(p models.FeePriority) float64 {
	cur := e.Current()
	switch p {
	case models.PriorityLow:
		return cur.LowSatVB
	case models.PriorityHigh:
		return cur.HighSatVB
	default:
		return cur.MediumSatVB
	}
}

// Start launches the refresh loop. No-op without a URL.
func (e *NetworkEstimator) Start(ctx context.Context) {
	if e.url == "" {
		return
	}
	e.refreshOnce(ctx)
	go func() {
		t := time.NewTicker(e.refresh)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			case <-t.C:
				e.refreshOnce(ctx)
			}
		}
	}()
}

// Stop halts the refresh loop. The last estimate stays served.
func (e *NetworkEstimator) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

func (e *NetworkEstimator) refreshOnce(ctx context.Context) {
	var mf mempoolFees
	err := e.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: http.MethodGet,
		URL:    e.url,
	}, &mf)
	if err != nil {
		e.l.Warn("fee estimate refresh failed", logger.Error(err))
		return
	}
	if mf.HourFee <= 0 || mf.HalfHourFee <= 0 || mf.FastestFee <= 0 {
		e.l.Warn("fee estimate refresh returned non-positive rates")
		return
	}
	e.mu.Lock()
	e.current = models.NetworkEstimate{
		LowSatVB:    mf.HourFee,
		MediumSatVB: mf.HalfHourFee,
		HighSatVB:   mf.FastestFee,
		FetchedAt:   time.Now(),
		Source:      "remote",
	}
	e.mu.Unlock()
}
