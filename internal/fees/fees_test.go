package fees

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"CypherFeed/internal/domain/models"
	"CypherFeed/pkg/logger"
)

type stubPrices map[string]float64

func (s stubPrices) Last(symbol string) (float64, bool) {
	p, ok := s[symbol]
	return p, ok
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestTierFor(t *testing.T) {
	cases := []struct {
		volume float64
		want   string
	}{
		{0, "Regular"},
		{99_999, "Regular"},
		{100_000, "Silver"},
		{2_500_000, "Gold"},
		{10_000_000, "VIP"},
	}
	for _, tc := range cases {
		if got := TierFor(DefaultTiers, tc.volume); got.Name != tc.want {
			t.Errorf("TierFor(%v) = %s, want %s", tc.volume, got.Name, tc.want)
		}
	}
}

func TestEstimatorStaticFallback(t *testing.T) {
	e := NewNetworkEstimator("", time.Minute, time.Second, testLogger(t))
	cur := e.Current()
	if cur.Source != "static" {
		t.Fatalf("source = %q", cur.Source)
	}
	if e.SatVB(models.PriorityHigh) <= e.SatVB(models.PriorityLow) {
		t.Fatal("high priority not above low")
	}
	if e.SatVB("bogus") != cur.MediumSatVB {
		t.Fatal("unknown priority should fall back to medium")
	}
}

func TestEstimatorRemoteRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fastestFee":55,"halfHourFee":22,"hourFee":8}`))
	}))
	defer srv.Close()

	e := NewNetworkEstimator(srv.URL, time.Hour, time.Second, testLogger(t))
	e.refreshOnce(context.Background())

	cur := e.Current()
	if cur.Source != "remote" {
		t.Fatalf("source = %q", cur.Source)
	}
	if cur.HighSatVB != 55 || cur.MediumSatVB != 22 || cur.LowSatVB != 8 {
		t.Fatalf("rates = %+v", cur)
	}
}

func TestEstimatorKeepsLastOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewNetworkEstimator(srv.URL, time.Hour, time.Second, testLogger(t))
	before := e.Current()
	e.refreshOnce(context.Background())
	after := e.Current()
	if after != before {
		t.Fatalf("estimate changed on failed refresh: %+v", after)
	}
}

func TestCalculateBreakdown(t *testing.T) {
	est := NewNetworkEstimator("", time.Minute, time.Second, testLogger(t))
	eng := NewEngine(nil, est, stubPrices{"BTCUSDT": 64000}, 25)

	fb, err := eng.Calculate(models.FeeCalcRequest{
		Amount:   10_000,
		Venue:    "sim",
		Volume30: 150_000, // Silver: 40 bps
		Priority: "medium",
		TxVBytes: 140,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fb.FeeTier != "Silver" {
		t.Errorf("tier = %s", fb.FeeTier)
	}
	// 10000 * 40bps
	if !fb.VenueFee.Equal(decimal.NewFromInt(40)) {
		t.Errorf("venue fee = %s", fb.VenueFee)
	}
	// 10000 * 25bps
	if !fb.ServiceFee.Equal(decimal.NewFromInt(25)) {
		t.Errorf("service fee = %s", fb.ServiceFee)
	}
	// 15 sat/vB * 140 vB = 2100 sats = 0.000021 BTC * 64000 = 1.344
	if !fb.NetworkFee.Equal(decimal.NewFromFloat(1.344)) {
		t.Errorf("network fee = %s", fb.NetworkFee)
	}
	want := decimal.NewFromFloat(66.344)
	if !fb.Total.Equal(want) {
		t.Errorf("total = %s, want %s", fb.Total, want)
	}
	if !fb.EffectiveRate.Equal(want.Div(decimal.NewFromInt(10_000))) {
		t.Errorf("effective rate = %s", fb.EffectiveRate)
	}
}

func TestCalculateErrors(t *testing.T) {
	est := NewNetworkEstimator("", time.Minute, time.Second, testLogger(t))

	eng := NewEngine(nil, est, stubPrices{"BTCUSDT": 64000}, 25)
	if _, err := eng.Calculate(models.FeeCalcRequest{Amount: 0}); err == nil {
		t.Error("expected error for zero amount")
	}

	noPx := NewEngine(nil, est, stubPrices{}, 25)
	if _, err := noPx.Calculate(models.FeeCalcRequest{Amount: 100, TxVBytes: 140}); err == nil {
		t.Error("expected error without BTC price")
	}
}
