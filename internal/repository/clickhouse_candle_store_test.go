package repository

import (
	"strings"
	"testing"

	domrepo "CypherFeed/internal/domain/repository"
)

func TestRangeQueryPerTimeframe(t *testing.T) {
	q, table, err := rangeQueryForTF(domrepo.TF1s)
	if err != nil {
		t.Fatal(err)
	}
	if table != "cypherfeed.rt_candles_1s" || !strings.Contains(q, table) {
		t.Errorf("1s table = %q", table)
	}

	q, table, err = rangeQueryForTF(domrepo.TF1m)
	if err != nil {
		t.Fatal(err)
	}
	if table != "cypherfeed.rt_candles_1m" {
		t.Errorf("1m table = %q", table)
	}
	if strings.Contains(q, "GROUP BY") {
		t.Error("1m query must read rows as stored")
	}

	if _, _, err := rangeQueryForTF(domrepo.Timeframe("1h")); err == nil {
		t.Error("unsupported timeframe accepted")
	}
}

func TestFiveMinuteQueriesRollUpFromOneMinute(t *testing.T) {
	for name, fn := range map[string]func(domrepo.Timeframe) (string, string, error){
		"range":  rangeQueryForTF,
		"latest": latestQueryForTF,
	} {
		q, table, err := fn(domrepo.TF5m)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if table != "cypherfeed.rt_candles_1m" {
			t.Errorf("%s: source table = %q", name, table)
		}
		for _, want := range []string{
			"toStartOfFiveMinutes(bucket)",
			"argMin(open, bucket)",
			"argMax(close, bucket)",
			"max(high)",
			"min(low)",
			"sum(vol)",
			"GROUP BY",
		} {
			if !strings.Contains(q, want) {
				t.Errorf("%s: query missing %q", name, want)
			}
		}
	}
	q, _, _ := latestQueryForTF(domrepo.TF5m)
	if !strings.Contains(q, "LIMIT ?") {
		t.Error("latest query missing limit")
	}
}
