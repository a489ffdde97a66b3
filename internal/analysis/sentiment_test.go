package analysis

import (
	"math"
	"testing"
)

func TestSentimentScore(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  float64
	}{
		{"empty input", nil, 0},
		{"no keywords", []string{"the market opened today"}, 0},
		{"all bullish", []string{"BTC breakout, looking bullish"}, 1},
		{"all bearish", []string{"total crash and capitulation"}, -1},
		{"mixed", []string{"pump then dump"}, 0},
		{"case insensitive", []string{"MOON soon, RALLY incoming"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SentimentScore(tt.texts); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SentimentScore(%v) = %v, want %v", tt.texts, got, tt.want)
			}
		})
	}
}

func TestSentimentScoreWeighsCounts(t *testing.T) {
	// two bullish hits against one bearish hit
	got := SentimentScore([]string{"pump pump", "dump"})
	want := 1.0 / 3.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("SentimentScore = %v, want %v", got, want)
	}
}
