package analysis

import (
	"testing"

	"CypherFeed/internal/domain/models"
)

// candle builds a bar whose high/low tightly wrap the body so the body
// ratio stays decisive.
func candle(open, close float64) models.Candle {
	high, low := open, close
	if close > open {
		high, low = close, open
	}
	return models.Candle{Open: open, High: high + 0.5, Low: low - 0.5, Close: close}
}

// star builds a bar with a tiny body inside a wide range.
func star(open, close float64) models.Candle {
	mid := (open + close) / 2
	return models.Candle{Open: open, High: mid + 5, Low: mid - 5, Close: close}
}

func TestDetectPattern(t *testing.T) {
	tests := []struct {
		name    string
		candles []models.Candle
		want    Pattern
	}{
		{
			"three white soldiers",
			[]models.Candle{candle(100, 105), candle(104, 110), candle(109, 116)},
			PatternThreeSoldiers,
		},
		{
			"three black crows",
			[]models.Candle{candle(116, 109), candle(110, 104), candle(105, 100)},
			PatternThreeCrows,
		},
		{
			"morning star",
			[]models.Candle{candle(110, 100), star(99, 99.5), candle(100, 109)},
			PatternMorningStar,
		},
		{
			"evening star",
			[]models.Candle{candle(100, 110), star(110.5, 110), candle(110, 101)},
			PatternEveningStar,
		},
		{
			"rising closes but indecisive bodies",
			[]models.Candle{
				{Open: 100, High: 110, Low: 95, Close: 101},
				{Open: 101, High: 112, Low: 96, Close: 102},
				{Open: 102, High: 114, Low: 97, Close: 103},
			},
			PatternNone,
		},
		{
			"mixed direction",
			[]models.Candle{candle(100, 105), candle(105, 102), candle(102, 104)},
			PatternNone,
		},
		{
			"too few candles",
			[]models.Candle{candle(100, 105), candle(104, 110)},
			PatternNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectPattern(tt.candles); got != tt.want {
				t.Errorf("DetectPattern() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectPatternUsesLastThree(t *testing.T) {
	candles := []models.Candle{
		candle(200, 150), // noise before the formation
		candle(100, 105), candle(104, 110), candle(109, 116),
	}
	if got := DetectPattern(candles); got != PatternThreeSoldiers {
		t.Errorf("DetectPattern() = %q, want %q", got, PatternThreeSoldiers)
	}
}
