package analysis

import "CypherFeed/internal/domain/models"

// Pattern identifies a three-candle formation.
type Pattern string

const (
	PatternNone          Pattern = "none"
	PatternThreeSoldiers Pattern = "three_white_soldiers"
	PatternThreeCrows    Pattern = "three_black_crows"
	PatternMorningStar   Pattern = "morning_star"
	PatternEveningStar   Pattern = "evening_star"
)

// minBodyRatio is the body/range ratio a candle needs to count as decisive.
const minBodyRatio = 0.6

func body(c models.Candle) float64 {
	b := c.Close - c.Open
	if b < 0 {
		return -b
	}
	return b
}

func candleRange(c models.Candle) float64 { return c.High - c.Low }

func bullish(c models.Candle) bool { return c.Close > c.Open }
func bearish(c models.Candle) bool { return c.Close < c.Open }

func decisive(c models.Candle) bool {
	r := candleRange(c)
	return r > 0 && body(c)/r >= minBodyRatio
}

// small reports a candle whose body is under a third of its range (the star).
func small(c models.Candle) bool {
	r := candleRange(c)
	return r > 0 && body(c)/r < 1.0/3.0
}

// DetectPattern classifies the last three candles. Inputs shorter than
// three candles always return PatternNone.
func DetectPattern(candles []models.Candle) Pattern {
	if len(candles) < 3 {
		return PatternNone
	}
	a, b, c := candles[len(candles)-3], candles[len(candles)-2], candles[len(candles)-1]

	// three advancing candles with rising closes
	if bullish(a) && bullish(b) && bullish(c) &&
		decisive(a) && decisive(b) && decisive(c) &&
		b.Close > a.Close && c.Close > b.Close {
		return PatternThreeSoldiers
	}

	// three declining candles with falling closes
	if bearish(a) && bearish(b) && bearish(c) &&
		decisive(a) && decisive(b) && decisive(c) &&
		b.Close < a.Close && c.Close < b.Close {
		return PatternThreeCrows
	}

	// long down candle, small-bodied star, strong recovery past the midpoint
	if bearish(a) && decisive(a) && small(b) &&
		bullish(c) && decisive(c) && c.Close > (a.Open+a.Close)/2 {
		return PatternMorningStar
	}

	// long up candle, small-bodied star, strong drop below the midpoint
	if bullish(a) && decisive(a) && small(b) &&
		bearish(c) && decisive(c) && c.Close < (a.Open+a.Close)/2 {
		return PatternEveningStar
	}

	return PatternNone
}
