package analysis

import "strings"

var bullishWords = []string{
	"bull", "bullish", "pump", "moon", "breakout", "rally", "surge",
	"accumulate", "ath", "support", "buy",
}

var bearishWords = []string{
	"bear", "bearish", "dump", "crash", "breakdown", "selloff", "plunge",
	"capitulation", "resistance", "liquidation", "sell",
}

// SentimentScore counts bullish and bearish keyword hits across the given
// texts and returns a normalized score in [-1, 1]. Zero hits score 0.
func SentimentScore(texts []string) float64 {
	var pos, neg int
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, w := range bullishWords {
			pos += strings.Count(lower, w)
		}
		for _, w := range bearishWords {
			neg += strings.Count(lower, w)
		}
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total)
}
