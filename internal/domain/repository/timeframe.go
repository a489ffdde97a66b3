package repository

var supportedTimeframes = map[Timeframe]struct{}{
	TF1s: {},
	TF1m: {},
	TF5m: {},
}

// IsValidTimeframe reports whether tf names a supported candle bucket.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := supportedTimeframes[tf]
	return ok
}

// DefaultTimeframe is the bucket used when the caller does not pick one.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe maps a raw query value onto a supported timeframe,
// falling back to the default for blank or unknown input.
func NormalizeTimeframe(s string) Timeframe {
	if tf := Timeframe(s); IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}
