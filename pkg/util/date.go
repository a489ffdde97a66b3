package util

import (
	"strconv"
	"time"
)

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339}

// ParseTime accepts RFC3339 (with or without fractional seconds) or
// unix seconds. The second return reports whether parsing succeeded.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

var timeframeSteps = map[string]time.Duration{
	"1s": time.Second,
	"1m": time.Minute,
	"5m": 5 * time.Minute,
}

// AlignFromTo truncates both ends of a range to the timeframe's bucket
// boundary. Unknown timeframes align to the minute.
func AlignFromTo(from, to time.Time, tf string) (time.Time, time.Time) {
	step, ok := timeframeSteps[tf]
	if !ok {
		step = time.Minute
	}
	return from.Truncate(step), to.Truncate(step)
}
