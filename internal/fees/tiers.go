package fees

// Tier is one taker-fee level keyed by 30-day traded volume.
type Tier struct {
	Name      string  `json:"name"`
	Threshold float64 `json:"threshold"` // min 30-day volume in quote units
	TakerBps  float64 `json:"taker_bps"`
}

// DefaultTiers is the built-in volume schedule, highest threshold last.
var DefaultTiers = []Tier{
	{Name: "Regular", Threshold: 0, TakerBps: 60},
	{Name: "Silver", Threshold: 100_000, TakerBps: 40},
	{Name: "Gold", Threshold: 1_000_000, TakerBps: 25},
	{Name: "VIP", Threshold: 10_000_000, TakerBps: 10},
}

// TierFor returns the applicable tier for a 30-day volume.
func TierFor(tiers []Tier, volume30 float64) Tier {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	best := tiers[0]
	for _, t := range tiers[1:] {
		if volume30 >= t.Threshold && t.Threshold >= best.Threshold {
			best = t
		}
	}
	return best
}
