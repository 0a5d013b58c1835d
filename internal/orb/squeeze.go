package orb

import (
	"sort"

	"MarketStructure/internal/calculator"
	"MarketStructure/internal/model"
)

// Squeeze compares opening-range widths across periods. Longer windows normally produce wider
// ranges; a squeeze is flagged when a longer period has a narrower range than a shorter one, or
// when the shortest range is at least SqueezeRatio of the longest.
func (t *Tracker) Squeeze(states map[int]*model.ORBState) model.SqueezeAssessment {
	periods := make([]int, 0, len(states))
	for p, st := range states {
		if st != nil {
			periods = append(periods, p)
		}
	}
	sort.Ints(periods)
	if len(periods) < 2 {
		return model.SqueezeAssessment{Interpretation: "Insufficient ORB periods for squeeze detection"}
	}

	a := model.SqueezeAssessment{RangeProgression: make(map[string]float64, len(periods))}
	for i, p := range periods {
		r := states[p].Range
		a.RangeProgression[PeriodKey(p)] = calculator.Round(r, 2)
		if i > 0 && r < states[periods[i-1]].Range {
			a.Inverted = true
		}
	}
	shortest := states[periods[0]].Range
	longest := states[periods[len(periods)-1]].Range
	a.CompressionRatio = 1
	if longest > 0 {
		a.CompressionRatio = calculator.Round(shortest/longest, 3)
	}

	a.SqueezeDetected = a.Inverted || a.CompressionRatio >= t.opts.SqueezeRatio
	switch {
	case a.Inverted:
		a.Interpretation = "Range progression inverted: later ranges narrower, potential explosive move ahead"
	case a.SqueezeDetected:
		a.Interpretation = "Opening ranges compressed: potential explosive move ahead"
	default:
		a.Interpretation = "Normal range expansion"
	}
	return a
}
