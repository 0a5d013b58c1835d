package profile

import (
	"math"
	"sort"

	"MarketStructure/internal/calculator"
	"MarketStructure/internal/model"
)

// Summarize consolidates per-timeframe profiles. Nil profiles are skipped; it returns nil
// when nothing is left.
func Summarize(profiles map[model.Timeframe]*model.VolumeProfile, currentPrice, tick float64) *model.ProfileSummary {
	tfs := make([]model.Timeframe, 0, len(profiles))
	for tf, p := range profiles {
		if p != nil {
			tfs = append(tfs, tf)
		}
	}
	if len(tfs) == 0 {
		return nil
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Duration() < tfs[j].Duration() })

	s := &model.ProfileSummary{
		Timeframes:       tfs,
		PointsOfControl:  make(map[model.Timeframe]float64, len(tfs)),
		PriceInValueArea: []model.Timeframe{},
	}
	minPOC, maxPOC := math.Inf(1), math.Inf(-1)
	overlapLow, overlapHigh := math.Inf(-1), math.Inf(1)
	votes := map[model.Bias]int{}
	upside := 0.0

	for _, tf := range tfs {
		p := profiles[tf]
		poc := calculator.RoundToTick(p.PointOfControl, tick)
		s.PointsOfControl[tf] = poc
		minPOC = math.Min(minPOC, poc)
		maxPOC = math.Max(maxPOC, poc)
		overlapLow = math.Max(overlapLow, p.ValueAreaLow)
		overlapHigh = math.Min(overlapHigh, p.ValueAreaHigh)
		votes[p.Dynamics.Bias]++
		upside += p.Dynamics.UpsideProbability
		if currentPrice > 0 && p.InValueArea(currentPrice) {
			s.PriceInValueArea = append(s.PriceInValueArea, tf)
		}
	}

	s.POCSpread = calculator.RoundToTick(maxPOC-minPOC, tick)
	if overlapLow <= overlapHigh {
		s.HasOverlap = true
		s.OverlapLow = calculator.RoundToTick(overlapLow, tick)
		s.OverlapHigh = calculator.RoundToTick(overlapHigh, tick)
	}
	s.DominantBias = model.BiasNeutral
	switch {
	case votes[model.BiasBullish]*2 > len(tfs):
		s.DominantBias = model.BiasBullish
	case votes[model.BiasBearish]*2 > len(tfs):
		s.DominantBias = model.BiasBearish
	}
	s.MeanUpsideProbability = calculator.Round(upside/float64(len(tfs)), 1)
	return s
}
