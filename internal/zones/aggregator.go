// Package zones merges price levels from several sources into ranked confluence zones.
package zones

import (
	"math"
	"sort"

	"MarketStructure/internal/calculator"
	"MarketStructure/internal/model"
)

// Options configures candidate generation and merging.
type Options struct {
	TolerancePct float64
	TickSize     float64
	BonusBase    float64
	FibLookback  int
	ATRPeriod    int
}

// DefaultOptions merges within 0.1% of price and awards 10 points for the first extra source.
func DefaultOptions() Options {
	return Options{
		TolerancePct: 0.001,
		TickSize:     calculator.DefaultTick,
		BonusBase:    10,
		FibLookback:  50,
		ATRPeriod:    calculator.DefaultATRPeriod,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TolerancePct <= 0 {
		o.TolerancePct = d.TolerancePct
	}
	if o.TickSize <= 0 {
		o.TickSize = d.TickSize
	}
	if o.BonusBase <= 0 {
		o.BonusBase = d.BonusBase
	}
	if o.FibLookback <= 0 {
		o.FibLookback = d.FibLookback
	}
	if o.ATRPeriod <= 0 {
		o.ATRPeriod = d.ATRPeriod
	}
	return o
}

// Aggregator clusters candidates into zones relative to a current price.
type Aggregator struct {
	opts Options
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{opts: opts.withDefaults()}
}

// Tolerance is the merge distance at price: the larger of TolerancePct and one tick.
func (a *Aggregator) Tolerance(price float64) float64 {
	return math.Max(price*a.opts.TolerancePct, a.opts.TickSize)
}

// Aggregate merges candidates lying within tolerance of each cluster's first (lowest) member
// and returns zones ordered by absolute distance from current, then by level.
func (a *Aggregator) Aggregate(cands []model.Candidate, current float64) []model.Zone {
	if len(cands) == 0 {
		return []model.Zone{}
	}
	sorted := make([]model.Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	tol := a.Tolerance(current)
	var zones []model.Zone
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i].Price-sorted[start].Price <= tol {
			continue
		}
		zones = append(zones, a.merge(sorted[start:i], current, tol))
		start = i
	}

	sort.SliceStable(zones, func(i, j int) bool {
		di, dj := math.Abs(zones[i].Distance), math.Abs(zones[j].Distance)
		if di != dj {
			return di < dj
		}
		return zones[i].Level < zones[j].Level
	})
	return zones
}

func (a *Aggregator) merge(members []model.Candidate, current, tol float64) model.Zone {
	best := members[0]
	low, high := members[0].Low, members[0].High
	var weighted, weights float64
	isTarget := false
	seen := map[string]bool{}
	sources := []string{}
	names := make([]string, 0, len(members))

	for _, m := range members {
		if m.Confidence > best.Confidence {
			best = m
		}
		low = math.Min(low, m.Low)
		high = math.Max(high, m.High)
		w := math.Max(m.Confidence, 1)
		weighted += m.Price * w
		weights += w
		if m.Kind == model.CandidateTarget {
			isTarget = true
		}
		if !seen[m.Source] {
			seen[m.Source] = true
			sources = append(sources, m.Source)
		}
		names = append(names, m.Name)
	}
	sort.Strings(sources)

	confidence := best.Confidence
	for k := 1; k < len(sources); k++ {
		confidence += a.opts.BonusBase * math.Pow(0.5, float64(k-1))
	}
	confidence = math.Min(calculator.Round(confidence, 1), 100)

	tick := a.opts.TickSize
	level := calculator.RoundToTick(weighted/weights, tick)
	z := model.Zone{
		Level:               level,
		RangeLow:            calculator.RoundToTick(low, tick),
		RangeHigh:           calculator.RoundToTick(high, tick),
		Confidence:          confidence,
		Strength:            strength(confidence),
		Source:              best.Source,
		ContributingSources: sources,
		Names:               names,
		Distance:            calculator.RoundToTick(level-current, tick),
	}
	switch {
	case isTarget:
		z.Type = model.ZoneTarget
	case (current >= low && current <= high) || math.Abs(level-current) <= tol:
		z.Type = model.ZoneNeutral
	case level < current:
		z.Type = model.ZoneSupport
	default:
		z.Type = model.ZoneResistance
	}
	return z
}

func strength(confidence float64) model.Strength {
	switch {
	case confidence >= 80:
		return model.StrengthStrong
	case confidence >= 50:
		return model.StrengthModerate
	default:
		return model.StrengthWeak
	}
}
