package fvg

import (
	"math"
	"sort"

	"MarketStructure/internal/calculator"
	"MarketStructure/internal/model"
)

// Statistics summarizes the outcome of gaps on one timeframe.
func Statistics(gaps []*model.FairValueGap) model.GapStatistics {
	s := model.GapStatistics{TotalGaps: len(gaps)}
	if len(gaps) == 0 {
		return s
	}
	var fillMinutes, size float64
	for _, g := range gaps {
		size += g.Size
		switch g.Status {
		case model.GapFilled:
			s.Filled++
			if g.FilledAt != nil {
				fillMinutes += g.FilledAt.Sub(g.CreatedAt).Minutes()
			}
		case model.GapPartiallyFilled:
			s.PartiallyFilled++
		default:
			s.Open++
		}
	}
	s.FillRate = calculator.Round(float64(s.Filled)/float64(s.TotalGaps), 3)
	if s.Filled > 0 {
		s.AvgTimeToFillMinutes = calculator.Round(fillMinutes/float64(s.Filled), 1)
	}
	s.AvgGapSize = calculator.Round(size/float64(s.TotalGaps), 4)
	return s
}

// Nearest splits unfilled gaps by whether their midpoint is at or above price, sorted by
// distance then ID, keeping at most limit per side.
func Nearest(gaps []*model.FairValueGap, price float64, limit int) model.NearestGaps {
	out := model.NearestGaps{Above: []model.GapRef{}, Below: []model.GapRef{}}
	for _, g := range gaps {
		if g.Status == model.GapFilled {
			continue
		}
		ref := model.GapRef{
			GapID:            g.ID,
			Timeframe:        g.Timeframe,
			Type:             g.Type,
			Level:            g.Midpoint,
			Lower:            g.Lower,
			Upper:            g.Upper,
			Distance:         math.Abs(g.Midpoint - price),
			FilledPercentage: g.FilledPercentage,
			Status:           g.Status,
		}
		if g.Midpoint >= price {
			out.Above = append(out.Above, ref)
		} else {
			out.Below = append(out.Below, ref)
		}
	}
	out.Above = nearestFirst(out.Above, limit)
	out.Below = nearestFirst(out.Below, limit)
	return out
}

func nearestFirst(refs []model.GapRef, limit int) []model.GapRef {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Distance != refs[j].Distance {
			return refs[i].Distance < refs[j].Distance
		}
		return refs[i].GapID < refs[j].GapID
	})
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs
}

// NearestLimit is the per-side cap configured on d.
func (d *Detector) NearestLimit() int { return d.opts.NearestLimit }
