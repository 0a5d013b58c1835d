// Package profile builds volume-at-price distributions from bar series.
package profile

import (
	"math"

	"MarketStructure/internal/calculator"
	"MarketStructure/internal/model"
)

const (
	maxAutoBins    = 200
	atrBinFraction = 0.25
)

// Options tunes profile construction. Zero fields take DefaultOptions values.
type Options struct {
	BinCount      int     // 0 derives the count from tick size and ATR
	TickSize      float64
	ValueAreaPct  float64
	HVNMultiplier float64
	LVNFraction   float64
}

// DefaultOptions returns the standard 70% value area with 1.5x / 0.5x node thresholds.
func DefaultOptions() Options {
	return Options{
		TickSize:      calculator.DefaultTick,
		ValueAreaPct:  0.70,
		HVNMultiplier: 1.5,
		LVNFraction:   0.5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TickSize <= 0 {
		o.TickSize = d.TickSize
	}
	if o.ValueAreaPct <= 0 || o.ValueAreaPct > 1 {
		o.ValueAreaPct = d.ValueAreaPct
	}
	if o.HVNMultiplier <= 0 {
		o.HVNMultiplier = d.HVNMultiplier
	}
	if o.LVNFraction <= 0 {
		o.LVNFraction = d.LVNFraction
	}
	return o
}

// Builder turns a BarSeries into a VolumeProfile. It holds no state between calls.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts.withDefaults()}
}

// Build computes the volume profile of series. An empty series fails with InsufficientData.
func (b *Builder) Build(series *model.BarSeries) (*model.VolumeProfile, error) {
	if series.Len() == 0 {
		scope := ""
		if series != nil {
			scope = string(series.Timeframe)
		}
		return nil, model.InsufficientData(scope, 0, 1)
	}
	bars := series.Bars
	high, low, err := calculator.HighLow(bars)
	if err != nil {
		return nil, err
	}
	vwap := calculator.VWAP(bars)

	if len(bars) == 1 || high == low {
		return b.singleBin(bars, high, low, vwap), nil
	}

	n := b.binCount(bars, high, low)
	width := (high - low) / float64(n)
	bins := make([]model.PriceBin, n)
	for i := range bins {
		bins[i].PriceLow = low + float64(i)*width
		bins[i].PriceHigh = low + float64(i+1)*width
	}
	bins[n-1].PriceHigh = high

	total := 0.0
	for _, bar := range bars {
		distribute(bins, low, width, bar)
		total += bar.Volume
	}

	p := &model.VolumeProfile{
		Bins:        bins,
		BinWidth:    width,
		TotalVolume: total,
		VWAP:        vwap,
	}
	p.POCIndex = pointOfControl(bins, vwap)
	p.PointOfControl = bins[p.POCIndex].Mid()
	p.ValueAreaFrom, p.ValueAreaTo, p.ValueAreaVolume = valueArea(bins, p.POCIndex, total, b.opts.ValueAreaPct)
	p.ValueAreaLow = bins[p.ValueAreaFrom].PriceLow
	p.ValueAreaHigh = bins[p.ValueAreaTo].PriceHigh
	p.HighVolumeNodes, p.LowVolumeNodes = volumeNodes(bins, total, b.opts.HVNMultiplier, b.opts.LVNFraction)
	p.Dynamics = dynamics(bars, bins, p.POCIndex)
	return p, nil
}

// singleBin is the fallback for a single bar or a zero-width price range.
func (b *Builder) singleBin(bars []model.Bar, high, low, vwap float64) *model.VolumeProfile {
	price := low
	if len(bars) == 1 {
		price = bars[0].TypicalPrice()
	}
	total := calculator.TotalVolume(bars)
	warning := "degenerate price range: collapsed to a single bin"
	if len(bars) == 1 {
		warning = "single bar: collapsed to a single bin"
	}
	p := &model.VolumeProfile{
		Bins:            []model.PriceBin{{PriceLow: low, PriceHigh: high, Volume: total}},
		BinWidth:        high - low,
		PointOfControl:  price,
		ValueAreaHigh:   price,
		ValueAreaLow:    price,
		TotalVolume:     total,
		ValueAreaVolume: total,
		VWAP:            vwap,
		Warnings:        []string{warning},
	}
	p.Dynamics = dynamics(bars, p.Bins, 0)
	return p
}

func (b *Builder) binCount(bars []model.Bar, high, low float64) int {
	if b.opts.BinCount > 0 {
		return b.opts.BinCount
	}
	unit := b.opts.TickSize
	span := calculator.AverageRange(bars)
	if atr, err := calculator.ATR(bars, calculator.DefaultATRPeriod); err == nil && atr > 0 {
		span = atr
	}
	if span*atrBinFraction > unit {
		unit = span * atrBinFraction
	}
	n := int(math.Ceil((high - low) / unit))
	if n < 1 {
		n = 1
	}
	if n > maxAutoBins {
		n = maxAutoBins
	}
	return n
}

func binIndex(price, low, width float64, n int) int {
	i := int(math.Floor((price - low) / width))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// distribute spreads a bar's volume across the bins its range spans, proportional to overlap.
// The last spanned bin receives the remainder so the bar's volume is conserved exactly.
func distribute(bins []model.PriceBin, low, width float64, bar model.Bar) {
	if bar.Volume == 0 {
		return
	}
	first := binIndex(bar.Low, low, width, len(bins))
	last := binIndex(bar.High, low, width, len(bins))
	if last > first && bins[last].PriceLow >= bar.High {
		last--
	}
	span := bar.High - bar.Low
	if first == last || span <= 0 {
		bins[first].Volume += bar.Volume
		return
	}
	assigned := 0.0
	for i := first; i < last; i++ {
		overlap := math.Min(bar.High, bins[i].PriceHigh) - math.Max(bar.Low, bins[i].PriceLow)
		if overlap <= 0 {
			continue
		}
		v := bar.Volume * overlap / span
		bins[i].Volume += v
		assigned += v
	}
	bins[last].Volume += bar.Volume - assigned
}

// pointOfControl picks the max-volume bin; ties go to the bin nearest vwap, then the lower bin.
func pointOfControl(bins []model.PriceBin, vwap float64) int {
	best := 0
	for i := 1; i < len(bins); i++ {
		switch {
		case bins[i].Volume > bins[best].Volume:
			best = i
		case bins[i].Volume == bins[best].Volume:
			if math.Abs(bins[i].Mid()-vwap) < math.Abs(bins[best].Mid()-vwap) {
				best = i
			}
		}
	}
	return best
}

// valueArea grows the claimed range outward from poc until it holds pct of total volume.
func valueArea(bins []model.PriceBin, poc int, total, pct float64) (from, to int, claimed float64) {
	from, to = poc, poc
	claimed = bins[poc].Volume
	target := total * pct
	for claimed < target && (from > 0 || to < len(bins)-1) {
		below, above := from-1, to+1
		takeAbove := false
		switch {
		case below < 0:
			takeAbove = true
		case above >= len(bins):
			takeAbove = false
		case bins[above].Volume != bins[below].Volume:
			takeAbove = bins[above].Volume > bins[below].Volume
		default:
			takeAbove = above-poc < poc-below
		}
		if takeAbove {
			to = above
			claimed += bins[above].Volume
		} else {
			from = below
			claimed += bins[below].Volume
		}
	}
	return from, to, claimed
}

func volumeNodes(bins []model.PriceBin, total, hvnMult, lvnFrac float64) (hvn, lvn []model.PriceBin) {
	mean := total / float64(len(bins))
	hvn = []model.PriceBin{}
	lvn = []model.PriceBin{}
	for _, bin := range bins {
		switch {
		case bin.Volume > mean*hvnMult:
			hvn = append(hvn, bin)
		case bin.Volume < mean*lvnFrac:
			lvn = append(lvn, bin)
		}
	}
	return hvn, lvn
}
