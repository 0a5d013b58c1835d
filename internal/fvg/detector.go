// Package fvg detects three-bar fair value gaps and tracks how later bars fill them.
package fvg

import (
	"math"
	"time"

	"MarketStructure/internal/calculator"
	"MarketStructure/internal/model"
)

const filledThreshold = 0.99

// Options configures gap detection.
type Options struct {
	MinGapPct         float64 // minimum size as a percent of the gap midpoint; 0 keeps every gap
	AvgVolumeLookback int
	NearestLimit      int
}

// DefaultOptions keeps every gap and reports three nearest gaps per side.
func DefaultOptions() Options {
	return Options{AvgVolumeLookback: 20, NearestLimit: 3}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinGapPct < 0 {
		o.MinGapPct = 0
	}
	if o.AvgVolumeLookback <= 0 {
		o.AvgVolumeLookback = d.AvgVolumeLookback
	}
	if o.NearestLimit <= 0 {
		o.NearestLimit = d.NearestLimit
	}
	return o
}

// Detector scans bars for gaps. Gap state lives in the GapBook the caller passes in.
type Detector struct {
	opts Options
}

// NewDetector creates a Detector.
func NewDetector(opts Options) *Detector {
	return &Detector{opts: opts.withDefaults()}
}

// NewBook returns an empty gap book for one timeframe.
func (d *Detector) NewBook(key model.SessionKey, tf model.Timeframe) *model.GapBook {
	return &model.GapBook{Key: key, Timeframe: tf, Gaps: []*model.FairValueGap{}}
}

// Scan detects gaps over the whole series from scratch.
func (d *Detector) Scan(series *model.BarSeries) ([]*model.FairValueGap, error) {
	if series.Len() < 3 {
		scope := ""
		if series != nil {
			scope = string(series.Timeframe)
		}
		return nil, model.InsufficientData(scope, series.Len(), 3)
	}
	book := d.NewBook(model.SessionKey{Symbol: series.Symbol}, series.Timeframe)
	d.Update(book, series.Bars)
	return book.Gaps, nil
}

// Update feeds bars newer than book.LastBarTime through the book. Each bar first interacts
// with the gaps that already exist, then closes a three-bar window that may form a new gap.
func (d *Detector) Update(book *model.GapBook, bars []model.Bar) {
	for _, b := range bars {
		if !book.LastBarTime.IsZero() && !b.Time.After(book.LastBarTime) {
			continue
		}
		for _, g := range book.Gaps {
			Interact(g, b)
		}

		book.History = appendCapped(book.History, b, d.opts.AvgVolumeLookback)
		book.Tail = appendCapped(book.Tail, b, 3)
		if len(book.Tail) == 3 {
			if g := d.detect(book.Timeframe, book.Tail, calculator.AverageVolume(book.History, d.opts.AvgVolumeLookback)); g != nil {
				book.Gaps = append(book.Gaps, g)
			}
		}
		book.LastBarTime = b.Time
	}
}

func appendCapped(bars []model.Bar, b model.Bar, n int) []model.Bar {
	bars = append(bars, b)
	if len(bars) > n {
		bars = append([]model.Bar(nil), bars[len(bars)-n:]...)
	}
	return bars
}

// detect tests one three-bar window for a gap between bar1 and bar3.
func (d *Detector) detect(tf model.Timeframe, w []model.Bar, avgVolume float64) *model.FairValueGap {
	b1, b3 := w[0], w[2]
	var typ model.GapType
	var lower, upper float64
	switch {
	case b1.High < b3.Low:
		typ, lower, upper = model.GapBullish, b1.High, b3.Low
	case b1.Low > b3.High:
		typ, lower, upper = model.GapBearish, b3.High, b1.Low
	default:
		return nil
	}
	size := upper - lower
	mid := (upper + lower) / 2
	if d.opts.MinGapPct > 0 && size/mid*100 < d.opts.MinGapPct {
		return nil
	}
	g := &model.FairValueGap{
		ID:        GapID(tf, b3.Time),
		Type:      typ,
		Timeframe: tf,
		Lower:     lower,
		Upper:     upper,
		Midpoint:  mid,
		Size:      size,
		AvgVolume: avgVolume,
		CreatedAt: b3.Time,
		Status:    model.GapOpen,
	}
	for i, b := range w {
		g.FormationBars[i] = model.FormationBar{Time: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return g
}

// GapID is the timeframe and the RFC 3339 time of the third formation bar.
func GapID(tf model.Timeframe, bar3 time.Time) string {
	return string(tf) + "_" + bar3.UTC().Format(time.RFC3339)
}

// Interact applies one later bar to g. Filled gaps do not change; the fill fraction never decreases.
func Interact(g *model.FairValueGap, b model.Bar) {
	if g.Status == model.GapFilled || !b.Overlaps(g.Lower, g.Upper) {
		return
	}
	g.Tests++

	lo := math.Max(b.Low, g.Lower)
	hi := math.Min(b.High, g.Upper)
	if depth := hi - lo; depth > g.DeepestIntrusion {
		g.DeepestIntrusion = depth
	}
	if g.LowestTest == nil || lo < *g.LowestTest {
		v := lo
		g.LowestTest = &v
	}
	if g.HighestTest == nil || hi > *g.HighestTest {
		v := hi
		g.HighestTest = &v
	}

	filled := math.Min(math.Max(g.DeepestIntrusion/g.Size, 0), 1)
	if filled > g.FilledPercentage {
		g.FilledPercentage = filled
	}
	switch {
	case g.FilledPercentage >= filledThreshold:
		at := b.Time
		g.FilledPercentage = 1
		g.Status = model.GapFilled
		g.FilledAt = &at
	case g.FilledPercentage > 0:
		g.Status = model.GapPartiallyFilled
	}
}

// Annotate sets the fields that depend on the current price and time.
func Annotate(g *model.FairValueGap, price float64, now time.Time) {
	g.CurrentlyInside = g.Status != model.GapFilled && g.Contains(price)
	if !now.IsZero() && now.After(g.CreatedAt) {
		g.AgeMinutes = calculator.Round(now.Sub(g.CreatedAt).Minutes(), 1)
	}
}
