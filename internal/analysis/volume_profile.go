package analysis

import (
	"context"

	"MarketStructure/internal/calculator"
	"MarketStructure/internal/model"
	"MarketStructure/internal/profile"
)

// VolumeProfile builds a profile per timeframe from the current session's bars and a
// cross-timeframe summary. tfs defaults to the configured timeframes.
func (a *Analyzer) VolumeProfile(ctx context.Context, symbol string, tfs []model.Timeframe) *model.VolumeProfileResult {
	res := &model.VolumeProfileResult{}
	r, err := a.begin(ToolVolumeProfile, symbol)
	if err != nil {
		res.Envelope = r.env
		return res
	}
	if len(tfs) == 0 {
		tfs = a.opts.Timeframes
	}

	series, err := a.fetch(ctx, r, tfs, sessionDays)
	if err != nil {
		fetchFailed(r, err)
		res.Envelope = r.env
		a.observe(ToolVolumeProfile, r)
		return res
	}
	res.CurrentPrice = round(currentPrice(series), r.tick)

	opts := a.opts.Profile
	opts.TickSize = r.tick
	builder := profile.NewBuilder(opts)

	frames := make([]*model.VolumeProfileFrame, len(tfs))
	profiles := make([]*model.VolumeProfile, len(tfs))
	errs := make([]error, len(tfs))
	compute(tfs, func(i int, tf model.Timeframe) {
		s := series[tf]
		p, err := builder.Build(s)
		if err != nil {
			errs[i] = err
			f := &model.VolumeProfileFrame{Frame: frameError(err)}
			f.BarCount = s.Len()
			frames[i] = f
			return
		}
		profiles[i] = p
		frames[i] = profileFrame(p, s.Len(), r.tick)
	})

	res.Timeframes = make(map[model.Timeframe]*model.VolumeProfileFrame, len(tfs))
	built := make(map[model.Timeframe]*model.VolumeProfile, len(tfs))
	ok := 0
	var firstErr error
	for i, tf := range tfs {
		res.Timeframes[tf] = frames[i]
		if profiles[i] != nil {
			built[tf] = profiles[i]
			ok++
		} else if firstErr == nil {
			firstErr = errs[i]
		}
	}
	res.Summary = profile.Summarize(built, res.CurrentPrice, r.tick)

	a.finish(ToolVolumeProfile, r, ok, len(tfs), firstErr, res)
	return res
}

func profileFrame(p *model.VolumeProfile, bars int, tick float64) *model.VolumeProfileFrame {
	s := &model.VolumeProfileStructure{
		PointOfControl:      round(p.PointOfControl, tick),
		ValueAreaHigh:       round(p.ValueAreaHigh, tick),
		ValueAreaLow:        round(p.ValueAreaLow, tick),
		HighVolumeNodes:     roundBins(p.HighVolumeNodes, tick),
		LowVolumeNodes:      roundBins(p.LowVolumeNodes, tick),
		BinWidth:            calculator.Round(p.BinWidth, 6),
		BinCount:            len(p.Bins),
		TotalVolume:         p.TotalVolume,
		ValueAreaVolume:     calculator.Round(p.ValueAreaVolume, 2),
		ValueAreaPercentage: calculator.Round(p.ValueAreaFraction()*100, 2),
	}
	d := p.Dynamics
	d.FirstHalfVWAP = round(d.FirstHalfVWAP, tick)
	d.SecondHalfVWAP = round(d.SecondHalfVWAP, tick)
	d.VolumeAbovePOC = calculator.Round(d.VolumeAbovePOC, 2)
	d.VolumeBelowPOC = calculator.Round(d.VolumeBelowPOC, 2)
	return &model.VolumeProfileFrame{
		Frame:     model.Frame{Status: model.FrameSuccess, Warnings: p.Warnings, BarCount: bars},
		Structure: s,
		Dynamics:  &d,
	}
}

func roundBins(bins []model.PriceBin, tick float64) []model.PriceBin {
	out := make([]model.PriceBin, len(bins))
	for i, b := range bins {
		out[i] = model.PriceBin{
			PriceLow:  round(b.PriceLow, tick),
			PriceHigh: round(b.PriceHigh, tick),
			Volume:    calculator.Round(b.Volume, 2),
		}
	}
	return out
}

// sessionDays reads one session for every intraday frame.
func sessionDays(model.Timeframe) int { return 1 }
