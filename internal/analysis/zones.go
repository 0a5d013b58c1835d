package analysis

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"MarketStructure/internal/model"
	"MarketStructure/internal/profile"
	"MarketStructure/internal/zones"
)

// zoneLookbackDays is how many sessions each intraday zone frame reads.
var zoneLookbackDays = map[model.Timeframe]int{
	model.TF1m:  1,
	model.TF5m:  5,
	model.TF15m: 5,
	model.TF30m: 10,
	model.TF1h:  10,
}

func zoneDays(tf model.Timeframe) int {
	if d, ok := zoneLookbackDays[tf]; ok {
		return d
	}
	return 1
}

// Zones ranks confluence zones per timeframe from the volume profile, Fibonacci levels,
// the prior session and ATR bands. tfs defaults to the configured zone timeframes.
func (a *Analyzer) Zones(ctx context.Context, symbol string, tfs []model.Timeframe) *model.ZonesResult {
	res := &model.ZonesResult{}
	r, err := a.begin(ToolZones, symbol)
	if err != nil {
		res.Envelope = r.env
		return res
	}
	if len(tfs) == 0 {
		tfs = a.opts.ZoneTimeframes
	}

	series, err := a.fetch(ctx, r, tfs, zoneDays)
	if err != nil {
		fetchFailed(r, err)
		res.Envelope = r.env
		a.observe(ToolZones, r)
		return res
	}
	price := currentPrice(series)
	res.CurrentPrice = round(price, r.tick)

	prior, priorWarn := a.priorSession(ctx, r, series[model.TF1d])

	popts := a.opts.Profile
	popts.TickSize = r.tick
	builder := profile.NewBuilder(popts)
	zopts := a.opts.Zones
	zopts.TickSize = r.tick
	agg := zones.NewAggregator(zopts)

	frames := make([]*model.ZonesFrame, len(tfs))
	errs := make([]error, len(tfs))
	compute(tfs, func(i int, tf model.Timeframe) {
		s := series[tf]
		from, to := a.span(r, tf, zoneDays(tf))
		f := &model.ZonesFrame{
			Context: model.CalculationContext{
				BarsInterval:  tf,
				Bars:          s.Len(),
				LookbackStart: from.UTC(),
				LookbackEnd:   to.UTC(),
				Tolerance:     round(agg.Tolerance(price), r.tick),
			},
			Zones: []model.Zone{},
		}
		f.BarCount = s.Len()
		frames[i] = f
		if s.Len() == 0 {
			errs[i] = model.InsufficientData(string(tf), 0, 1)
			f.Frame = frameError(errs[i])
			return
		}
		last, _ := s.Last()
		f.Context.LookbackStart = s.Bars[0].Time.UTC()
		f.Context.LookbackEnd = last.Time.UTC()

		var warnings []string
		p, err := builder.Build(s)
		if err != nil {
			warnings = append(warnings, "volume profile skipped: "+err.Error())
			p = nil
		} else {
			warnings = append(warnings, p.Warnings...)
		}
		in := zones.Inputs{Profile: p, Bars: s.Bars}
		if tf != model.TF1d {
			if prior != nil {
				in.PriorSession = prior
			} else if priorWarn != "" {
				warnings = append(warnings, priorWarn)
			}
		}
		cands, skipped := zones.Candidates(in, zopts)
		warnings = append(warnings, skipped...)
		f.Context.CandidatesProvided = len(cands)
		f.Zones = agg.Aggregate(cands, price)
		f.Status = model.FrameSuccess
		f.Warnings = warnings
	})

	res.Timeframes = make(map[model.Timeframe]*model.ZonesFrame, len(tfs))
	ok := 0
	var firstErr error
	for i, tf := range tfs {
		res.Timeframes[tf] = frames[i]
		if frames[i].OK() {
			ok++
		} else if firstErr == nil {
			firstErr = errs[i]
		}
	}
	a.finish(ToolZones, r, ok, len(tfs), firstErr, res)
	return res
}

// priorSession returns the last completed daily bar before the trading date. A failure only
// costs the prior-session source, so it is reported as a warning.
func (a *Analyzer) priorSession(ctx context.Context, r *request, daily *model.BarSeries) (*model.Bar, string) {
	if daily == nil {
		from := r.date.AddDate(0, 0, -10)
		s, err := a.source.Bars(ctx, r.symbol, model.TF1d, from, r.date.AddDate(0, 0, 1), r.dateKey)
		if err != nil {
			log.Warn().Err(err).Str("symbol", r.symbol).Msg("prior session fetch failed")
			return nil, "prior session skipped: " + err.Error()
		}
		daily = s
	}
	for i := daily.Len() - 1; i >= 0; i-- {
		b := daily.Bars[i]
		if a.cal.DateKey(b.Time) < r.dateKey {
			return &b, ""
		}
	}
	return nil, fmt.Sprintf("prior session skipped: no daily bar before %s", r.dateKey)
}
