package analysis

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"MarketStructure/internal/calculator"
	"MarketStructure/internal/fvg"
	"MarketStructure/internal/model"
)

// FVG detects fair value gaps per timeframe over the current session and reports fill
// statistics, the nearest unfilled gaps and the session context. tfs defaults to the
// configured timeframes.
func (a *Analyzer) FVG(ctx context.Context, symbol string, tfs []model.Timeframe) *model.FVGResult {
	res, _ := a.fvgSession(ctx, symbol, tfs)
	return res
}

// FVGGaps is FVG plus the unrounded gaps per timeframe, for callers that diff successive polls.
func (a *Analyzer) FVGGaps(ctx context.Context, symbol string, tfs []model.Timeframe) (*model.FVGResult, map[model.Timeframe][]*model.FairValueGap) {
	return a.fvgSession(ctx, symbol, tfs)
}

func (a *Analyzer) fvgSession(ctx context.Context, symbol string, tfs []model.Timeframe) (*model.FVGResult, map[model.Timeframe][]*model.FairValueGap) {
	res := &model.FVGResult{}
	r, err := a.begin(ToolFVG, symbol)
	if err != nil {
		res.Envelope = r.env
		return res, nil
	}
	if len(tfs) == 0 {
		tfs = a.opts.Timeframes
	}

	series, err := a.fetch(ctx, r, tfs, sessionDays)
	if err != nil {
		fetchFailed(r, err)
		res.Envelope = r.env
		a.observe(ToolFVG, r)
		return res, nil
	}
	price := currentPrice(series)
	res.CurrentPrice = round(price, r.tick)
	det := fvg.NewDetector(a.opts.FVG)

	gapsByTF := make([][]*model.FairValueGap, len(tfs))
	errs := make([]error, len(tfs))
	compute(tfs, func(i int, tf model.Timeframe) {
		gapsByTF[i], errs[i] = a.detectGaps(ctx, det, r, series[tf])
	})

	res.Timeframes = make(map[model.Timeframe]*model.FVGFrame, len(tfs))
	res.Statistics = make(map[model.Timeframe]model.GapStatistics, len(tfs))
	raw := make(map[model.Timeframe][]*model.FairValueGap, len(tfs))
	var all []*model.FairValueGap
	ok := 0
	var firstErr error
	for i, tf := range tfs {
		if errs[i] != nil {
			f := &model.FVGFrame{Frame: frameError(errs[i]), Gaps: []model.FairValueGap{}}
			f.BarCount = series[tf].Len()
			res.Timeframes[tf] = f
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		ok++
		gaps := gapsByTF[i]
		raw[tf] = gaps
		all = append(all, gaps...)
		out := make([]model.FairValueGap, len(gaps))
		for j, g := range gaps {
			out[j] = emitGap(g, price, r.now, r.tick)
		}
		res.Timeframes[tf] = &model.FVGFrame{
			Frame: model.Frame{Status: model.FrameSuccess, BarCount: series[tf].Len()},
			Count: len(out),
			Gaps:  out,
		}
		res.Statistics[tf] = fvg.Statistics(gaps)
	}

	near := fvg.Nearest(all, price, det.NearestLimit())
	roundRefs(near.Above, r.tick)
	roundRefs(near.Below, r.tick)
	res.Nearest = &near
	res.MarketContext = a.marketContext(r, series)

	a.finish(ToolFVG, r, ok, len(tfs), firstErr, res)
	return res, raw
}

// detectGaps scans the series, or in incremental mode advances the stored gap book for
// intraday timeframes.
func (a *Analyzer) detectGaps(ctx context.Context, det *fvg.Detector, r *request, s *model.BarSeries) ([]*model.FairValueGap, error) {
	if s.Len() < 3 {
		return nil, model.InsufficientData(string(s.Timeframe), s.Len(), 3)
	}
	if a.opts.StateMode != StateIncremental || !s.Timeframe.Intraday() {
		return det.Scan(s)
	}

	key := model.SessionKey{Symbol: r.symbol, Date: r.dateKey, Scope: string(s.Timeframe)}
	book, found, err := a.store.LoadGaps(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("load gap book failed, rescanning")
		found = false
	}
	if last, _ := s.Last(); found && last.Time.Before(book.LastBarTime) {
		log.Warn().Str("key", key.String()).Msg("stored gap book is ahead of the bars, discarding")
		found = false
	}
	if !found {
		book = det.NewBook(key, s.Timeframe)
	}
	det.Update(book, s.Bars)
	book.UpdatedAt = r.now
	if err := a.store.SaveGaps(ctx, book); err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("save gap book failed")
	}
	return book.Gaps, nil
}

// emitGap copies g with prices rounded to tick and the price- and time-dependent fields set.
func emitGap(g *model.FairValueGap, price float64, now time.Time, tick float64) model.FairValueGap {
	out := *g
	fvg.Annotate(&out, price, now)
	out.Lower = round(g.Lower, tick)
	out.Upper = round(g.Upper, tick)
	out.Midpoint = round(g.Midpoint, tick)
	out.Size = round(g.Size, tick)
	out.DeepestIntrusion = round(g.DeepestIntrusion, tick)
	out.FilledPercentage = calculator.Round(g.FilledPercentage, 4)
	out.AvgVolume = calculator.Round(g.AvgVolume, 2)
	if g.LowestTest != nil {
		v := round(*g.LowestTest, tick)
		out.LowestTest = &v
	}
	if g.HighestTest != nil {
		v := round(*g.HighestTest, tick)
		out.HighestTest = &v
	}
	return out
}

func roundRefs(refs []model.GapRef, tick float64) {
	for i := range refs {
		refs[i].Level = round(refs[i].Level, tick)
		refs[i].Lower = round(refs[i].Lower, tick)
		refs[i].Upper = round(refs[i].Upper, tick)
		refs[i].Distance = round(refs[i].Distance, tick)
		refs[i].FilledPercentage = calculator.Round(refs[i].FilledPercentage, 4)
	}
}

// marketContext describes today's regular session from the finest intraday series.
func (a *Analyzer) marketContext(r *request, series map[model.Timeframe]*model.BarSeries) *model.MarketContext {
	mc := &model.MarketContext{Session: a.cal.Status(r.now)}
	var finest *model.BarSeries
	for tf, s := range series {
		if !tf.Intraday() || s.Len() == 0 {
			continue
		}
		if finest == nil || tf.Duration() < finest.Timeframe.Duration() {
			finest = s
		}
	}
	if finest == nil {
		return mc
	}
	bars := finest.Between(r.open, r.close)
	if len(bars) == 0 {
		return mc
	}
	high, low, _ := calculator.HighLow(bars)
	mc.IntradayHigh = round(high, r.tick)
	mc.IntradayLow = round(low, r.tick)
	mc.OpeningPrice = round(bars[0].Open, r.tick)
	mc.VolumeToday = calculator.TotalVolume(bars)
	mc.AvgVolumePerBar = calculator.Round(mc.VolumeToday/float64(len(bars)), 2)
	return mc
}
