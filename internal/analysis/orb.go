package analysis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"MarketStructure/internal/model"
	"MarketStructure/internal/orb"
)

// ORB reports the opening ranges of the current trading session with breakout state, targets,
// squeeze and trading bias. periods defaults to the configured periods.
func (a *Analyzer) ORB(ctx context.Context, symbol string, periods []int) *model.ORBResult {
	res, _ := a.orbSession(ctx, symbol, periods)
	return res
}

// ORBStates is ORB plus the raw per-period states, for callers that diff successive polls.
func (a *Analyzer) ORBStates(ctx context.Context, symbol string, periods []int) (*model.ORBResult, map[int]*model.ORBState) {
	return a.orbSession(ctx, symbol, periods)
}

func (a *Analyzer) orbSession(ctx context.Context, symbol string, periods []int) (*model.ORBResult, map[int]*model.ORBState) {
	res := &model.ORBResult{}
	r, err := a.begin(ToolORB, symbol)
	if err != nil {
		res.Envelope = r.env
		return res, nil
	}
	opts := a.opts.ORB
	if len(periods) > 0 {
		opts.Periods = periods
	}
	tracker := orb.NewTracker(opts)
	res.TradingDate = r.dateKey
	res.MarketSession = a.cal.Status(r.now)

	series, err := a.fetch(ctx, r, []model.Timeframe{model.TF1m}, sessionDays)
	if err != nil {
		fetchFailed(r, err)
		res.Envelope = r.env
		a.observe(ToolORB, r)
		return res, nil
	}
	bars := series[model.TF1m].Bars
	if last, ok := series[model.TF1m].Last(); ok {
		res.CurrentPrice = round(last.Close, r.tick)
	}

	w := orb.Window{Open: r.open, Close: r.close}
	key := model.SessionKey{Symbol: r.symbol, Date: r.dateKey, Scope: orbScope(tracker.Periods())}
	sess, errs := a.advanceORB(ctx, tracker, key, bars, w, r.now)

	res.Periods = make(map[string]*model.ORBPeriod, len(tracker.Periods()))
	ok := 0
	var firstErr error
	for _, p := range tracker.Periods() {
		k := orb.PeriodKey(p)
		if st, formed := sess.States[p]; formed {
			res.Periods[k] = orbPeriod(st, r.tick, a.cal.Location())
			ok++
			continue
		}
		err := errs[p]
		if err == nil {
			err = model.InsufficientData(k, 0, 1)
		}
		if firstErr == nil {
			firstErr = err
		}
		res.Periods[k] = &model.ORBPeriod{Frame: frameError(err), TargetsHit: []string{}}
	}

	if ok > 0 {
		bias := tracker.Bias(sess.States)
		res.TradingBias = &bias
		sq := tracker.Squeeze(sess.States)
		res.Squeeze = &sq
	}
	a.finish(ToolORB, r, ok, len(tracker.Periods()), firstErr, res)
	return res, sess.States
}

// advanceORB recomputes the session from bars, or in incremental mode loads the stored
// session and feeds it only the new bars.
func (a *Analyzer) advanceORB(ctx context.Context, tracker *orb.Tracker, key model.SessionKey, bars []model.Bar, w orb.Window, now time.Time) (*model.ORBSession, map[int]error) {
	if a.opts.StateMode != StateIncremental {
		sess := tracker.NewSession(key)
		return sess, tracker.Update(sess, bars, w, time.Minute, now)
	}

	sess, found, err := a.store.LoadORB(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("load orb state failed, recomputing")
		found = false
	}
	if found && len(bars) > 0 && bars[len(bars)-1].Time.Before(sess.LastBarTime) {
		log.Warn().Str("key", key.String()).Msg("stored orb state is ahead of the bars, discarding")
		found = false
	}
	if !found {
		sess = tracker.NewSession(key)
	}
	errs := tracker.Update(sess, bars, w, time.Minute, now)
	if err := a.store.SaveORB(ctx, sess); err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("save orb state failed")
	}
	return sess, errs
}

func orbScope(periods []int) string {
	parts := make([]string, len(periods))
	for i, p := range periods {
		parts[i] = strconv.Itoa(p)
	}
	return "orb:" + strings.Join(parts, ",")
}

func orbPeriod(st *model.ORBState, tick float64, loc *time.Location) *model.ORBPeriod {
	p := &model.ORBPeriod{
		Frame:                model.Frame{Status: model.FrameSuccess, BarCount: st.SessionBars},
		ORBHigh:              round(st.High, tick),
		ORBLow:               round(st.Low, tick),
		ORBRange:             round(st.Range, tick),
		ORBMidpoint:          round(st.Midpoint, tick),
		CurrentPrice:         round(st.LastPrice, tick),
		Position:             st.Position,
		DistanceFromRangePct: orb.DistanceFromRangePct(st),
		BreakoutConfirmed:    st.BreakoutConfirmed,
		BreakoutType:         st.BreakoutType,
		ConsecutiveBars:      st.ConsecutiveBarsBeyond,
		Targets:              make(map[string]float64, len(st.Targets)),
		TargetsHit:           append([]string{}, st.TargetsHit...),
		StartTime:            st.StartTime.In(loc).Format("15:04"),
		EndTime:              st.EndTime.In(loc).Format("15:04"),
	}
	vol := st.Volume
	p.VolumeAnalysis = &vol
	for _, t := range st.Targets {
		p.Targets[t.Label] = round(t.Price, tick)
	}
	return p
}
