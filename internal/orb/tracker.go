// Package orb tracks opening-range breakouts for a regular trading session.
package orb

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"MarketStructure/internal/calculator"
	"MarketStructure/internal/model"
)

// Options configures the tracker.
type Options struct {
	Periods         []int // minutes after the open
	ConfirmBars     int
	TargetMultiples []float64
	HighVolumeRatio float64
	SqueezeRatio    float64
}

// DefaultOptions tracks 5/15/30 minute ranges with 3-bar confirmation.
func DefaultOptions() Options {
	return Options{
		Periods:         []int{5, 15, 30},
		ConfirmBars:     3,
		TargetMultiples: []float64{0.5, 1, 1.5, 2},
		HighVolumeRatio: 1.2,
		SqueezeRatio:    0.8,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.Periods) == 0 {
		o.Periods = d.Periods
	}
	if o.ConfirmBars <= 0 {
		o.ConfirmBars = d.ConfirmBars
	}
	if len(o.TargetMultiples) == 0 {
		o.TargetMultiples = d.TargetMultiples
	}
	if o.HighVolumeRatio <= 0 {
		o.HighVolumeRatio = d.HighVolumeRatio
	}
	if o.SqueezeRatio <= 0 {
		o.SqueezeRatio = d.SqueezeRatio
	}
	periods := append([]int(nil), o.Periods...)
	sort.Ints(periods)
	o.Periods = periods
	return o
}

// Window is one regular-hours session.
type Window struct {
	Open  time.Time
	Close time.Time
}

// Tracker builds and advances ORBState values. It keeps no state of its own; the caller owns
// the session value passed to Update.
type Tracker struct {
	opts Options
}

// NewTracker creates a Tracker.
func NewTracker(opts Options) *Tracker {
	return &Tracker{opts: opts.withDefaults()}
}

// Periods returns the configured periods in ascending order.
func (t *Tracker) Periods() []int { return t.opts.Periods }

// PeriodKey is the label used for a period in results, e.g. "15min".
func PeriodKey(period int) string { return strconv.Itoa(period) + "min" }

// NewSession returns an empty session with every configured period pending.
func (t *Tracker) NewSession(key model.SessionKey) *model.ORBSession {
	return &model.ORBSession{
		Key:     key,
		States:  make(map[int]*model.ORBState, len(t.opts.Periods)),
		Pending: append([]int(nil), t.opts.Periods...),
	}
}

// Update forms any pending opening ranges and advances formed ones with bars newer than
// each state's last processed bar. bars must be the session's bars in ascending order.
// The returned map holds the reason each still-pending period could not form.
func (t *Tracker) Update(sess *model.ORBSession, bars []model.Bar, w Window, barDur time.Duration, now time.Time) map[int]error {
	errs := make(map[int]error)
	var pending []int
	for _, p := range sess.Pending {
		st, err := t.open(sess.Key.Symbol, p, bars, w, barDur)
		if err != nil {
			errs[p] = err
			pending = append(pending, p)
			continue
		}
		sess.States[p] = st
	}
	sess.Pending = pending

	for _, st := range sess.States {
		t.advance(st, bars)
		if !now.Before(st.SessionClose) {
			st.Closed = true
		}
	}
	if n := len(bars); n > 0 && bars[n-1].Time.After(sess.LastBarTime) {
		sess.LastBarTime = bars[n-1].Time
	}
	sess.UpdatedAt = now
	return errs
}

// open forms the opening range of period from bars in [open, open+period). It requires
// full coverage of the window and at least one regular-hours bar after it.
func (t *Tracker) open(symbol string, period int, bars []model.Bar, w Window, barDur time.Duration) (*model.ORBState, error) {
	scope := PeriodKey(period)
	if barDur <= 0 {
		return nil, &model.AnalysisError{Kind: model.KindComputation, Scope: scope, Msg: "bar duration must be positive"}
	}
	start := w.Open
	end := start.Add(time.Duration(period) * time.Minute)
	need := int((time.Duration(period)*time.Minute + barDur - 1) / barDur)

	var rangeBars []model.Bar
	post := false
	for _, b := range bars {
		switch {
		case b.Time.Before(start):
		case b.Time.Before(end):
			rangeBars = append(rangeBars, b)
		case b.Time.Before(w.Close):
			post = true
		}
	}
	if len(rangeBars) < need {
		return nil, &model.AnalysisError{
			Kind:  model.KindInsufficientData,
			Scope: scope,
			Msg:   fmt.Sprintf("need %d minutes of data, only have %d bars", period, len(rangeBars)),
		}
	}
	if !post {
		return nil, &model.AnalysisError{
			Kind:  model.KindInsufficientData,
			Scope: scope,
			Msg:   "opening range has formed but no bar has closed after it",
		}
	}

	high, low, _ := calculator.HighLow(rangeBars)
	rng := high - low
	last := rangeBars[len(rangeBars)-1]
	orbVolume := calculator.TotalVolume(rangeBars)

	st := &model.ORBState{
		Symbol:           symbol,
		Period:           period,
		High:             high,
		Low:              low,
		Range:            rng,
		Midpoint:         (high + low) / 2,
		StartTime:        start,
		EndTime:          end,
		SessionClose:     w.Close,
		PendingDirection: model.BreakoutNone,
		BreakoutType:     model.BreakoutNone,
		TargetsHit:       []string{},
		LastPrice:        last.Close,
		LastBarTime:      last.Time,
		SessionVolume:    orbVolume,
		SessionBars:      len(rangeBars),
		Volume: model.ORBVolume{
			ORBTotalVolume:     orbVolume,
			ORBAvgVolumePerBar: orbVolume / float64(len(rangeBars)),
		},
	}
	for _, k := range t.opts.TargetMultiples {
		st.Targets = append(st.Targets, model.Target{Label: targetLabel(bullPrefix, k), Price: high + k*rng})
	}
	for _, k := range t.opts.TargetMultiples {
		st.Targets = append(st.Targets, model.Target{Label: targetLabel(bearPrefix, k), Price: low - k*rng})
	}
	st.Position = position(st, st.LastPrice)
	t.refreshVolume(st)
	return st, nil
}

const (
	bullPrefix = "bull_"
	bearPrefix = "bear_"
)

func targetLabel(prefix string, k float64) string {
	return prefix + strconv.FormatFloat(k, 'f', -1, 64) + "x"
}

// advance applies bars after st.LastBarTime. A closed state is never modified.
func (t *Tracker) advance(st *model.ORBState, bars []model.Bar) {
	if st.Closed {
		return
	}
	for _, b := range bars {
		if !b.Time.After(st.LastBarTime) {
			continue
		}
		if !b.Time.Before(st.SessionClose) {
			st.Closed = true
			break
		}
		st.SessionVolume += b.Volume
		st.SessionBars++

		dir := direction(st, b.Close)
		switch {
		case dir == model.BreakoutNone:
			st.ConsecutiveBarsBeyond = 0
			st.PendingDirection = model.BreakoutNone
		case dir == st.PendingDirection:
			st.ConsecutiveBarsBeyond++
		default:
			st.PendingDirection = dir
			st.ConsecutiveBarsBeyond = 1
		}
		if !st.BreakoutConfirmed && st.ConsecutiveBarsBeyond >= t.opts.ConfirmBars {
			at := b.Time
			st.BreakoutConfirmed = true
			st.BreakoutType = dir
			st.ConfirmedAt = &at
		}

		for _, tg := range st.Targets {
			if st.HasHit(tg.Label) {
				continue
			}
			bull := strings.HasPrefix(tg.Label, bullPrefix)
			if (bull && b.High >= tg.Price) || (!bull && b.Low <= tg.Price) {
				st.TargetsHit = append(st.TargetsHit, tg.Label)
			}
		}

		st.LastPrice = b.Close
		st.LastBarTime = b.Time
		st.Position = position(st, b.Close)
	}
	t.refreshVolume(st)
}

func (t *Tracker) refreshVolume(st *model.ORBState) {
	if st.SessionBars == 0 {
		return
	}
	st.Volume.SessionAvgPerBar = st.SessionVolume / float64(st.SessionBars)
	if st.Volume.SessionAvgPerBar > 0 {
		st.Volume.VolumeRatioVsDayAvg = calculator.Round(st.Volume.ORBAvgVolumePerBar/st.Volume.SessionAvgPerBar, 2)
	}
	st.Volume.HighVolume = st.Volume.VolumeRatioVsDayAvg > t.opts.HighVolumeRatio
}

func direction(st *model.ORBState, close float64) model.BreakoutType {
	switch {
	case close > st.High:
		return model.BreakoutBullish
	case close < st.Low:
		return model.BreakoutBearish
	default:
		return model.BreakoutNone
	}
}

func position(st *model.ORBState, price float64) model.RangePosition {
	switch direction(st, price) {
	case model.BreakoutBullish:
		return model.PositionAbove
	case model.BreakoutBearish:
		return model.PositionBelow
	default:
		return model.PositionInside
	}
}

// DistanceFromRangePct is the percent distance of the last price beyond the range edge it broke.
func DistanceFromRangePct(st *model.ORBState) float64 {
	switch st.Position {
	case model.PositionAbove:
		return calculator.Round((st.LastPrice-st.High)/st.High*100, 2)
	case model.PositionBelow:
		return calculator.Round((st.LastPrice-st.Low)/st.Low*100, 2)
	default:
		return 0
	}
}
