// Package analysis composes the market structure tools into per-symbol requests.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"MarketStructure/internal/calculator"
	"MarketStructure/internal/fvg"
	"MarketStructure/internal/metrics"
	"MarketStructure/internal/model"
	"MarketStructure/internal/orb"
	"MarketStructure/internal/profile"
	"MarketStructure/internal/session"
	"MarketStructure/internal/zones"
)

// Tool names used in metrics, logs and recorded runs.
const (
	ToolVolumeProfile = "volume_profile"
	ToolZones         = "zones"
	ToolORB           = "orb"
	ToolFVG           = "fvg"
)

// State modes.
const (
	StateRecompute   = "recompute"
	StateIncremental = "incremental"
)

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// BarSource supplies bar series. collector.Collector implements it.
type BarSource interface {
	Bars(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time, date string) (*model.BarSeries, error)
}

// Options configures the analyzer. Zero fields take DefaultOptions values.
type Options struct {
	Timeframes     []model.Timeframe // volume profile and FVG
	ZoneTimeframes []model.Timeframe
	Profile        profile.Options
	Zones          zones.Options
	ORB            orb.Options
	FVG            fvg.Options
	TickSize       float64
	TickSizes      map[string]float64
	DailyLookback  int // daily bars read by 1d frames
	StateMode      string
}

// DefaultOptions analyzes 1m/5m/15m with zones on 1m/5m/1d, recomputing state on every request.
func DefaultOptions() Options {
	return Options{
		Timeframes:     []model.Timeframe{model.TF1m, model.TF5m, model.TF15m},
		ZoneTimeframes: []model.Timeframe{model.TF1m, model.TF5m, model.TF1d},
		Profile:        profile.DefaultOptions(),
		Zones:          zones.DefaultOptions(),
		ORB:            orb.DefaultOptions(),
		FVG:            fvg.DefaultOptions(),
		TickSize:       calculator.DefaultTick,
		DailyLookback:  30,
		StateMode:      StateRecompute,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.Timeframes) == 0 {
		o.Timeframes = d.Timeframes
	}
	if len(o.ZoneTimeframes) == 0 {
		o.ZoneTimeframes = d.ZoneTimeframes
	}
	if o.TickSize <= 0 {
		o.TickSize = d.TickSize
	}
	if o.DailyLookback < 2 {
		o.DailyLookback = d.DailyLookback
	}
	if o.StateMode == "" {
		o.StateMode = d.StateMode
	}
	return o
}

// Analyzer runs the four tools. It is safe for concurrent use: every request works on its own
// bar snapshots, and incremental state goes through the Store.
type Analyzer struct {
	source   BarSource
	cal      *session.Calendar
	store    session.Store
	opts     Options
	validate *validator.Validate
	now      func() time.Time
}

// New creates an Analyzer. store is only consulted in incremental mode; a nil store falls back
// to an in-memory one.
func New(source BarSource, cal *session.Calendar, store session.Store, opts Options) *Analyzer {
	opts = opts.withDefaults()
	if cal == nil {
		cal = session.DefaultCalendar()
	}
	if store == nil && opts.StateMode == StateIncremental {
		store = session.NewMemoryStore()
	}
	return &Analyzer{
		source:   source,
		cal:      cal,
		store:    store,
		opts:     opts,
		validate: validator.New(),
		now:      time.Now,
	}
}

// SetClock replaces the wall clock, for replaying a past session.
func (a *Analyzer) SetClock(now func() time.Time) { a.now = now }

// Calendar returns the session calendar requests are resolved against.
func (a *Analyzer) Calendar() *session.Calendar { return a.cal }

// Options returns the effective options.
func (a *Analyzer) Options() Options { return a.opts }

// NormalizeSymbol upper-cases symbol and checks it before any fetch.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(s) {
		return s, &model.AnalysisError{Kind: model.KindInvalidSymbol, Scope: symbol, Msg: "symbol must be 1-10 characters of A-Z, 0-9, '.' or '-'"}
	}
	return s, nil
}

func (a *Analyzer) tick(symbol string) float64 {
	if t, ok := a.opts.TickSizes[symbol]; ok && t > 0 {
		return t
	}
	return a.opts.TickSize
}

// request is the per-call context shared by the tool implementations.
type request struct {
	symbol  string
	tick    float64
	now     time.Time
	date    time.Time // trading date, midnight in the exchange zone
	dateKey string
	open    time.Time
	close   time.Time
	env     model.Envelope
	started time.Time
}

// begin validates the symbol and resolves the trading session. A non-nil error is already
// recorded in env.
func (a *Analyzer) begin(tool, symbol string) (*request, error) {
	now := a.now()
	r := &request{
		now:     now,
		started: time.Now(),
		env: model.Envelope{
			Symbol:    symbol,
			Status:    model.StatusSuccess,
			RequestID: uuid.NewString(),
			Timestamp: now.UTC(),
		},
	}
	sym, err := NormalizeSymbol(symbol)
	r.symbol = sym
	r.env.Symbol = sym
	if err != nil {
		fail(&r.env, err)
		a.observe(tool, r)
		return r, err
	}
	r.tick = a.tick(sym)
	r.date = a.cal.TradingDate(now)
	r.dateKey = a.cal.DateKey(r.date)
	r.open, r.close = a.cal.Window(r.date)
	return r, nil
}

// sessionEnd is the exclusive end of the bars visible now.
func (r *request) sessionEnd() time.Time {
	if r.now.Before(r.close) {
		return r.now
	}
	return r.close
}

// span returns the fetch window of tf. Intraday frames read the current session, or the last
// days sessions when days > 1; 1d frames read the configured daily lookback.
func (a *Analyzer) span(r *request, tf model.Timeframe, days int) (from, to time.Time) {
	if tf == model.TF1d {
		// calendar days covering DailyLookback sessions plus weekends and holidays
		from = r.date.AddDate(0, 0, -(a.opts.DailyLookback*7/5 + 7))
		return from, r.date.AddDate(0, 0, 1)
	}
	start := r.date
	for i := 1; i < days; i++ {
		start = a.cal.PreviousTradingDay(start)
	}
	from, _ = a.cal.Window(start)
	return from, r.barBoundary(tf)
}

// barBoundary is the end of the last tf bar completed by now, counted from the session open.
// It stays fixed while a bar forms, so repeated requests share a cache window.
func (r *request) barBoundary(tf model.Timeframe) time.Time {
	end := r.sessionEnd()
	if !r.now.Before(r.close) || !end.After(r.open) {
		return end
	}
	return r.open.Add(end.Sub(r.open).Truncate(tf.Duration()))
}

// completed drops tf bars still forming at now. A bar ends after its duration or at the
// session close, whichever comes first.
func (r *request) completed(tf model.Timeframe, bars []model.Bar) []model.Bar {
	n := len(bars)
	for n > 0 {
		b := bars[n-1]
		end := b.Time.Add(tf.Duration())
		if b.Time.Before(r.close) && end.After(r.close) {
			end = r.close
		}
		if !end.After(r.now) {
			break
		}
		n--
	}
	return bars[:n]
}

// fetch loads one series per timeframe in parallel. Any failure aborts the request.
func (a *Analyzer) fetch(ctx context.Context, r *request, tfs []model.Timeframe, days func(model.Timeframe) int) (map[model.Timeframe]*model.BarSeries, error) {
	out := make([]*model.BarSeries, len(tfs))
	g, ctx := errgroup.WithContext(ctx)
	for i, tf := range tfs {
		i, tf := i, tf
		g.Go(func() error {
			from, to := a.span(r, tf, days(tf))
			s, err := a.source.Bars(ctx, r.symbol, tf, from, to, r.dateKey)
			if err != nil {
				return err
			}
			s = s.Slice(r.completed(tf, s.Bars))
			if tf == model.TF1d {
				s = s.Slice(lastN(s.Bars, a.opts.DailyLookback))
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	series := make(map[model.Timeframe]*model.BarSeries, len(tfs))
	for i, tf := range tfs {
		series[tf] = out[i]
	}
	return series, nil
}

// compute runs fn for every timeframe in parallel. fn must only write its own result slot.
func compute(tfs []model.Timeframe, fn func(i int, tf model.Timeframe)) {
	var g errgroup.Group
	for i, tf := range tfs {
		i, tf := i, tf
		g.Go(func() error {
			fn(i, tf)
			return nil
		})
	}
	_ = g.Wait()
}

// finish aggregates frame outcomes into the envelope status, validates the result and records metrics.
func (a *Analyzer) finish(tool string, r *request, ok, total int, firstErr error, result interface{}) {
	switch {
	case r.env.Status == model.StatusError:
	case total > 0 && ok == 0:
		r.env.Status = model.StatusError
		r.env.ErrorKind = model.KindInsufficientData
		r.env.Message = "no timeframe produced a result"
		if firstErr != nil {
			r.env.ErrorKind = model.KindOf(firstErr)
			r.env.Message = firstErr.Error()
		}
	case ok < total:
		r.env.Status = model.StatusPartial
		r.env.Message = fmt.Sprintf("%d of %d completed", ok, total)
	}
	setEnvelope(result, r.env)
	if err := a.validate.Struct(result); err != nil {
		log.Error().Err(err).Str("tool", tool).Str("symbol", r.symbol).Msg("result failed validation")
		r.env.Status = model.StatusError
		r.env.ErrorKind = model.KindComputation
		r.env.Message = "result failed validation: " + err.Error()
		setEnvelope(result, r.env)
	}
	a.observe(tool, r)
}

func (a *Analyzer) observe(tool string, r *request) {
	metrics.ObserveAnalysis(tool, string(r.env.Status), r.started)
	ev := log.Debug()
	if r.env.Status == model.StatusError {
		ev = log.Warn().Str("error_kind", string(r.env.ErrorKind))
	}
	ev.Str("tool", tool).Str("symbol", r.env.Symbol).Str("status", string(r.env.Status)).
		Str("request_id", r.env.RequestID).Dur("took", time.Since(r.started)).Msg(r.env.Message)
}

func setEnvelope(result interface{}, env model.Envelope) {
	switch v := result.(type) {
	case *model.VolumeProfileResult:
		v.Envelope = env
	case *model.ZonesResult:
		v.Envelope = env
	case *model.ORBResult:
		v.Envelope = env
	case *model.FVGResult:
		v.Envelope = env
	}
}

// fetchFailed marks the whole request failed. Errors without a kind are upstream failures.
func fetchFailed(r *request, err error) {
	var ae *model.AnalysisError
	if !errors.As(err, &ae) {
		err = &model.AnalysisError{Kind: model.KindUpstreamFetch, Scope: r.symbol, Err: err}
	}
	fail(&r.env, err)
}

func fail(env *model.Envelope, err error) {
	env.Status = model.StatusError
	env.ErrorKind = model.KindOf(err)
	env.Message = err.Error()
}

// frameError turns a per-frame failure into a frame status.
func frameError(err error) model.Frame {
	st := model.FrameError
	if errors.Is(err, model.ErrInsufficientData) {
		st = model.FrameInsufficientData
	}
	return model.Frame{Status: st, Message: err.Error()}
}

// currentPrice is the last close of the finest non-empty series.
func currentPrice(series map[model.Timeframe]*model.BarSeries) float64 {
	tfs := make([]model.Timeframe, 0, len(series))
	for tf := range series {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Duration() < tfs[j].Duration() })
	for _, tf := range tfs {
		if last, ok := series[tf].Last(); ok {
			return last.Close
		}
	}
	return 0
}

// ParseTimeframes validates a list of timeframe labels, dropping duplicates.
func ParseTimeframes(labels []string) ([]model.Timeframe, error) {
	seen := map[model.Timeframe]bool{}
	var out []model.Timeframe
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		tf, err := model.ParseTimeframe(l)
		if err != nil {
			return nil, err
		}
		if !seen[tf] {
			seen[tf] = true
			out = append(out, tf)
		}
	}
	return out, nil
}

func lastN(bars []model.Bar, n int) []model.Bar {
	if n > 0 && len(bars) > n {
		return bars[len(bars)-n:]
	}
	return bars
}

func round(v, tick float64) float64 { return calculator.RoundToTick(v, tick) }
