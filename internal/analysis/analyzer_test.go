package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketStructure/internal/cache"
	"MarketStructure/internal/collector"
	"MarketStructure/internal/model"
	"MarketStructure/internal/session"
)

var ny, _ = time.LoadLocation("America/New_York")

// fakeSource serves fixed bars per timeframe, filtered to the requested window.
type fakeSource struct {
	mu    sync.Mutex
	bars  map[model.Timeframe][]model.Bar
	err   error
	calls int
}

func (f *fakeSource) Bars(_ context.Context, symbol string, tf model.Timeframe, from, to time.Time, _ string) (*model.BarSeries, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Bar
	for _, b := range f.bars[tf] {
		if !b.Time.Before(from) && b.Time.Before(to) {
			out = append(out, b)
		}
	}
	return &model.BarSeries{Symbol: symbol, Timeframe: tf, Bars: out}, nil
}

func at(hh, mm int) time.Time {
	return time.Date(2025, 1, 15, hh, mm, 0, 0, ny)
}

func bar(t time.Time, tf model.Timeframe, o, h, l, c, v float64) model.Bar {
	return model.Bar{Time: t, Open: o, High: h, Low: l, Close: c, Volume: v, Timeframe: tf}
}

// orbMinuteBars trades inside 424.25-424.75 until 10:00, then holds above it.
func orbMinuteBars() []model.Bar {
	var bars []model.Bar
	for i := 0; i < 90; i++ {
		t := at(9, 30).Add(time.Duration(i) * time.Minute)
		if i < 30 {
			bars = append(bars, bar(t, model.TF1m, 424.5, 424.75, 424.25, 424.5, 2000))
		} else {
			bars = append(bars, bar(t, model.TF1m, 425.0, 425.3, 424.9, 425.0, 1000))
		}
	}
	return bars
}

func newTestAnalyzer(src BarSource, opts Options, now time.Time) *Analyzer {
	a := New(src, session.DefaultCalendar(), nil, opts)
	a.SetClock(func() time.Time { return now })
	return a
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"spy", "SPY", true},
		{" BRK.B ", "BRK.B", true},
		{"", "", false},
		{"1ABC", "1ABC", false},
		{"SPY;DROP", "SPY;DROP", false},
		{"ABCDEFGHIJK", "ABCDEFGHIJK", false},
	}
	for _, tt := range tests {
		got, err := NormalizeSymbol(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		if tt.ok {
			assert.NoError(t, err, tt.in)
		} else {
			assert.ErrorIs(t, err, model.ErrInvalidSymbol, tt.in)
		}
	}
}

func TestAnalyzer_InvalidSymbolSkipsFetch(t *testing.T) {
	src := &fakeSource{}
	a := newTestAnalyzer(src, Options{}, at(11, 0))

	res := a.VolumeProfile(context.Background(), "not a symbol", nil)
	assert.Equal(t, model.StatusError, res.Status)
	assert.Equal(t, model.KindInvalidSymbol, res.ErrorKind)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, 0, src.calls)
}

func TestAnalyzer_UpstreamFailureIsFatal(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	a := newTestAnalyzer(src, Options{}, at(11, 0))

	res := a.FVG(context.Background(), "SPY", nil)
	assert.Equal(t, model.StatusError, res.Status)
	assert.Equal(t, model.KindUpstreamFetch, res.ErrorKind)
	assert.Nil(t, res.Timeframes)
}

func TestVolumeProfile_PartialWhenTimeframeEmpty(t *testing.T) {
	src := &fakeSource{bars: map[model.Timeframe][]model.Bar{model.TF1m: orbMinuteBars()}}
	a := newTestAnalyzer(src, Options{}, at(11, 0))

	res := a.VolumeProfile(context.Background(), "spy", []model.Timeframe{model.TF1m, model.TF15m})
	require.Equal(t, model.StatusPartial, res.Status)
	assert.Equal(t, "SPY", res.Symbol)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, 425.0, res.CurrentPrice)

	ok := res.Timeframes[model.TF1m]
	require.True(t, ok.OK())
	assert.Equal(t, 90, ok.BarCount)
	assert.GreaterOrEqual(t, ok.Structure.ValueAreaHigh, ok.Structure.PointOfControl)
	assert.GreaterOrEqual(t, ok.Structure.PointOfControl, ok.Structure.ValueAreaLow)
	assert.GreaterOrEqual(t, ok.Structure.ValueAreaPercentage, 70.0)
	assert.Equal(t, 120000.0, ok.Structure.TotalVolume)

	empty := res.Timeframes[model.TF15m]
	assert.Equal(t, model.FrameInsufficientData, empty.Status)
	assert.Nil(t, empty.Structure)

	require.NotNil(t, res.Summary)
	assert.Equal(t, []model.Timeframe{model.TF1m}, res.Summary.Timeframes)
}

func TestVolumeProfile_AllEmptyIsError(t *testing.T) {
	a := newTestAnalyzer(&fakeSource{}, Options{}, at(11, 0))

	res := a.VolumeProfile(context.Background(), "SPY", []model.Timeframe{model.TF5m})
	assert.Equal(t, model.StatusError, res.Status)
	assert.Equal(t, model.KindInsufficientData, res.ErrorKind)
	assert.Nil(t, res.Summary)
}

func TestORB_BullishBreakout(t *testing.T) {
	src := &fakeSource{bars: map[model.Timeframe][]model.Bar{model.TF1m: orbMinuteBars()}}
	a := newTestAnalyzer(src, Options{}, at(11, 0))

	res := a.ORB(context.Background(), "SPY", nil)
	require.Equal(t, model.StatusSuccess, res.Status, res.Message)
	assert.Equal(t, "2025-01-15", res.TradingDate)
	assert.Equal(t, session.RegularHours, res.MarketSession)
	require.Len(t, res.Periods, 3)

	p := res.Periods["5min"]
	require.NotNil(t, p)
	assert.Equal(t, 424.75, p.ORBHigh)
	assert.Equal(t, 424.25, p.ORBLow)
	assert.Equal(t, 0.5, p.ORBRange)
	assert.True(t, p.BreakoutConfirmed)
	assert.Equal(t, model.BreakoutBullish, p.BreakoutType)
	assert.Equal(t, model.PositionAbove, p.Position)
	assert.Equal(t, 425.25, p.Targets["bull_1x"])
	assert.Contains(t, p.TargetsHit, "bull_0.5x")
	assert.Contains(t, p.TargetsHit, "bull_1x")
	assert.Equal(t, "09:30", p.StartTime)
	assert.Equal(t, "09:35", p.EndTime)

	require.NotNil(t, res.TradingBias)
	assert.Equal(t, model.BiasBullish, res.TradingBias.Bias)
	require.NotNil(t, res.Squeeze)
	assert.True(t, res.Squeeze.SqueezeDetected)
}

func TestORB_PeriodNotFormedIsPartial(t *testing.T) {
	src := &fakeSource{bars: map[model.Timeframe][]model.Bar{model.TF1m: orbMinuteBars()}}
	a := newTestAnalyzer(src, Options{}, at(9, 50))

	res := a.ORB(context.Background(), "SPY", []int{5, 30})
	require.Equal(t, model.StatusPartial, res.Status)
	assert.True(t, res.Periods["5min"].OK())
	assert.Equal(t, model.FrameInsufficientData, res.Periods["30min"].Status)
	assert.NotEmpty(t, res.Periods["30min"].Message)
}

func TestORB_IncrementalMatchesRecompute(t *testing.T) {
	src := &fakeSource{bars: map[model.Timeframe][]model.Bar{model.TF1m: orbMinuteBars()}}
	ctx := context.Background()

	inc := New(src, session.DefaultCalendar(), session.NewMemoryStore(), Options{StateMode: StateIncremental})
	for _, now := range []time.Time{at(9, 40), at(10, 1), at(10, 20), at(11, 0)} {
		now := now
		inc.SetClock(func() time.Time { return now })
		inc.ORB(ctx, "SPY", nil)
	}
	got := inc.ORB(ctx, "SPY", nil)

	want := newTestAnalyzer(src, Options{}, at(11, 0)).ORB(ctx, "SPY", nil)
	require.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Periods, got.Periods)
	assert.Equal(t, want.TradingBias, got.TradingBias)
	assert.Equal(t, want.Squeeze, got.Squeeze)
}

func gapBars() []model.Bar {
	tf := model.TF5m
	return []model.Bar{
		bar(at(9, 30), tf, 444.6, 445.00, 444.50, 444.9, 1000),
		bar(at(9, 35), tf, 444.9, 446.00, 444.90, 445.9, 3000),
		bar(at(9, 40), tf, 445.9, 446.00, 445.50, 445.8, 1500),
		bar(at(9, 45), tf, 445.4, 445.40, 445.10, 445.2, 1200),
		bar(at(9, 50), tf, 445.2, 445.60, 445.20, 445.3, 900),
	}
}

func TestFVG_DetectsAndTracksGap(t *testing.T) {
	src := &fakeSource{bars: map[model.Timeframe][]model.Bar{model.TF5m: gapBars()}}
	a := newTestAnalyzer(src, Options{}, at(10, 0))

	res := a.FVG(context.Background(), "SPY", []model.Timeframe{model.TF5m})
	require.Equal(t, model.StatusSuccess, res.Status, res.Message)

	f := res.Timeframes[model.TF5m]
	require.Equal(t, 1, f.Count)
	g := f.Gaps[0]
	assert.Equal(t, model.GapBullish, g.Type)
	assert.Equal(t, 445.0, g.Lower)
	assert.Equal(t, 445.5, g.Upper)
	assert.Equal(t, 2, g.Tests)
	assert.Equal(t, model.GapPartiallyFilled, g.Status)
	assert.InDelta(t, 0.6, g.FilledPercentage, 1e-9)
	assert.True(t, g.CurrentlyInside)
	assert.Equal(t, 20.0, g.AgeMinutes)

	st := res.Statistics[model.TF5m]
	assert.Equal(t, 1, st.TotalGaps)
	assert.Equal(t, 1, st.PartiallyFilled)

	require.NotNil(t, res.Nearest)
	require.Len(t, res.Nearest.Below, 1)
	assert.Equal(t, g.ID, res.Nearest.Below[0].GapID)
	assert.Empty(t, res.Nearest.Above)

	require.NotNil(t, res.MarketContext)
	assert.Equal(t, 446.0, res.MarketContext.IntradayHigh)
	assert.Equal(t, 444.5, res.MarketContext.IntradayLow)
	assert.Equal(t, 444.6, res.MarketContext.OpeningPrice)
	assert.Equal(t, 7600.0, res.MarketContext.VolumeToday)
}

func TestFVG_IncrementalMatchesRecompute(t *testing.T) {
	src := &fakeSource{bars: map[model.Timeframe][]model.Bar{model.TF5m: gapBars()}}
	ctx := context.Background()
	tfs := []model.Timeframe{model.TF5m}

	inc := New(src, session.DefaultCalendar(), session.NewMemoryStore(), Options{StateMode: StateIncremental})
	for _, now := range []time.Time{at(9, 45), at(9, 50), at(10, 0)} {
		now := now
		inc.SetClock(func() time.Time { return now })
		inc.FVG(ctx, "SPY", tfs)
	}
	got := inc.FVG(ctx, "SPY", tfs)
	want := newTestAnalyzer(src, Options{}, at(10, 0)).FVG(ctx, "SPY", tfs)

	require.Equal(t, want.Timeframes[model.TF5m].Count, got.Timeframes[model.TF5m].Count)
	for i, w := range want.Timeframes[model.TF5m].Gaps {
		g := got.Timeframes[model.TF5m].Gaps[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.Tests, g.Tests)
		assert.Equal(t, w.FilledPercentage, g.FilledPercentage)
		assert.Equal(t, w.Status, g.Status)
	}
	assert.Equal(t, want.Statistics, got.Statistics)
}

func TestZones_RanksAcrossSources(t *testing.T) {
	minute := orbMinuteBars()
	var daily []model.Bar
	for d := 2; d <= 14; d++ {
		day := time.Date(2025, 1, d, 0, 0, 0, 0, ny)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		daily = append(daily, bar(day, model.TF1d, 420, 426, 418, 423, 5e6))
	}
	src := &fakeSource{bars: map[model.Timeframe][]model.Bar{model.TF1m: minute, model.TF1d: daily}}
	a := newTestAnalyzer(src, Options{}, at(11, 0))

	res := a.Zones(context.Background(), "SPY", []model.Timeframe{model.TF1m, model.TF1d})
	require.Equal(t, model.StatusSuccess, res.Status, res.Message)
	assert.Equal(t, 425.0, res.CurrentPrice)

	f := res.Timeframes[model.TF1m]
	require.True(t, f.OK())
	require.NotEmpty(t, f.Zones)
	assert.Equal(t, 90, f.Context.Bars)
	assert.Greater(t, f.Context.CandidatesProvided, len(f.Zones)-1)

	var sawPrior bool
	for i, z := range f.Zones {
		if i > 0 {
			prev := f.Zones[i-1]
			assert.LessOrEqual(t, abs(prev.Distance), abs(z.Distance))
		}
		for _, s := range z.ContributingSources {
			if s == "prior_session" {
				sawPrior = true
			}
		}
	}
	assert.True(t, sawPrior)
}

func TestZones_DoesNotLeakIntoSessionFrames(t *testing.T) {
	var bars []model.Bar
	for d := 6; d <= 15; d++ {
		open := time.Date(2025, 1, d, 9, 30, 0, 0, ny)
		if open.Weekday() == time.Saturday || open.Weekday() == time.Sunday {
			continue
		}
		for i := 0; i < 12; i++ {
			bars = append(bars, bar(open.Add(time.Duration(i)*5*time.Minute), model.TF5m, 424.5, 425.0, 424.0, 424.6, 1000))
		}
	}
	fetcher := &collector.MockFetcher{Price: 424, Bars: map[model.Timeframe][]model.Bar{model.TF5m: bars}}
	coll := collector.NewCollector(fetcher, cache.NewMemory(time.Minute, time.Now), collector.DefaultOptions())
	a := newTestAnalyzer(coll, Options{}, at(11, 0))
	ctx := context.Background()
	tfs := []model.Timeframe{model.TF5m}

	before := a.VolumeProfile(ctx, "SPY", tfs)
	require.True(t, before.Timeframes[model.TF5m].OK(), before.Message)
	assert.Equal(t, 12, before.Timeframes[model.TF5m].BarCount)

	a.Zones(ctx, "SPY", tfs)

	after := a.VolumeProfile(ctx, "SPY", tfs)
	require.True(t, after.Timeframes[model.TF5m].OK(), after.Message)
	assert.Equal(t, 12, after.Timeframes[model.TF5m].BarCount)
	assert.Equal(t, before.Timeframes[model.TF5m].Structure, after.Timeframes[model.TF5m].Structure)
}

// pollBars holds inside 424.25-424.75 until 10:08, then closes above it on 10:08 and 10:09.
func pollBars() []model.Bar {
	var bars []model.Bar
	for i := 0; i < 40; i++ {
		t := at(9, 30).Add(time.Duration(i) * time.Minute)
		if i < 38 {
			bars = append(bars, bar(t, model.TF1m, 424.5, 424.75, 424.25, 424.5, 2000))
		} else {
			bars = append(bars, bar(t, model.TF1m, 424.8, 425.1, 424.8, 425.0, 1500))
		}
	}
	return bars
}

func TestORB_IncrementalIgnoresFormingBar(t *testing.T) {
	forming := bar(at(10, 10), model.TF1m, 425.0, 425.0, 424.4, 424.5, 300)
	done := bar(at(10, 10), model.TF1m, 425.0, 427.0, 424.4, 426.9, 2500)

	src := &fakeSource{bars: map[model.Timeframe][]model.Bar{model.TF1m: append(pollBars(), forming)}}
	ctx := context.Background()
	inc := New(src, session.DefaultCalendar(), session.NewMemoryStore(), Options{StateMode: StateIncremental})

	mid := at(10, 10).Add(30 * time.Second)
	inc.SetClock(func() time.Time { return mid })
	first := inc.ORB(ctx, "SPY", nil)
	require.True(t, first.Periods["5min"].OK(), first.Message)
	assert.Equal(t, 425.0, first.CurrentPrice)
	assert.False(t, first.Periods["5min"].BreakoutConfirmed)

	src.mu.Lock()
	src.bars[model.TF1m] = append(pollBars(), done)
	src.mu.Unlock()

	inc.SetClock(func() time.Time { return at(10, 11) })
	got := inc.ORB(ctx, "SPY", nil)
	want := newTestAnalyzer(src, Options{}, at(10, 11)).ORB(ctx, "SPY", nil)

	require.Equal(t, want.Status, got.Status)
	assert.Equal(t, 426.9, got.CurrentPrice)
	assert.Equal(t, want.Periods, got.Periods)
	p := got.Periods["5min"]
	assert.True(t, p.BreakoutConfirmed)
	assert.Equal(t, model.BreakoutBullish, p.BreakoutType)
	assert.Contains(t, p.TargetsHit, "bull_1x")
}

func TestCompleted_DropsFormingBars(t *testing.T) {
	r := &request{open: at(9, 30), close: at(16, 0), now: at(10, 10).Add(30 * time.Second)}
	minute := []model.Bar{
		bar(at(10, 8), model.TF1m, 1, 1, 1, 1, 1),
		bar(at(10, 9), model.TF1m, 1, 1, 1, 1, 1),
		bar(at(10, 10), model.TF1m, 1, 1, 1, 1, 1),
	}
	assert.Len(t, r.completed(model.TF1m, minute), 2)
	assert.Equal(t, at(10, 10), r.barBoundary(model.TF1m))
	assert.Equal(t, at(10, 0), r.barBoundary(model.TF15m))

	r.now = at(15, 45)
	hourly := []model.Bar{bar(at(14, 30), model.TF1h, 1, 1, 1, 1, 1), bar(at(15, 30), model.TF1h, 1, 1, 1, 1, 1)}
	assert.Len(t, r.completed(model.TF1h, hourly), 1)
	daily := []model.Bar{bar(time.Date(2025, 1, 15, 0, 0, 0, 0, ny), model.TF1d, 1, 1, 1, 1, 1)}
	assert.Empty(t, r.completed(model.TF1d, daily))

	r.now = at(16, 5)
	assert.Len(t, r.completed(model.TF1h, hourly), 2)
	assert.Len(t, r.completed(model.TF1d, daily), 1)
	assert.Equal(t, at(16, 0), r.barBoundary(model.TF1h))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
