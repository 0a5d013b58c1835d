package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketStructure/internal/cache"
	"MarketStructure/internal/model"
)

var ny, _ = time.LoadLocation("America/New_York")

func minuteBars(start time.Time, n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		p := 100 + float64(i)*0.1
		bars[i] = model.Bar{
			Time: start.Add(time.Duration(i) * time.Minute), Open: p, High: p + 0.2, Low: p - 0.2,
			Close: p + 0.05, Volume: 100, Timeframe: model.TF1m,
		}
	}
	return bars
}

// partialFetcher fails every timeframe listed in fail and delegates the rest.
type partialFetcher struct {
	inner *MockFetcher
	fail  map[model.Timeframe]error
}

func (p *partialFetcher) Name() string { return "partial" }

func (p *partialFetcher) FetchBars(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Bar, error) {
	if err, ok := p.fail[tf]; ok {
		return nil, err
	}
	return p.inner.FetchBars(ctx, symbol, tf, from, to)
}

func TestCollector_CachesSeries(t *testing.T) {
	start := time.Date(2025, 1, 15, 9, 30, 0, 0, ny)
	mock := &MockFetcher{Bars: map[model.Timeframe][]model.Bar{model.TF1m: minuteBars(start, 30)}}
	c := NewCollector(mock, cache.NewMemory(time.Minute, time.Now), DefaultOptions())

	ctx := context.Background()
	first, err := c.Bars(ctx, "SPY", model.TF1m, start, start.Add(time.Hour), "2025-01-15")
	require.NoError(t, err)
	assert.Equal(t, 30, first.Len())

	second, err := c.Bars(ctx, "SPY", model.TF1m, start, start.Add(time.Hour), "2025-01-15")
	require.NoError(t, err)
	assert.Equal(t, first.Bars, second.Bars)
	assert.Equal(t, 1, mock.Calls)
}

func TestCollector_ResamplesWhenTimeframeFails(t *testing.T) {
	start := time.Date(2025, 1, 15, 9, 30, 0, 0, ny)
	f := &partialFetcher{
		inner: &MockFetcher{Bars: map[model.Timeframe][]model.Bar{model.TF1m: minuteBars(start, 30)}},
		fail:  map[model.Timeframe]error{model.TF5m: errors.New("interval unavailable")},
	}
	c := NewCollector(f, nil, DefaultOptions())

	series, err := c.Bars(context.Background(), "SPY", model.TF5m, start, start.Add(time.Hour), "2025-01-15")
	require.NoError(t, err)
	require.Equal(t, 6, series.Len())
	assert.Equal(t, model.TF5m, series.Bars[0].Timeframe)
	assert.Equal(t, 500.0, series.Bars[0].Volume)
	assert.True(t, series.Bars[1].Time.Equal(start.Add(5*time.Minute)))
}

func TestCollector_UpstreamFailureKind(t *testing.T) {
	mock := &MockFetcher{Err: errors.New("connection reset")}
	c := NewCollector(mock, nil, Options{Resample: false})

	now := time.Now()
	_, err := c.Bars(context.Background(), "SPY", model.TF5m, now.Add(-time.Hour), now, "2025-01-15")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUpstreamFetch)
	assert.Equal(t, model.KindUpstreamFetch, model.KindOf(err))
}

func TestCollector_InvalidSymbolSkipsFallback(t *testing.T) {
	f := &partialFetcher{
		inner: &MockFetcher{},
		fail: map[model.Timeframe]error{
			model.TF5m: &model.AnalysisError{Kind: model.KindInvalidSymbol, Scope: "ZZZZ"},
		},
	}
	c := NewCollector(f, nil, DefaultOptions())

	now := time.Now()
	_, err := c.Bars(context.Background(), "ZZZZ", model.TF5m, now.Add(-time.Hour), now, "2025-01-15")
	require.Error(t, err)
	assert.Equal(t, model.KindInvalidSymbol, model.KindOf(err))
	assert.Equal(t, 0, f.inner.Calls)
}

func TestCollector_BreakerOpensAfterFailures(t *testing.T) {
	mock := &MockFetcher{Err: errors.New("503")}
	c := NewCollector(mock, nil, Options{BreakerFailures: 2, BreakerTimeout: time.Minute})

	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 2; i++ {
		_, err := c.Bars(ctx, "SPY", model.TF1m, now.Add(-time.Hour), now, "d")
		require.Error(t, err)
	}
	_, err := c.Bars(ctx, "SPY", model.TF1m, now.Add(-time.Hour), now, "d")
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, mock.Calls)
}

func TestCollector_RejectsMalformedBars(t *testing.T) {
	start := time.Date(2025, 1, 15, 9, 30, 0, 0, ny)
	bars := minuteBars(start, 3)
	bars[1].High = bars[1].Low - 1
	mock := &MockFetcher{Bars: map[model.Timeframe][]model.Bar{model.TF1m: bars}}
	c := NewCollector(mock, nil, DefaultOptions())

	_, err := c.Bars(context.Background(), "SPY", model.TF1m, start, start.Add(time.Hour), "d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed bars")
}

func TestMockFetcher_Deterministic(t *testing.T) {
	m := &MockFetcher{Price: 450}
	from := time.Date(2025, 1, 15, 9, 30, 0, 0, ny)
	to := from.Add(2 * time.Hour)

	a, err := m.FetchBars(context.Background(), "SPY", model.TF5m, from, to)
	require.NoError(t, err)
	b, err := m.FetchBars(context.Background(), "SPY", model.TF5m, from, to)
	require.NoError(t, err)
	assert.Len(t, a, 24)
	assert.Equal(t, a, b)
	for _, bar := range a {
		assert.GreaterOrEqual(t, bar.High, bar.Low)
	}
}

func TestTwelveDataFetcher_FetchBars(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/time_series", r.URL.Path)
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"meta":{"symbol":"SPY","interval":"5min"},"values":[
			{"datetime":"2025-01-15 09:35:00","open":"445.10","high":"445.60","low":"445.00","close":"445.50","volume":"12000"},
			{"datetime":"2025-01-15 09:30:00","open":"445.00","high":"445.20","low":"444.80","close":"445.10","volume":"15000"}
		],"status":"ok"}`)
	}))
	defer srv.Close()

	f := NewTwelveDataFetcher(srv.URL, "key", "America/New_York", "", 5*time.Second)
	from := time.Date(2025, 1, 15, 9, 30, 0, 0, ny)
	bars, err := f.FetchBars(context.Background(), "SPY", model.TF5m, from, from.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Time.Equal(from))
	assert.Equal(t, 445.0, bars[0].Open)
	assert.Equal(t, 15000.0, bars[0].Volume)
	assert.Equal(t, 445.5, bars[1].Close)
	assert.Contains(t, gotQuery, "interval=5min")
	assert.Contains(t, gotQuery, "symbol=SPY")
}

func TestTwelveDataFetcher_InvalidSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":400,"message":"**symbol** not found","status":"error"}`)
	}))
	defer srv.Close()

	f := NewTwelveDataFetcher(srv.URL, "key", "", "", time.Second)
	now := time.Now()
	_, err := f.FetchBars(context.Background(), "NOPE", model.TF5m, now.Add(-time.Hour), now)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidSymbol)
}

func TestYahooFetcher_FetchBars(t *testing.T) {
	from := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/SPY", r.URL.Path)
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		fmt.Fprintf(w, `{"chart":{"result":[{"timestamp":[%d,%d,%d],"indicators":{"quote":[{
			"open":[445.0,null,445.3],"high":[445.2,null,445.6],"low":[444.8,null,445.1],
			"close":[445.1,null,445.5],"volume":[15000,null,9000]}]}}],"error":null}}`,
			from.Unix(), from.Add(5*time.Minute).Unix(), from.Add(10*time.Minute).Unix())
	}))
	defer srv.Close()

	f := NewYahooFetcher("", time.Second)
	f.BaseURL = srv.URL
	bars, err := f.FetchBars(context.Background(), "SPY", model.TF5m, from, from.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[1].Time.Equal(from.Add(10*time.Minute)))
	assert.Equal(t, 9000.0, bars[1].Volume)
}

func TestYahooFetcher_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewYahooFetcher("", time.Second)
	f.BaseURL = srv.URL
	now := time.Now()
	_, err := f.FetchBars(context.Background(), "NOPE", model.TF1d, now.AddDate(0, 0, -5), now)
	assert.ErrorIs(t, err, model.ErrInvalidSymbol)
}
