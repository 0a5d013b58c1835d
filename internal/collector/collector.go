package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"MarketStructure/internal/cache"
	"MarketStructure/internal/calculator"
	"MarketStructure/internal/metrics"
	"MarketStructure/internal/model"
)

// Options configures a Collector.
type Options struct {
	RateLimitRPS float64
	Burst        int
	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	// Resample derives a failed timeframe from 1m bars.
	Resample bool
}

// DefaultOptions allows 8 requests per second and opens the breaker after 5 failures.
func DefaultOptions() Options {
	return Options{
		RateLimitRPS:    8,
		Burst:           4,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		Resample:        true,
	}
}

// Collector fetches bar series through a cache, a rate limiter and a circuit breaker.
type Collector struct {
	fetcher  Fetcher
	cache    cache.BarCache
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	resample bool
}

// NewCollector creates a Collector. A nil cache disables caching.
func NewCollector(fetcher Fetcher, barCache cache.BarCache, opts Options) *Collector {
	if barCache == nil {
		barCache = cache.Noop{}
	}
	d := DefaultOptions()
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = d.RateLimitRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = d.Burst
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = d.BreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = d.BreakerTimeout
	}
	failures := opts.BreakerFailures
	st := gobreaker.Settings{
		Name:    fetcher.Name(),
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// a rejected symbol says nothing about upstream health
			return err == nil || errors.Is(err, model.ErrInvalidSymbol) || errors.Is(err, context.Canceled)
		},
	}
	return &Collector{
		fetcher:  fetcher,
		cache:    barCache,
		limiter:  rate.NewLimiter(rate.Limit(opts.RateLimitRPS), opts.Burst),
		breaker:  gobreaker.NewCircuitBreaker(st),
		resample: opts.Resample,
	}
}

// Provider names the upstream fetcher.
func (c *Collector) Provider() string { return c.fetcher.Name() }

// Bars returns the series for [from, to). The cache entry is scoped to date and the window.
// Upstream failures are returned as UpstreamFetchFailure unless the provider rejected the symbol.
func (c *Collector) Bars(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time, date string) (*model.BarSeries, error) {
	key := cache.Key(symbol, tf, date, from, to)
	if bars, ok, err := c.cache.Get(ctx, key); err != nil {
		metrics.CacheRequests.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("key", key).Msg("bar cache read failed, fetching upstream")
	} else if ok {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return &model.BarSeries{Symbol: symbol, Timeframe: tf, Bars: bars, FetchedAt: time.Now()}, nil
	} else {
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	}

	bars, err := c.fetch(ctx, symbol, tf, from, to)
	if err != nil && c.resample && tf != model.TF1m && !errors.Is(err, model.ErrInvalidSymbol) {
		log.Warn().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("fetch failed, resampling from 1m")
		minute, mErr := c.fetch(ctx, symbol, model.TF1m, from, to)
		if mErr != nil {
			return nil, upstream(symbol, tf, fmt.Errorf("%w; 1m fallback also failed: %v", err, mErr))
		}
		bars, err = calculator.Resample(minute, tf)
	}
	if err != nil {
		return nil, upstream(symbol, tf, err)
	}
	bars = window(bars, from, to)

	series := &model.BarSeries{Symbol: symbol, Timeframe: tf, Bars: bars, FetchedAt: time.Now()}
	if err := series.Validate(); err != nil {
		return nil, upstream(symbol, tf, fmt.Errorf("malformed bars: %w", err))
	}
	if len(bars) > 0 {
		if err := c.cache.Set(ctx, key, bars); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("bar cache write failed")
		}
	}
	return series, nil
}

func (c *Collector) fetch(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	started := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetcher.FetchBars(ctx, symbol, tf, from, to)
	})
	metrics.ObserveFetch(c.fetcher.Name(), string(tf), started, err)
	if err != nil {
		return nil, err
	}
	return out.([]model.Bar), nil
}

func upstream(symbol string, tf model.Timeframe, err error) error {
	if errors.Is(err, model.ErrInvalidSymbol) {
		return err
	}
	return &model.AnalysisError{Kind: model.KindUpstreamFetch, Scope: symbol + "/" + string(tf), Err: err}
}
