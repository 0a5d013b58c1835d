package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"MarketStructure/internal/analysis"
	"MarketStructure/internal/cache"
	"MarketStructure/internal/collector"
	"MarketStructure/internal/config"
	"MarketStructure/internal/fvg"
	"MarketStructure/internal/orb"
	"MarketStructure/internal/profile"
	"MarketStructure/internal/recorder"
	"MarketStructure/internal/session"
	"MarketStructure/internal/zones"
)

func newFetcher(cfg *config.Config) (collector.Fetcher, error) {
	ds := cfg.DataSource
	switch ds.Provider {
	case "twelvedata":
		return collector.NewTwelveDataFetcher(ds.BaseURL, ds.APIKey, cfg.Session.Timezone, cfg.Proxy, ds.Timeout), nil
	case "yahoo":
		return collector.NewYahooFetcher(cfg.Proxy, ds.Timeout), nil
	case "mock":
		return &collector.MockFetcher{Price: ds.MockPrice}, nil
	default:
		return nil, fmt.Errorf("unknown data source provider %q", ds.Provider)
	}
}

func newCache(cfg *config.Config) cache.BarCache {
	switch cfg.Cache.Backend {
	case "redis":
		r := cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.TTL)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := r.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis unreachable, using memory cache")
			return cache.NewMemory(cfg.Cache.TTL, time.Now)
		}
		return r
	case "memory":
		return cache.NewMemory(cfg.Cache.TTL, time.Now)
	default:
		return cache.Noop{}
	}
}

func newStore(cfg *config.Config) (session.Store, error) {
	if cfg.Analysis.StateFile == "" {
		return session.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Analysis.StateFile), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return session.NewFileStore(cfg.Analysis.StateFile)
}

// newRecorder falls back to a no-op recorder when the database cannot be opened.
func newRecorder(cfg *config.Config) recorder.Recorder {
	path := cfg.Database.SQLitePath
	if path == "" {
		return recorder.NewNoopRecorder()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn().Err(err).Msg("create database dir failed, using noop recorder")
		return recorder.NewNoopRecorder()
	}
	rec, err := recorder.NewSQLiteRecorder(path)
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop recorder")
		return recorder.NewNoopRecorder()
	}
	return rec
}

func newCalendar(cfg *config.Config) (*session.Calendar, error) {
	s := cfg.Session
	return session.NewCalendar(s.Timezone, s.Open, s.Close, s.Holidays)
}

func analysisOptions(cfg *config.Config) (analysis.Options, error) {
	a := cfg.Analysis
	tfs, err := analysis.ParseTimeframes(a.Timeframes)
	if err != nil {
		return analysis.Options{}, fmt.Errorf("analysis.timeframes: %w", err)
	}
	zoneTFs, err := analysis.ParseTimeframes(a.ZoneTimeframes)
	if err != nil {
		return analysis.Options{}, fmt.Errorf("analysis.zone_timeframes: %w", err)
	}
	ticks := make(map[string]float64, len(a.TickSizes))
	for sym, t := range a.TickSizes {
		ticks[strings.ToUpper(sym)] = t
	}

	opts := analysis.DefaultOptions()
	opts.Timeframes = tfs
	opts.ZoneTimeframes = zoneTFs
	opts.TickSize = a.TickSize
	opts.TickSizes = ticks
	opts.DailyLookback = a.DailyLookback
	opts.StateMode = a.StateMode

	opts.Profile = profile.DefaultOptions()
	opts.Profile.BinCount = a.BinCount
	opts.Profile.TickSize = a.TickSize
	opts.Profile.ValueAreaPct = a.ValueAreaPct
	opts.Profile.HVNMultiplier = a.HVNMultiplier
	opts.Profile.LVNFraction = a.LVNFraction

	opts.Zones = zones.DefaultOptions()
	opts.Zones.TolerancePct = a.ZoneTolerance
	opts.Zones.TickSize = a.TickSize

	opts.ORB = orb.DefaultOptions()
	opts.ORB.Periods = a.ORBPeriods
	opts.ORB.ConfirmBars = a.ConfirmBars

	opts.FVG = fvg.DefaultOptions()
	opts.FVG.MinGapPct = a.MinGapPct
	opts.FVG.NearestLimit = a.NearestGaps
	return opts, nil
}

// buildAnalyzer wires the data path: fetcher, cache, collector, calendar and state store.
func buildAnalyzer(cfg *config.Config) (*analysis.Analyzer, session.Store, error) {
	fetcher, err := newFetcher(cfg)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("provider", fetcher.Name()).Str("cache", cfg.Cache.Backend).Msg("data source ready")

	col := collector.NewCollector(fetcher, newCache(cfg), collector.Options{
		RateLimitRPS:    cfg.DataSource.RateLimitRPS,
		Burst:           cfg.DataSource.Burst,
		BreakerFailures: cfg.DataSource.BreakerFailures,
		BreakerTimeout:  cfg.DataSource.BreakerTimeout,
		Resample:        true,
	})
	cal, err := newCalendar(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := newStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts, err := analysisOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	return analysis.New(col, cal, store, opts), store, nil
}
