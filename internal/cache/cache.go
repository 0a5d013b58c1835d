// Package cache holds fetched bar series for a bounded time so polling does not refetch them.
package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"MarketStructure/internal/model"
)

// BarCache stores bars per (symbol, timeframe, trading date, window).
type BarCache interface {
	Get(ctx context.Context, key string) ([]model.Bar, bool, error)
	Set(ctx context.Context, key string, bars []model.Bar) error
}

// Key builds the cache key for one series. Requests over different windows never share an entry.
func Key(symbol string, tf model.Timeframe, date string, from, to time.Time) string {
	window := strconv.FormatInt(from.Unix(), 10) + "-" + strconv.FormatInt(to.Unix(), 10)
	return strings.Join([]string{"bars", symbol, string(tf), date, window}, ":")
}

type entry struct {
	bars    []model.Bar
	expires time.Time
}

// Memory is an in-process BarCache with a fixed TTL.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// NewMemory creates a Memory cache. A nil clock uses time.Now.
func NewMemory(ttl time.Duration, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{ttl: ttl, now: now, entries: make(map[string]entry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]model.Bar, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]model.Bar(nil), e.bars...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, bars []model.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{bars: append([]model.Bar(nil), bars...), expires: m.now().Add(m.ttl)}
	return nil
}

// Len returns the number of entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]model.Bar, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []model.Bar) error         { return nil }
