package collector

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"MarketStructure/internal/model"
)

// MockFetcher returns fixed or generated bars for development and testing.
type MockFetcher struct {
	Price float64
	Bars  map[model.Timeframe][]model.Bar
	Err   error
	Calls int

	mu sync.Mutex
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchBars(_ context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Bar, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if bars, ok := m.Bars[tf]; ok {
		return window(append([]model.Bar(nil), bars...), from, to), nil
	}
	return generateMockBars(symbol, m.Price, tf, from, to), nil
}

// generateMockBars produces a deterministic oscillating series. Daily bars skip weekends.
func generateMockBars(symbol string, basePrice float64, tf model.Timeframe, from, to time.Time) []model.Bar {
	if basePrice <= 0 {
		basePrice = 100
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	phase := float64(h.Sum32()%360) * math.Pi / 180

	step := tf.Duration()
	var bars []model.Bar
	i := 0
	for t := from; t.Before(to); t = t.Add(step) {
		if tf == model.TF1d && (t.Weekday() == time.Saturday || t.Weekday() == time.Sunday) {
			continue
		}
		p := basePrice * (1 + 0.004*math.Sin(phase+float64(i)/12) + 0.0001*float64(i%7))
		bars = append(bars, model.Bar{
			Time:      t,
			Open:      p * 0.9995,
			High:      p * 1.0010,
			Low:       p * 0.9990,
			Close:     p,
			Volume:    float64(10000 + 500*(i%13)),
			Timeframe: tf,
		})
		i++
	}
	return bars
}
