package model

import (
	"fmt"
	"time"
)

// Timeframe is a bar interval label such as "1m" or "1d".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF30m: 30 * time.Minute,
	TF1h:  time.Hour,
	TF1d:  24 * time.Hour,
}

// Duration returns the length of one bar. Unknown timeframes return 0.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Valid reports whether tf is a supported timeframe.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Intraday reports whether bars of this timeframe are shorter than one session.
func (tf Timeframe) Intraday() bool {
	return tf.Valid() && tf != TF1d
}

// ParseTimeframe validates a timeframe label.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Bar represents a single OHLCV candlestick. Bars are immutable once produced by a fetcher.
type Bar struct {
	Time      time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timeframe Timeframe `json:"timeframe"`
}

// TypicalPrice is (high + low + close) / 3.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// Overlaps reports whether the bar's [low, high] range intersects [lower, upper].
func (b Bar) Overlaps(lower, upper float64) bool {
	return b.Low <= upper && b.High >= lower
}

// BarSeries is a time-ordered OHLCV sequence for one (symbol, timeframe).
type BarSeries struct {
	Symbol    string
	Timeframe Timeframe
	Bars      []Bar
	FetchedAt time.Time
}

// Len returns the number of bars.
func (s *BarSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Last returns the most recent bar.
func (s *BarSeries) Last() (Bar, bool) {
	if s.Len() == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Between returns the bars with from <= t < to. The returned slice shares storage with s.
func (s *BarSeries) Between(from, to time.Time) []Bar {
	if s.Len() == 0 {
		return nil
	}
	start, end := -1, len(s.Bars)
	for i, b := range s.Bars {
		if start < 0 && !b.Time.Before(from) {
			start = i
		}
		if !b.Time.Before(to) {
			end = i
			break
		}
	}
	if start < 0 || start >= end {
		return nil
	}
	return s.Bars[start:end]
}

// Slice returns a new series holding the given bars with the same identity.
func (s *BarSeries) Slice(bars []Bar) *BarSeries {
	return &BarSeries{Symbol: s.Symbol, Timeframe: s.Timeframe, Bars: bars, FetchedAt: s.FetchedAt}
}

// Validate checks that bars are ascending by time and have sane prices.
func (s *BarSeries) Validate() error {
	for i, b := range s.Bars {
		if b.High < b.Low {
			return fmt.Errorf("bar %d: high %.4f below low %.4f", i, b.High, b.Low)
		}
		if b.Volume < 0 {
			return fmt.Errorf("bar %d: negative volume", i)
		}
		if i > 0 && !b.Time.After(s.Bars[i-1].Time) {
			return fmt.Errorf("bar %d: timestamp %s not after previous", i, b.Time.Format(time.RFC3339))
		}
	}
	return nil
}
