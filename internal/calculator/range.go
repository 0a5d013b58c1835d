package calculator

import (
	"errors"
	"math"

	"MarketStructure/internal/model"
)

// HighLow scans bars and returns the highest high and lowest low.
func HighLow(bars []model.Bar) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, nil
}

// SwingRange returns the high and low of the most recent lookback bars.
func SwingRange(bars []model.Bar, lookback int) (high, low float64, err error) {
	start := 0
	if lookback > 0 && len(bars) > lookback {
		start = len(bars) - lookback
	}
	return HighLow(bars[start:])
}

// AverageRange is the mean high-low span per bar.
func AverageRange(bars []model.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.High - b.Low
	}
	return sum / float64(len(bars))
}

// RangePosition returns where price sits within [low, high] (0.0~1.0).
func RangePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
