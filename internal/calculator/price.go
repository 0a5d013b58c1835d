package calculator

import (
	"errors"

	"MarketStructure/internal/model"
)

// SMA computes the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// AverageVolume returns the mean volume of the last n bars, or of all bars when fewer exist.
func AverageVolume(bars []model.Bar, n int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if n <= 0 || n > len(bars) {
		n = len(bars)
	}
	avg, _ := SMA(Volumes(bars), n)
	return avg
}

// VWAP is the volume-weighted typical price. Falls back to the mean typical price when volume is zero.
func VWAP(bars []model.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var pv, vol, tp float64
	for _, b := range bars {
		p := b.TypicalPrice()
		pv += p * b.Volume
		vol += b.Volume
		tp += p
	}
	if vol == 0 {
		return tp / float64(len(bars))
	}
	return pv / vol
}

// TotalVolume sums bar volume.
func TotalVolume(bars []model.Bar) float64 {
	total := 0.0
	for _, b := range bars {
		total += b.Volume
	}
	return total
}

// Volumes extracts bar volumes.
func Volumes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// Closes extracts bar closes.
func Closes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
