package calculator

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"MarketStructure/internal/model"
)

// DefaultATRPeriod is the Wilder ATR lookback.
const DefaultATRPeriod = 14

// ATR returns the latest Wilder-smoothed average true range. Requires at least period+1 bars.
func ATR(bars []model.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive")
	}
	if len(bars) < period+1 {
		return 0, model.InsufficientData("atr", len(bars), period+1)
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	vals := talib.Atr(highs, lows, closes, period)
	return vals[len(vals)-1], nil
}
