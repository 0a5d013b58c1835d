package calculator

import "github.com/shopspring/decimal"

// DefaultTick is the price increment used when none is configured.
const DefaultTick = 0.01

// RoundToTick rounds price to the nearest multiple of tick. Halves round away from zero.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		tick = DefaultTick
	}
	t := decimal.NewFromFloat(tick)
	steps := decimal.NewFromFloat(price).Div(t).Round(0)
	f, _ := steps.Mul(t).Float64()
	return f
}

// Round rounds v to places decimal digits.
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
