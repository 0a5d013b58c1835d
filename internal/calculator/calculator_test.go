package calculator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketStructure/internal/model"
)

func bar(t time.Time, o, h, l, c, v float64) model.Bar {
	return model.Bar{Time: t, Open: o, High: h, Low: l, Close: c, Volume: v, Timeframe: model.TF1m}
}

func TestSMA_NotEnoughData(t *testing.T) {
	_, err := SMA([]float64{1, 2}, 3)
	assert.Error(t, err)

	avg, err := SMA([]float64{1, 2, 3, 4}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, avg, 1e-9)
}

func TestVWAP_WeightsByVolume(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	bars := []model.Bar{
		bar(t0, 10, 10, 10, 10, 100),
		bar(t0.Add(time.Minute), 20, 20, 20, 20, 300),
	}
	assert.InDelta(t, 17.5, VWAP(bars), 1e-9)
}

func TestVWAP_ZeroVolumeFallsBackToMean(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	bars := []model.Bar{
		bar(t0, 10, 10, 10, 10, 0),
		bar(t0.Add(time.Minute), 20, 20, 20, 20, 0),
	}
	assert.InDelta(t, 15.0, VWAP(bars), 1e-9)
}

func TestAverageVolume_UsesTail(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	var bars []model.Bar
	for i := 0; i < 5; i++ {
		bars = append(bars, bar(t0.Add(time.Duration(i)*time.Minute), 1, 1, 1, 1, float64(i+1)*100))
	}
	assert.InDelta(t, 450.0, AverageVolume(bars, 2), 1e-9)
	assert.InDelta(t, 300.0, AverageVolume(bars, 20), 1e-9)
	assert.Zero(t, AverageVolume(nil, 20))
}

func TestSwingRange(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	bars := []model.Bar{
		bar(t0, 100, 120, 90, 110, 1),
		bar(t0.Add(time.Minute), 100, 105, 99, 101, 1),
		bar(t0.Add(2*time.Minute), 100, 104, 98, 102, 1),
	}
	h, l, err := SwingRange(bars, 2)
	require.NoError(t, err)
	assert.Equal(t, 105.0, h)
	assert.Equal(t, 98.0, l)

	_, _, err = SwingRange(nil, 2)
	assert.Error(t, err)
}

func TestRangePosition(t *testing.T) {
	pos, err := RangePosition(150, 200, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pos, 1e-9)

	pos, _ = RangePosition(250, 200, 100)
	assert.Equal(t, 1.0, pos)

	_, err = RangePosition(150, 100, 200)
	assert.Error(t, err)
}

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		price, tick, want float64
	}{
		{424.7549, 0.01, 424.75},
		{424.755, 0.01, 424.76},
		{101.12, 0.25, 101.0},
		{101.13, 0.25, 101.25},
		{5.0, 0, 5.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundToTick(tt.price, tt.tick), "price %v tick %v", tt.price, tt.tick)
	}
}

func TestATR_ConstantRange(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	var bars []model.Bar
	for i := 0; i < 30; i++ {
		bars = append(bars, bar(t0.Add(time.Duration(i)*time.Minute), 100, 101, 99, 100, 10))
	}
	atr, err := ATR(bars, DefaultATRPeriod)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, atr, 1e-9)

	_, err = ATR(bars[:10], DefaultATRPeriod)
	assert.ErrorIs(t, err, model.ErrInsufficientData)
}

func TestResample_FiveMinute(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	var bars []model.Bar
	for i := 0; i < 10; i++ {
		p := 100 + float64(i)
		bars = append(bars, bar(t0.Add(time.Duration(i)*time.Minute), p, p+1, p-1, p+0.5, 10))
	}
	out, err := Resample(bars, model.TF5m)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, t0, out[0].Time)
	assert.Equal(t, 100.0, out[0].Open)
	assert.Equal(t, 105.0, out[0].High)
	assert.Equal(t, 99.0, out[0].Low)
	assert.Equal(t, 104.5, out[0].Close)
	assert.Equal(t, 50.0, out[0].Volume)
	assert.Equal(t, model.TF5m, out[1].Timeframe)
	assert.Equal(t, t0.Add(5*time.Minute), out[1].Time)
}

func TestResample_UnknownTimeframe(t *testing.T) {
	_, err := Resample(nil, model.Timeframe("7m"))
	assert.Error(t, err)
}
