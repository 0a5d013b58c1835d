package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketStructure/internal/model"
)

func TestSummarize(t *testing.T) {
	profiles := map[model.Timeframe]*model.VolumeProfile{
		model.TF5m: {
			PointOfControl: 150.25, ValueAreaHigh: 151, ValueAreaLow: 149.5,
			Dynamics: model.VolumeDynamics{Bias: model.BiasBullish, UpsideProbability: 60},
		},
		model.TF1m: {
			PointOfControl: 150.0, ValueAreaHigh: 150.5, ValueAreaLow: 149,
			Dynamics: model.VolumeDynamics{Bias: model.BiasBullish, UpsideProbability: 70},
		},
		model.TF15m: nil,
	}
	s := Summarize(profiles, 150.4, 0.01)
	require.NotNil(t, s)

	assert.Equal(t, []model.Timeframe{model.TF1m, model.TF5m}, s.Timeframes)
	assert.Equal(t, 0.25, s.POCSpread)
	assert.True(t, s.HasOverlap)
	assert.Equal(t, 149.5, s.OverlapLow)
	assert.Equal(t, 150.5, s.OverlapHigh)
	assert.Equal(t, model.BiasBullish, s.DominantBias)
	assert.Equal(t, 65.0, s.MeanUpsideProbability)
	assert.Equal(t, []model.Timeframe{model.TF1m, model.TF5m}, s.PriceInValueArea)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Nil(t, Summarize(map[model.Timeframe]*model.VolumeProfile{model.TF1m: nil}, 100, 0.01))
}
