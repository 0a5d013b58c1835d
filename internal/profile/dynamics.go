package profile

import (
	"MarketStructure/internal/calculator"
	"MarketStructure/internal/model"
)

const (
	trendThreshold = 0.10
	biasThreshold  = 0.001
)

// dynamics compares the two temporal halves of bars and weighs volume above vs below the POC bin.
func dynamics(bars []model.Bar, bins []model.PriceBin, poc int) model.VolumeDynamics {
	mid := len(bars) / 2
	first, second := bars[:mid], bars[mid:]

	d := model.VolumeDynamics{
		Trend:            model.TrendFlat,
		Bias:             model.BiasNeutral,
		FirstHalfVolume:  calculator.TotalVolume(first),
		SecondHalfVolume: calculator.TotalVolume(second),
	}
	if len(first) > 0 {
		d.FirstHalfVWAP = calculator.VWAP(first)
		d.SecondHalfVWAP = calculator.VWAP(second)

		if d.FirstHalfVolume > 0 {
			change := (d.SecondHalfVolume - d.FirstHalfVolume) / d.FirstHalfVolume
			switch {
			case change > trendThreshold:
				d.Trend = model.TrendIncreasing
			case change < -trendThreshold:
				d.Trend = model.TrendDecreasing
			}
		} else if d.SecondHalfVolume > 0 {
			d.Trend = model.TrendIncreasing
		}

		if d.FirstHalfVWAP > 0 {
			move := (d.SecondHalfVWAP - d.FirstHalfVWAP) / d.FirstHalfVWAP
			switch {
			case move > biasThreshold:
				d.Bias = model.BiasBullish
			case move < -biasThreshold:
				d.Bias = model.BiasBearish
			}
		}
	}

	for i, b := range bins {
		switch {
		case i > poc:
			d.VolumeAbovePOC += b.Volume
		case i < poc:
			d.VolumeBelowPOC += b.Volume
		}
	}
	d.UpsideProbability = 50
	if sum := d.VolumeAbovePOC + d.VolumeBelowPOC; sum > 0 {
		d.UpsideProbability = calculator.Round(100*d.VolumeAbovePOC/sum, 1)
	}
	return d
}
