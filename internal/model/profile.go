package model

// PriceBin is one equal-width price interval of a volume profile.
type PriceBin struct {
	PriceLow  float64 `json:"price_low"`
	PriceHigh float64 `json:"price_high"`
	Volume    float64 `json:"volume"`
}

// Mid returns the bin's representative price.
func (b PriceBin) Mid() float64 {
	return (b.PriceLow + b.PriceHigh) / 2
}

// Contains reports whether price lies within the bin bounds.
func (b PriceBin) Contains(price float64) bool {
	return price >= b.PriceLow && price <= b.PriceHigh
}

// VolumeTrend classifies how traded volume changed across the analysis window.
type VolumeTrend string

const (
	TrendIncreasing VolumeTrend = "increasing"
	TrendDecreasing VolumeTrend = "decreasing"
	TrendFlat       VolumeTrend = "flat"
)

// Bias is a directional lean.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNeutral Bias = "neutral"
)

// VolumeDynamics summarizes how volume and volume-weighted price moved between the two halves of a series.
type VolumeDynamics struct {
	Trend             VolumeTrend `json:"trend"`
	Bias              Bias        `json:"bias"`
	UpsideProbability float64     `json:"upside_probability"`
	FirstHalfVolume   float64     `json:"first_half_volume"`
	SecondHalfVolume  float64     `json:"second_half_volume"`
	FirstHalfVWAP     float64     `json:"first_half_vwap"`
	SecondHalfVWAP    float64     `json:"second_half_vwap"`
	VolumeAbovePOC    float64     `json:"volume_above_poc"`
	VolumeBelowPOC    float64     `json:"volume_below_poc"`
}

// VolumeProfile is the volume-at-price distribution of a BarSeries.
// Invariant: ValueAreaHigh >= PointOfControl >= ValueAreaLow.
type VolumeProfile struct {
	Bins            []PriceBin     `json:"bins"`
	BinWidth        float64        `json:"bin_width"`
	POCIndex        int            `json:"-"`
	ValueAreaFrom   int            `json:"-"`
	ValueAreaTo     int            `json:"-"`
	PointOfControl  float64        `json:"point_of_control"`
	ValueAreaHigh   float64        `json:"value_area_high"`
	ValueAreaLow    float64        `json:"value_area_low"`
	HighVolumeNodes []PriceBin     `json:"high_volume_nodes"`
	LowVolumeNodes  []PriceBin     `json:"low_volume_nodes"`
	TotalVolume     float64        `json:"total_volume"`
	ValueAreaVolume float64        `json:"value_area_volume"`
	VWAP            float64        `json:"vwap"`
	Dynamics        VolumeDynamics `json:"dynamics"`
	Warnings        []string       `json:"warnings,omitempty"`
}

// POCBin returns the point-of-control bin.
func (p *VolumeProfile) POCBin() PriceBin {
	return p.Bins[p.POCIndex]
}

// ValueAreaFraction is the share of total volume claimed by the value area.
func (p *VolumeProfile) ValueAreaFraction() float64 {
	if p.TotalVolume == 0 {
		return 1
	}
	return p.ValueAreaVolume / p.TotalVolume
}

// InValueArea reports whether price lies between VAL and VAH.
func (p *VolumeProfile) InValueArea(price float64) bool {
	return price >= p.ValueAreaLow && price <= p.ValueAreaHigh
}
