package model

import "time"

// Status is the top-level outcome of a tool request.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// FrameStatus is the outcome of one timeframe or period within a request.
type FrameStatus string

const (
	FrameSuccess          FrameStatus = "success"
	FrameInsufficientData FrameStatus = "insufficient_data"
	FrameError            FrameStatus = "error"
)

// Envelope carries the fields every tool result shares.
type Envelope struct {
	Symbol    string    `json:"symbol" validate:"required"`
	Status    Status    `json:"status" validate:"required,oneof=success partial error"`
	Message   string    `json:"message,omitempty" validate:"required_if=Status error"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// Frame carries the per-timeframe or per-period status fields.
type Frame struct {
	Status   FrameStatus `json:"status" validate:"required,oneof=success insufficient_data error"`
	Message  string      `json:"message,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
	BarCount int         `json:"bar_count"`
}

// OK reports whether the frame produced output.
func (f Frame) OK() bool { return f.Status == FrameSuccess }

// VolumeProfileStructure is the emitted shape of a VolumeProfile.
type VolumeProfileStructure struct {
	PointOfControl      float64    `json:"point_of_control"`
	ValueAreaHigh       float64    `json:"value_area_high" validate:"gtefield=PointOfControl"`
	ValueAreaLow        float64    `json:"value_area_low" validate:"ltefield=PointOfControl"`
	HighVolumeNodes     []PriceBin `json:"high_volume_nodes"`
	LowVolumeNodes      []PriceBin `json:"low_volume_nodes"`
	BinWidth            float64    `json:"bin_width"`
	BinCount            int        `json:"bin_count" validate:"gte=1"`
	TotalVolume         float64    `json:"total_volume"`
	ValueAreaVolume     float64    `json:"value_area_volume"`
	ValueAreaPercentage float64    `json:"value_area_percentage"`
}

// VolumeProfileFrame is the volume profile of one timeframe.
type VolumeProfileFrame struct {
	Frame
	Structure *VolumeProfileStructure `json:"volume_profile_structure,omitempty" validate:"required_if=Status success"`
	Dynamics  *VolumeDynamics         `json:"volume_dynamics,omitempty" validate:"required_if=Status success"`
}

// ProfileSummary consolidates profiles across timeframes.
type ProfileSummary struct {
	Timeframes            []Timeframe           `json:"timeframes"`
	PointsOfControl       map[Timeframe]float64 `json:"points_of_control"`
	POCSpread             float64               `json:"poc_spread"`
	OverlapHigh           float64               `json:"value_area_overlap_high,omitempty"`
	OverlapLow            float64               `json:"value_area_overlap_low,omitempty"`
	HasOverlap            bool                  `json:"value_area_overlap"`
	DominantBias          Bias                  `json:"dominant_bias"`
	MeanUpsideProbability float64               `json:"mean_upside_probability"`
	PriceInValueArea      []Timeframe           `json:"price_in_value_area"`
}

// VolumeProfileResult is the volume profile tool response.
type VolumeProfileResult struct {
	Envelope
	CurrentPrice float64                           `json:"current_price,omitempty"`
	Timeframes   map[Timeframe]*VolumeProfileFrame `json:"timeframe_volume_profile,omitempty" validate:"dive"`
	Summary      *ProfileSummary                   `json:"consolidated_summary,omitempty"`
}

// CalculationContext describes the data a zone frame was computed from.
type CalculationContext struct {
	BarsInterval       Timeframe `json:"bars_interval"`
	Bars               int       `json:"bars"`
	LookbackStart      time.Time `json:"lookback_start"`
	LookbackEnd        time.Time `json:"lookback_end"`
	Tolerance          float64   `json:"tolerance"`
	CandidatesProvided int       `json:"candidates"`
}

// ZonesFrame is the ranked zone list of one timeframe.
type ZonesFrame struct {
	Frame
	Context CalculationContext `json:"calculation_context"`
	Zones   []Zone             `json:"technical_zones"`
}

// ZonesResult is the zones tool response.
type ZonesResult struct {
	Envelope
	CurrentPrice float64                   `json:"current_price,omitempty"`
	Timeframes   map[Timeframe]*ZonesFrame `json:"timeframe_zones,omitempty" validate:"dive"`
}

// ORBPeriod is the emitted opening-range analysis of one period.
type ORBPeriod struct {
	Frame
	ORBHigh              float64            `json:"orb_high"`
	ORBLow               float64            `json:"orb_low"`
	ORBRange             float64            `json:"orb_range"`
	ORBMidpoint          float64            `json:"orb_midpoint"`
	CurrentPrice         float64            `json:"current_price"`
	Position             RangePosition      `json:"position,omitempty"`
	DistanceFromRangePct float64            `json:"distance_from_range_pct"`
	BreakoutConfirmed    bool               `json:"breakout_confirmed"`
	BreakoutType         BreakoutType       `json:"breakout_type,omitempty"`
	ConsecutiveBars      int                `json:"consecutive_bars_beyond"`
	VolumeAnalysis       *ORBVolume         `json:"volume_analysis,omitempty"`
	Targets              map[string]float64 `json:"targets,omitempty"`
	TargetsHit           []string           `json:"targets_hit"`
	StartTime            string             `json:"orb_start_time,omitempty"`
	EndTime              string             `json:"orb_end_time,omitempty"`
}

// ORBResult is the opening range breakout tool response.
type ORBResult struct {
	Envelope
	TradingDate   string                `json:"trading_date,omitempty"`
	MarketSession string                `json:"market_session,omitempty"`
	CurrentPrice  float64               `json:"current_price,omitempty"`
	Periods       map[string]*ORBPeriod `json:"orb_analysis,omitempty" validate:"dive"`
	TradingBias   *TradingBias          `json:"trading_bias,omitempty"`
	Squeeze       *SqueezeAssessment    `json:"orb_squeeze,omitempty"`
}

// FVGFrame is the gap list of one timeframe.
type FVGFrame struct {
	Frame
	Count int            `json:"fvg_count"`
	Gaps  []FairValueGap `json:"gaps"`
}

// MarketContext describes the session the gaps were measured against.
type MarketContext struct {
	Session         string  `json:"session"`
	IntradayHigh    float64 `json:"intraday_high"`
	IntradayLow     float64 `json:"intraday_low"`
	OpeningPrice    float64 `json:"opening_price"`
	VolumeToday     float64 `json:"volume_today"`
	AvgVolumePerBar float64 `json:"avg_volume_per_bar"`
}

// FVGResult is the fair value gap tool response.
type FVGResult struct {
	Envelope
	CurrentPrice  float64                     `json:"current_price,omitempty"`
	Timeframes    map[Timeframe]*FVGFrame     `json:"timeframe_data,omitempty" validate:"dive"`
	Statistics    map[Timeframe]GapStatistics `json:"gap_statistics,omitempty"`
	Nearest       *NearestGaps                `json:"nearest_gaps,omitempty"`
	MarketContext *MarketContext              `json:"market_context,omitempty"`
}
