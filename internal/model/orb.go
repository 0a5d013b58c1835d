package model

import "time"

// BreakoutType is the direction of a confirmed opening-range breakout.
type BreakoutType string

const (
	BreakoutBullish BreakoutType = "bullish"
	BreakoutBearish BreakoutType = "bearish"
	BreakoutNone    BreakoutType = "none"
)

// RangePosition is where the last close sits relative to an opening range.
type RangePosition string

const (
	PositionAbove  RangePosition = "above_range"
	PositionBelow  RangePosition = "below_range"
	PositionInside RangePosition = "inside_range"
)

// Target is one extension level of an opening range.
type Target struct {
	Label string  `json:"label"`
	Price float64 `json:"price"`
}

// ORBVolume compares opening-range volume with the session average.
type ORBVolume struct {
	ORBTotalVolume      float64 `json:"orb_total_volume"`
	ORBAvgVolumePerBar  float64 `json:"orb_avg_volume_per_bar"`
	SessionAvgPerBar    float64 `json:"session_avg_volume_per_bar"`
	VolumeRatioVsDayAvg float64 `json:"volume_ratio_vs_day_avg"`
	HighVolume          bool    `json:"high_volume"`
}

// ORBState is the opening range for one period of one session and its breakout progress.
// TargetsHit is append-only and BreakoutConfirmed never flips back to false within a session.
type ORBState struct {
	Symbol                string        `json:"symbol"`
	Period                int           `json:"period"`
	High                  float64       `json:"orb_high"`
	Low                   float64       `json:"orb_low"`
	Range                 float64       `json:"orb_range"`
	Midpoint              float64       `json:"orb_midpoint"`
	StartTime             time.Time     `json:"orb_start_time"`
	EndTime               time.Time     `json:"orb_end_time"`
	SessionClose          time.Time     `json:"session_close"`
	ConsecutiveBarsBeyond int           `json:"consecutive_bars_beyond"`
	PendingDirection      BreakoutType  `json:"pending_direction"`
	BreakoutConfirmed     bool          `json:"breakout_confirmed"`
	BreakoutType          BreakoutType  `json:"breakout_type"`
	ConfirmedAt           *time.Time    `json:"confirmed_at,omitempty"`
	Targets               []Target      `json:"targets"`
	TargetsHit            []string      `json:"targets_hit"`
	LastPrice             float64       `json:"last_price"`
	LastBarTime           time.Time     `json:"last_bar_time"`
	Position              RangePosition `json:"position"`
	Volume                ORBVolume     `json:"volume_analysis"`
	SessionVolume         float64       `json:"session_volume"`
	SessionBars           int           `json:"session_bars"`
	Closed                bool          `json:"closed"`
}

// TargetPrice looks up an extension level by label.
func (s *ORBState) TargetPrice(label string) (float64, bool) {
	for _, t := range s.Targets {
		if t.Label == label {
			return t.Price, true
		}
	}
	return 0, false
}

// HasHit reports whether the target label has been touched this session.
func (s *ORBState) HasHit(label string) bool {
	for _, l := range s.TargetsHit {
		if l == label {
			return true
		}
	}
	return false
}

// SqueezeAssessment compares opening-range sizes across periods.
type SqueezeAssessment struct {
	SqueezeDetected  bool               `json:"squeeze_detected"`
	Inverted         bool               `json:"inverted"`
	CompressionRatio float64            `json:"compression_ratio"`
	RangeProgression map[string]float64 `json:"range_progression,omitempty"`
	Interpretation   string             `json:"interpretation"`
}

// Confidence tiers for aggregated signals.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// TradingBias aggregates bullish and bearish ORB signals across periods.
type TradingBias struct {
	Bias            Bias       `json:"bias"`
	Confidence      Confidence `json:"confidence"`
	BullishSignals  int        `json:"bullish_signals"`
	BearishSignals  int        `json:"bearish_signals"`
	AgreeingPeriods int        `json:"agreeing_periods"`
	StrengthFactors []string   `json:"strength_factors"`
}
