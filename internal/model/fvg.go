package model

import "time"

// GapType is the direction of a fair value gap.
type GapType string

const (
	GapBullish GapType = "bullish"
	GapBearish GapType = "bearish"
)

// GapStatus is the fill lifecycle of a gap. GapFilled is terminal.
type GapStatus string

const (
	GapOpen            GapStatus = "open"
	GapPartiallyFilled GapStatus = "partially_filled"
	GapFilled          GapStatus = "filled"
)

// FormationBar is the OHLCV snapshot of one of the three bars forming a gap.
type FormationBar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// FairValueGap is a 3-bar imbalance. Lower and Upper never change after creation;
// FilledPercentage never decreases.
type FairValueGap struct {
	ID               string          `json:"gap_id"`
	Type             GapType         `json:"type"`
	Timeframe        Timeframe       `json:"timeframe"`
	Lower            float64         `json:"lower"`
	Upper            float64         `json:"upper"`
	Midpoint         float64         `json:"midpoint"`
	Size             float64         `json:"size"`
	FormationBars    [3]FormationBar `json:"formation_bars"`
	AvgVolume        float64         `json:"avg_volume"`
	CreatedAt        time.Time       `json:"created_at"`
	Tests            int             `json:"tests"`
	DeepestIntrusion float64         `json:"deepest_intrusion"`
	LowestTest       *float64        `json:"lowest_test,omitempty"`
	HighestTest      *float64        `json:"highest_test,omitempty"`
	FilledPercentage float64         `json:"filled_percentage"`
	Status           GapStatus       `json:"status"`
	FilledAt         *time.Time      `json:"filled_at,omitempty"`
	AgeMinutes       float64         `json:"age_minutes"`
	CurrentlyInside  bool            `json:"currently_inside_gap"`
}

// Contains reports whether price lies inside the gap.
func (g *FairValueGap) Contains(price float64) bool {
	return price >= g.Lower && price <= g.Upper
}

// GapStatistics summarizes gap outcomes for one timeframe.
type GapStatistics struct {
	TotalGaps            int     `json:"total_gaps"`
	Filled               int     `json:"filled_completely"`
	PartiallyFilled      int     `json:"filled_partially"`
	Open                 int     `json:"unfilled"`
	FillRate             float64 `json:"historical_fill_rate"`
	AvgTimeToFillMinutes float64 `json:"avg_time_to_fill_minutes"`
	AvgGapSize           float64 `json:"avg_gap_size"`
}

// GapRef is a compact reference to an unfilled gap relative to the current price.
type GapRef struct {
	GapID            string    `json:"gap_id"`
	Timeframe        Timeframe `json:"timeframe"`
	Type             GapType   `json:"gap_type"`
	Level            float64   `json:"level"`
	Lower            float64   `json:"lower"`
	Upper            float64   `json:"upper"`
	Distance         float64   `json:"distance"`
	FilledPercentage float64   `json:"filled_percentage"`
	Status           GapStatus `json:"status"`
}

// NearestGaps splits unfilled gaps by side of the current price, nearest first.
type NearestGaps struct {
	Above []GapRef `json:"above_current_price"`
	Below []GapRef `json:"below_current_price"`
}
