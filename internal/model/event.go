package model

import "time"

// EventType names a state change worth alerting on.
type EventType string

const (
	EventBreakoutConfirmed EventType = "breakout_confirmed"
	EventTargetHit         EventType = "target_hit"
	EventSqueeze           EventType = "squeeze_detected"
	EventGapFormed         EventType = "gap_formed"
	EventGapFilled         EventType = "gap_filled"
)

// Event is a change between two polls of the same symbol. Scope is the ORB period key or
// the gap timeframe.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	Symbol string    `json:"symbol"`
	Scope  string    `json:"scope"`
	Label  string    `json:"label,omitempty"`
	Price  float64   `json:"price"`
	Level  float64   `json:"level,omitempty"`
	Detail string    `json:"detail"`
	Time   time.Time `json:"time"`
}
