package model

import "time"

// SessionKey identifies session-scoped analysis state. Scope is "orb" or a timeframe label.
type SessionKey struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	Scope  string `json:"scope"`
}

func (k SessionKey) String() string {
	return k.Symbol + "|" + k.Date + "|" + k.Scope
}

// ORBSession is the persisted opening-range state of one symbol and trading date.
type ORBSession struct {
	Key         SessionKey        `json:"key"`
	States      map[int]*ORBState `json:"states"`
	Pending     []int             `json:"pending"`
	LastBarTime time.Time         `json:"last_bar_time"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// GapBook is the persisted gap state of one symbol, trading date and timeframe.
// Tail keeps the last two bars so a gap can form across an update boundary.
type GapBook struct {
	Key         SessionKey      `json:"key"`
	Timeframe   Timeframe       `json:"timeframe"`
	Gaps        []*FairValueGap `json:"gaps"`
	Tail        []Bar           `json:"tail"`
	History     []Bar           `json:"history"`
	LastBarTime time.Time       `json:"last_bar_time"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
