package scheduler

import (
	"fmt"
	"sort"
	"time"

	"MarketStructure/internal/model"
	"MarketStructure/internal/orb"
)

// snapshot is what one poll saw for a symbol.
type snapshot struct {
	date    string
	orb     map[int]orbSeen
	squeeze bool
	gaps    map[string]gapSeen
}

type orbSeen struct {
	confirmed bool
	kind      model.BreakoutType
	high      float64
	low       float64
	price     float64
	hit       map[string]float64 // label -> target price
}

type gapSeen struct {
	gap    model.FairValueGap
	filled bool
}

func newSnapshot(date string, states map[int]*model.ORBState, sq *model.SqueezeAssessment, gaps map[model.Timeframe][]*model.FairValueGap) *snapshot {
	s := &snapshot{date: date, orb: make(map[int]orbSeen, len(states)), gaps: map[string]gapSeen{}}
	for p, st := range states {
		seen := orbSeen{
			confirmed: st.BreakoutConfirmed,
			kind:      st.BreakoutType,
			high:      st.High,
			low:       st.Low,
			price:     st.LastPrice,
			hit:       make(map[string]float64, len(st.TargetsHit)),
		}
		for _, l := range st.TargetsHit {
			seen.hit[l], _ = st.TargetPrice(l)
		}
		s.orb[p] = seen
	}
	s.squeeze = sq != nil && sq.SqueezeDetected
	for _, list := range gaps {
		for _, g := range list {
			s.gaps[g.ID] = gapSeen{gap: *g, filled: g.Status == model.GapFilled}
		}
	}
	return s
}

// diff lists what changed from prev to cur in a stable order.
func diff(symbol string, prev, cur *snapshot, now time.Time) []model.Event {
	var events []model.Event

	periods := make([]int, 0, len(cur.orb))
	for p := range cur.orb {
		periods = append(periods, p)
	}
	sort.Ints(periods)
	for _, p := range periods {
		c := cur.orb[p]
		old, had := prev.orb[p]
		key := orb.PeriodKey(p)
		if c.confirmed && (!had || !old.confirmed) {
			level := c.high
			if c.kind == model.BreakoutBearish {
				level = c.low
			}
			events = append(events, model.Event{
				Type: model.EventBreakoutConfirmed, Symbol: symbol, Scope: key, Label: string(c.kind),
				Price: c.price, Level: level, Time: now,
				Detail: fmt.Sprintf("%s breakout of %.2f - %.2f", c.kind, c.low, c.high),
			})
		}
		labels := make([]string, 0, len(c.hit))
		for l := range c.hit {
			if _, seen := old.hit[l]; !seen {
				labels = append(labels, l)
			}
		}
		sort.Strings(labels)
		for _, l := range labels {
			events = append(events, model.Event{
				Type: model.EventTargetHit, Symbol: symbol, Scope: key, Label: l,
				Price: c.price, Level: c.hit[l], Time: now,
			})
		}
	}

	if cur.squeeze && !prev.squeeze {
		events = append(events, model.Event{
			Type: model.EventSqueeze, Symbol: symbol, Scope: "orb", Time: now,
			Detail: "opening ranges compressed across periods",
		})
	}

	ids := make([]string, 0, len(cur.gaps))
	for id := range cur.gaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := cur.gaps[id]
		old, had := prev.gaps[id]
		g := c.gap
		switch {
		case !had:
			events = append(events, model.Event{
				Type: model.EventGapFormed, Symbol: symbol, Scope: string(g.Timeframe), Label: id,
				Level: g.Midpoint, Time: now,
				Detail: fmt.Sprintf("%s gap %.2f - %.2f", g.Type, g.Lower, g.Upper),
			})
		case c.filled && !old.filled:
			events = append(events, model.Event{
				Type: model.EventGapFilled, Symbol: symbol, Scope: string(g.Timeframe), Label: id,
				Level: g.Midpoint, Time: now,
				Detail: fmt.Sprintf("%s gap %.2f - %.2f filled after %d tests", g.Type, g.Lower, g.Upper, g.Tests),
			})
		}
	}
	return events
}
