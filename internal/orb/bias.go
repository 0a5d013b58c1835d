package orb

import (
	"fmt"
	"strings"

	"MarketStructure/internal/model"
)

// Signal weights per period.
const (
	weightConfirmed  = 2
	weightPosition   = 1
	weightHighVolume = 1
	weightTarget     = 1
)

// biasTiers maps how far the leading side outweighs the other to a confidence, strongest first.
var biasTiers = []struct {
	MinRatio   float64
	Confidence model.Confidence
}{
	{2.0, model.ConfidenceHigh},
	{1.5, model.ConfidenceMedium},
}

type periodScore struct {
	bull, bear int
	factors    []string
}

// Bias aggregates breakout, position, volume and target signals across the formed periods.
// Strength factors are ordered by period, then by signal kind.
func (t *Tracker) Bias(states map[int]*model.ORBState) model.TradingBias {
	tb := model.TradingBias{Bias: model.BiasNeutral, Confidence: model.ConfidenceLow, StrengthFactors: []string{}}
	var scores []periodScore
	for _, p := range t.opts.Periods {
		st, ok := states[p]
		if !ok || st == nil {
			continue
		}
		s := scorePeriod(st)
		scores = append(scores, s)
		tb.BullishSignals += s.bull
		tb.BearishSignals += s.bear
		tb.StrengthFactors = append(tb.StrengthFactors, s.factors...)
	}

	bull, bear := float64(tb.BullishSignals), float64(tb.BearishSignals)
	var lead, other float64
	switch {
	case bull > bear*1.5:
		tb.Bias, lead, other = model.BiasBullish, bull, bear
	case bear > bull*1.5:
		tb.Bias, lead, other = model.BiasBearish, bear, bull
	default:
		return tb
	}

	for _, s := range scores {
		if (tb.Bias == model.BiasBullish && s.bull > s.bear) || (tb.Bias == model.BiasBearish && s.bear > s.bull) {
			tb.AgreeingPeriods++
		}
	}
	needAgree := 2
	if len(scores) < needAgree {
		needAgree = len(scores)
	}

	tb.Confidence = model.ConfidenceMedium
	for _, tier := range biasTiers {
		if lead > other*tier.MinRatio {
			tb.Confidence = tier.Confidence
			break
		}
	}
	if tb.Confidence == model.ConfidenceHigh && tb.AgreeingPeriods < needAgree {
		tb.Confidence = model.ConfidenceMedium
	}
	return tb
}

func scorePeriod(st *model.ORBState) periodScore {
	var s periodScore
	key := PeriodKey(st.Period)

	if st.BreakoutConfirmed {
		switch st.BreakoutType {
		case model.BreakoutBullish:
			s.bull += weightConfirmed
			s.factors = append(s.factors, key+" bullish breakout confirmed")
		case model.BreakoutBearish:
			s.bear += weightConfirmed
			s.factors = append(s.factors, key+" bearish breakout confirmed")
		}
	}

	switch st.Position {
	case model.PositionAbove:
		s.bull += weightPosition
		if st.Volume.HighVolume {
			s.bull += weightHighVolume
			s.factors = append(s.factors, key+" high volume above range")
		}
	case model.PositionBelow:
		s.bear += weightPosition
		if st.Volume.HighVolume {
			s.bear += weightHighVolume
			s.factors = append(s.factors, key+" high volume below range")
		}
	}

	var bullHits, bearHits int
	for _, label := range st.TargetsHit {
		if strings.HasPrefix(label, bullPrefix) {
			bullHits++
		} else {
			bearHits++
		}
	}
	if bullHits > 0 {
		s.bull += bullHits * weightTarget
		s.factors = append(s.factors, fmt.Sprintf("%s hit %d bull targets", key, bullHits))
	}
	if bearHits > 0 {
		s.bear += bearHits * weightTarget
		s.factors = append(s.factors, fmt.Sprintf("%s hit %d bear targets", key, bearHits))
	}
	return s
}
