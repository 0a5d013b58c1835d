package zones

import (
	"fmt"
	"strconv"

	"MarketStructure/internal/calculator"
	"MarketStructure/internal/model"
)

// Source names carried on candidates and zones.
const (
	SourceVolumeProfile = "volume_profile"
	SourceFibonacci     = "fibonacci"
	SourcePriorSession  = "prior_session"
	SourceATR           = "atr"
)

type fibLevel struct {
	ratio      float64
	confidence float64
}

var retracements = []fibLevel{
	{0.0, 50}, {0.236, 50}, {0.382, 60}, {0.5, 65}, {0.618, 70}, {0.786, 50}, {1.0, 50},
}

var extensions = []fibLevel{
	{1.272, 55}, {1.618, 55},
}

var atrBands = []struct {
	mult       float64
	confidence float64
}{
	{1, 50}, {2, 40},
}

// Inputs is everything the candidate sources read for one timeframe.
type Inputs struct {
	Profile      *model.VolumeProfile
	Bars         []model.Bar
	PriorSession *model.Bar
}

// Candidates gathers levels from every source that has enough data. Sources that cannot run
// are skipped with a warning.
func Candidates(in Inputs, opts Options) ([]model.Candidate, []string) {
	opts = opts.withDefaults()
	var out []model.Candidate
	var warnings []string

	if in.Profile != nil {
		out = append(out, ProfileCandidates(in.Profile)...)
	}
	if c, err := FibonacciCandidates(in.Bars, opts.FibLookback); err != nil {
		warnings = append(warnings, "fibonacci skipped: "+err.Error())
	} else {
		out = append(out, c...)
	}
	if in.PriorSession != nil {
		out = append(out, PriorSessionCandidates(*in.PriorSession)...)
	}
	if c, err := ATRCandidates(in.Bars, opts.ATRPeriod); err != nil {
		warnings = append(warnings, "atr bands skipped: "+err.Error())
	} else {
		out = append(out, c...)
	}
	return out, warnings
}

// ProfileCandidates turns POC, VAH, VAL and the volume nodes into levels.
func ProfileCandidates(p *model.VolumeProfile) []model.Candidate {
	out := make([]model.Candidate, 0, 3+len(p.HighVolumeNodes)+len(p.LowVolumeNodes))
	poc := p.POCBin()
	out = append(out,
		model.Candidate{Name: "POC", Price: p.PointOfControl, Low: poc.PriceLow, High: poc.PriceHigh, Source: SourceVolumeProfile, Confidence: 75, Kind: model.CandidateLevel},
		model.PointCandidate("VAH", p.ValueAreaHigh, SourceVolumeProfile, 65, model.CandidateLevel),
		model.PointCandidate("VAL", p.ValueAreaLow, SourceVolumeProfile, 65, model.CandidateLevel),
	)
	for _, n := range p.HighVolumeNodes {
		out = append(out, model.Candidate{Name: "HVN", Price: n.Mid(), Low: n.PriceLow, High: n.PriceHigh, Source: SourceVolumeProfile, Confidence: 55, Kind: model.CandidateLevel})
	}
	for _, n := range p.LowVolumeNodes {
		out = append(out, model.Candidate{Name: "LVN", Price: n.Mid(), Low: n.PriceLow, High: n.PriceHigh, Source: SourceVolumeProfile, Confidence: 35, Kind: model.CandidateLevel})
	}
	return out
}

// FibonacciCandidates measures retracements and extensions of the swing over the last lookback bars.
func FibonacciCandidates(bars []model.Bar, lookback int) ([]model.Candidate, error) {
	high, low, err := calculator.SwingRange(bars, lookback)
	if err != nil {
		return nil, err
	}
	if high <= low {
		return nil, fmt.Errorf("swing high equals swing low")
	}
	span := high - low
	out := make([]model.Candidate, 0, len(retracements)+len(extensions))
	for _, l := range retracements {
		out = append(out, model.PointCandidate(fibName(l.ratio), low+span*l.ratio, SourceFibonacci, l.confidence, model.CandidateLevel))
	}
	for _, l := range extensions {
		out = append(out, model.PointCandidate(fibName(l.ratio), high+span*(l.ratio-1), SourceFibonacci, l.confidence, model.CandidateTarget))
	}
	return out, nil
}

func fibName(ratio float64) string {
	return "Fib " + strconv.FormatFloat(ratio, 'f', -1, 64)
}

// PriorSessionCandidates returns the previous session's high and low.
func PriorSessionCandidates(prev model.Bar) []model.Candidate {
	return []model.Candidate{
		model.PointCandidate("Prior Session High", prev.High, SourcePriorSession, 70, model.CandidateLevel),
		model.PointCandidate("Prior Session Low", prev.Low, SourcePriorSession, 70, model.CandidateLevel),
	}
}

// ATRCandidates projects ±1 and ±2 ATR targets from the last close.
func ATRCandidates(bars []model.Bar, period int) ([]model.Candidate, error) {
	atr, err := calculator.ATR(bars, period)
	if err != nil {
		return nil, err
	}
	if atr <= 0 {
		return nil, fmt.Errorf("atr is zero")
	}
	base := bars[len(bars)-1].Close
	out := make([]model.Candidate, 0, 2*len(atrBands))
	for _, b := range atrBands {
		label := strconv.FormatFloat(b.mult, 'f', -1, 64)
		out = append(out,
			model.PointCandidate("+"+label+" ATR", base+b.mult*atr, SourceATR, b.confidence, model.CandidateTarget),
			model.PointCandidate("-"+label+" ATR", base-b.mult*atr, SourceATR, b.confidence, model.CandidateTarget),
		)
	}
	return out, nil
}
