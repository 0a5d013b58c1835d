package model

// ZoneType classifies a zone relative to the current price.
type ZoneType string

const (
	ZoneSupport    ZoneType = "SUPPORT"
	ZoneResistance ZoneType = "RESISTANCE"
	ZoneNeutral    ZoneType = "NEUTRAL"
	ZoneTarget     ZoneType = "TARGET"
)

// Strength buckets a zone's confidence.
type Strength string

const (
	StrengthStrong   Strength = "strong"
	StrengthModerate Strength = "moderate"
	StrengthWeak     Strength = "weak"
)

// CandidateKind separates plain levels from projected targets.
type CandidateKind string

const (
	CandidateLevel  CandidateKind = "level"
	CandidateTarget CandidateKind = "target"
)

// Candidate is one price level proposed by a zone source.
// Low and High describe the band the level stands for; both equal Price for a point level.
type Candidate struct {
	Name       string        `json:"name"`
	Price      float64       `json:"price"`
	Low        float64       `json:"low"`
	High       float64       `json:"high"`
	Source     string        `json:"source"`
	Confidence float64       `json:"confidence"`
	Kind       CandidateKind `json:"kind"`
}

// PointCandidate builds a candidate whose band is the single price.
func PointCandidate(name string, price float64, source string, confidence float64, kind CandidateKind) Candidate {
	return Candidate{Name: name, Price: price, Low: price, High: price, Source: source, Confidence: confidence, Kind: kind}
}

// Zone is a merged, ranked support/resistance level.
type Zone struct {
	Type                ZoneType `json:"type"`
	Level               float64  `json:"level"`
	RangeLow            float64  `json:"range_low"`
	RangeHigh           float64  `json:"range_high"`
	Strength            Strength `json:"strength"`
	Confidence          float64  `json:"confidence"`
	Source              string   `json:"source"`
	ContributingSources []string `json:"contributing_sources"`
	Names               []string `json:"names"`
	Distance            float64  `json:"distance"`
}
