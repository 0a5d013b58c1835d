package notifier

import (
	"fmt"
	"sort"
	"strings"

	"MarketStructure/internal/model"
)

// FormatEvent formats one scheduler event as an alert.
func FormatEvent(e model.Event) string {
	var b strings.Builder
	switch e.Type {
	case model.EventBreakoutConfirmed:
		fmt.Fprintf(&b, "🚀 <b>%s %s ORB breakout</b>\n", e.Symbol, e.Scope)
	case model.EventTargetHit:
		fmt.Fprintf(&b, "🎯 <b>%s %s target %s hit</b>\n", e.Symbol, e.Scope, e.Label)
	case model.EventSqueeze:
		fmt.Fprintf(&b, "🗜 <b>%s ORB squeeze</b>\n", e.Symbol)
	case model.EventGapFormed:
		fmt.Fprintf(&b, "🕳 <b>%s %s gap formed</b>\n", e.Symbol, e.Scope)
	case model.EventGapFilled:
		fmt.Fprintf(&b, "✅ <b>%s %s gap filled</b>\n", e.Symbol, e.Scope)
	default:
		fmt.Fprintf(&b, "<b>%s %s</b>\n", e.Symbol, e.Type)
	}
	if e.Level != 0 {
		fmt.Fprintf(&b, "Level: %.2f | Price: %.2f\n", e.Level, e.Price)
	} else if e.Price != 0 {
		fmt.Fprintf(&b, "Price: %.2f\n", e.Price)
	}
	if e.Detail != "" {
		b.WriteString(e.Detail + "\n")
	}
	if !e.Time.IsZero() {
		fmt.Fprintf(&b, "<i>%s</i>", e.Time.UTC().Format("2006-01-02 15:04 MST"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func header(title string, env model.Envelope) string {
	h := fmt.Sprintf("<b>%s %s</b> [%s]\n", env.Symbol, title, env.Status)
	if env.Status == model.StatusError {
		h += "⚠️ " + env.Message + "\n"
	}
	return h
}

// FormatORB summarizes an ORB result.
func FormatORB(res *model.ORBResult) string {
	var b strings.Builder
	b.WriteString(header("opening range", res.Envelope))
	if res.Status == model.StatusError {
		return b.String()
	}
	fmt.Fprintf(&b, "%s %s | price %.2f\n\n", res.TradingDate, res.MarketSession, res.CurrentPrice)
	for _, k := range sortedPeriodKeys(res.Periods) {
		p := res.Periods[k]
		if !p.OK() {
			fmt.Fprintf(&b, "%s: %s\n", k, p.Message)
			continue
		}
		state := string(p.Position)
		if p.BreakoutConfirmed {
			state = string(p.BreakoutType) + " breakout"
		}
		fmt.Fprintf(&b, "%s: %.2f - %.2f (%.2f) %s", k, p.ORBLow, p.ORBHigh, p.ORBRange, state)
		if len(p.TargetsHit) > 0 {
			fmt.Fprintf(&b, " | hit %s", strings.Join(p.TargetsHit, ","))
		}
		b.WriteString("\n")
	}
	if res.TradingBias != nil {
		fmt.Fprintf(&b, "\nBias: <b>%s</b> (%s)\n", res.TradingBias.Bias, res.TradingBias.Confidence)
	}
	if res.Squeeze != nil && res.Squeeze.SqueezeDetected {
		fmt.Fprintf(&b, "Squeeze: %s\n", res.Squeeze.Interpretation)
	}
	return b.String()
}

// FormatFVG lists the nearest unfilled gaps.
func FormatFVG(res *model.FVGResult) string {
	var b strings.Builder
	b.WriteString(header("fair value gaps", res.Envelope))
	if res.Status == model.StatusError || res.Nearest == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "Price %.2f\n", res.CurrentPrice)
	writeRefs := func(title string, refs []model.GapRef) {
		fmt.Fprintf(&b, "\n%s:\n", title)
		if len(refs) == 0 {
			b.WriteString("  none\n")
		}
		for _, r := range refs {
			fmt.Fprintf(&b, "  %s %s %.2f - %.2f (%.0f%% filled)\n", r.Timeframe, r.Type, r.Lower, r.Upper, r.FilledPercentage*100)
		}
	}
	writeRefs("Above", res.Nearest.Above)
	writeRefs("Below", res.Nearest.Below)
	return b.String()
}

// FormatZones lists the zones of each timeframe nearest the price.
func FormatZones(res *model.ZonesResult, perFrame int) string {
	var b strings.Builder
	b.WriteString(header("zones", res.Envelope))
	if res.Status == model.StatusError {
		return b.String()
	}
	fmt.Fprintf(&b, "Price %.2f\n", res.CurrentPrice)
	for _, tf := range sortedTimeframes(res.Timeframes) {
		f := res.Timeframes[tf]
		fmt.Fprintf(&b, "\n<b>%s</b>\n", tf)
		if !f.OK() {
			fmt.Fprintf(&b, "  %s\n", f.Message)
			continue
		}
		for i, z := range f.Zones {
			if i == perFrame {
				break
			}
			fmt.Fprintf(&b, "  %s %.2f %s (%.0f) %s\n", z.Type, z.Level, z.Strength, z.Confidence, strings.Join(z.ContributingSources, "+"))
		}
	}
	return b.String()
}

// FormatVolumeProfile lists POC and value area per timeframe.
func FormatVolumeProfile(res *model.VolumeProfileResult) string {
	var b strings.Builder
	b.WriteString(header("volume profile", res.Envelope))
	if res.Status == model.StatusError {
		return b.String()
	}
	fmt.Fprintf(&b, "Price %.2f\n\n", res.CurrentPrice)
	for _, tf := range sortedTimeframes(res.Timeframes) {
		f := res.Timeframes[tf]
		if !f.OK() {
			fmt.Fprintf(&b, "%s: %s\n", tf, f.Message)
			continue
		}
		s := f.Structure
		fmt.Fprintf(&b, "%s: POC %.2f | VA %.2f - %.2f | %s %s\n", tf, s.PointOfControl, s.ValueAreaLow, s.ValueAreaHigh, f.Dynamics.Bias, f.Dynamics.Trend)
	}
	if res.Summary != nil {
		fmt.Fprintf(&b, "\nBias: <b>%s</b> | upside %.0f%%\n", res.Summary.DominantBias, res.Summary.MeanUpsideProbability)
	}
	return b.String()
}

func sortedPeriodKeys(periods map[string]*model.ORBPeriod) []string {
	keys := make([]string, 0, len(periods))
	for k := range periods {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func sortedTimeframes[T any](m map[model.Timeframe]T) []model.Timeframe {
	tfs := make([]model.Timeframe, 0, len(m))
	for tf := range m {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Duration() < tfs[j].Duration() })
	return tfs
}
