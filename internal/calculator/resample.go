package calculator

import (
	"fmt"
	"time"

	"MarketStructure/internal/model"
)

// Resample aggregates bars into the coarser timeframe target. Buckets are aligned to
// multiples of the target duration from midnight in the bars' location; daily buckets
// use the calendar date.
func Resample(bars []model.Bar, target model.Timeframe) ([]model.Bar, error) {
	d := target.Duration()
	if d == 0 {
		return nil, fmt.Errorf("resample: unsupported timeframe %q", target)
	}
	if len(bars) == 0 {
		return nil, nil
	}
	var out []model.Bar
	var cur model.Bar
	var curKey time.Time
	started := false

	for _, b := range bars {
		key := bucketStart(b.Time, target)
		if !started || !key.Equal(curKey) {
			if started {
				out = append(out, cur)
			}
			cur = model.Bar{Time: key, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume, Timeframe: target}
			curKey = key
			started = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	out = append(out, cur)
	return out, nil
}

func bucketStart(t time.Time, tf model.Timeframe) time.Time {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	if tf == model.TF1d {
		return midnight
	}
	step := tf.Duration()
	return midnight.Add(t.Sub(midnight) / step * step)
}
