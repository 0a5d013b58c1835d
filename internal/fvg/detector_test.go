package fvg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketStructure/internal/model"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func bar(min int, high, low float64) model.Bar {
	mid := (high + low) / 2
	return model.Bar{
		Time:      t0.Add(time.Duration(min) * time.Minute),
		Open:      mid,
		High:      high,
		Low:       low,
		Close:     mid,
		Volume:    1000,
		Timeframe: model.TF1m,
	}
}

func series(bars ...model.Bar) *model.BarSeries {
	return &model.BarSeries{Symbol: "SPY", Timeframe: model.TF1m, Bars: bars}
}

// bullishGap forms a 445.00-445.50 gap on its third bar.
func bullishGap() []model.Bar {
	return []model.Bar{
		bar(0, 445.00, 444.50),
		bar(1, 445.80, 444.80),
		bar(2, 446.00, 445.50),
	}
}

func TestScan_InsufficientBars(t *testing.T) {
	_, err := NewDetector(DefaultOptions()).Scan(series(bullishGap()[:2]...))
	assert.ErrorIs(t, err, model.ErrInsufficientData)
}

func TestScan_NilSeries(t *testing.T) {
	var gaps []*model.FairValueGap
	var err error
	require.NotPanics(t, func() { gaps, err = NewDetector(DefaultOptions()).Scan(nil) })
	assert.ErrorIs(t, err, model.ErrInsufficientData)
	assert.Nil(t, gaps)
}

func TestScan_DetectsBullishGap(t *testing.T) {
	gaps, err := NewDetector(DefaultOptions()).Scan(series(bullishGap()...))
	require.NoError(t, err)
	require.Len(t, gaps, 1)

	g := gaps[0]
	assert.Equal(t, model.GapBullish, g.Type)
	assert.Equal(t, 445.00, g.Lower)
	assert.Equal(t, 445.50, g.Upper)
	assert.Equal(t, 0.5, g.Size)
	assert.Equal(t, 445.25, g.Midpoint)
	assert.Equal(t, "1m_2024-03-04T14:32:00Z", g.ID)
	assert.Equal(t, t0.Add(2*time.Minute), g.CreatedAt)
	assert.Equal(t, model.GapOpen, g.Status)
	assert.Equal(t, 445.80, g.FormationBars[1].High)
	assert.Equal(t, 1000.0, g.AvgVolume)
}

func TestScan_DetectsBearishGap(t *testing.T) {
	gaps, err := NewDetector(DefaultOptions()).Scan(series(
		bar(0, 101, 100),
		bar(1, 100.5, 98.5),
		bar(2, 99, 98),
	))
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, model.GapBearish, gaps[0].Type)
	assert.Equal(t, 99.0, gaps[0].Lower)
	assert.Equal(t, 100.0, gaps[0].Upper)
}

func TestScan_PartialFillScenario(t *testing.T) {
	bars := append(bullishGap(), bar(3, 445.40, 445.10))
	gaps, err := NewDetector(DefaultOptions()).Scan(series(bars...))
	require.NoError(t, err)
	require.Len(t, gaps, 1)

	g := gaps[0]
	assert.Equal(t, 1, g.Tests)
	assert.InDelta(t, 0.30, g.DeepestIntrusion, 1e-9)
	assert.InDelta(t, 0.60, g.FilledPercentage, 1e-9)
	assert.Equal(t, model.GapPartiallyFilled, g.Status)
	require.NotNil(t, g.LowestTest)
	assert.Equal(t, 445.10, *g.LowestTest)
	assert.Equal(t, 445.40, *g.HighestTest)
}

func TestInteract_FillIsMonotonicAndTerminal(t *testing.T) {
	g := &model.FairValueGap{Lower: 445.00, Upper: 445.50, Size: 0.5, Status: model.GapOpen}

	steps := []struct {
		bar    model.Bar
		tests  int
		filled float64
		status model.GapStatus
	}{
		{bar(3, 445.40, 445.10), 1, 0.6, model.GapPartiallyFilled},
		{bar(4, 445.45, 445.40), 2, 0.6, model.GapPartiallyFilled},
		{bar(5, 447.00, 446.00), 2, 0.6, model.GapPartiallyFilled},
		{bar(6, 445.60, 444.90), 3, 1.0, model.GapFilled},
		{bar(7, 445.30, 445.20), 3, 1.0, model.GapFilled},
	}
	prev := 0.0
	for i, s := range steps {
		Interact(g, s.bar)
		assert.Equal(t, s.tests, g.Tests, "step %d", i)
		assert.InDelta(t, s.filled, g.FilledPercentage, 1e-9, "step %d", i)
		assert.Equal(t, s.status, g.Status, "step %d", i)
		assert.GreaterOrEqual(t, g.FilledPercentage, prev)
		prev = g.FilledPercentage
	}
	require.NotNil(t, g.FilledAt)
	assert.Equal(t, t0.Add(6*time.Minute), *g.FilledAt)
}

func TestInteract_NearFullTreatedAsFilled(t *testing.T) {
	g := &model.FairValueGap{Lower: 100, Upper: 101, Size: 1, Status: model.GapOpen}
	Interact(g, bar(3, 101.5, 100.005))
	assert.Equal(t, model.GapFilled, g.Status)
	assert.Equal(t, 1.0, g.FilledPercentage)
}

func TestScan_MinGapPct(t *testing.T) {
	opts := DefaultOptions()
	opts.MinGapPct = 0.2
	gaps, err := NewDetector(opts).Scan(series(bullishGap()...))
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestUpdate_IncrementalMatchesScan(t *testing.T) {
	bars := append(bullishGap(),
		bar(3, 445.40, 445.10),
		bar(4, 447.00, 446.20),
		bar(5, 447.50, 446.90),
		bar(6, 448.50, 447.80),
		bar(7, 447.90, 446.00),
		bar(8, 446.50, 445.00),
	)
	d := NewDetector(DefaultOptions())
	want, err := d.Scan(series(bars...))
	require.NoError(t, err)
	require.NotEmpty(t, want)

	book := d.NewBook(model.SessionKey{Symbol: "SPY", Date: "2024-03-04", Scope: "1m"}, model.TF1m)
	d.Update(book, bars[:2])
	d.Update(book, bars[:5])
	d.Update(book, bars[:5])
	d.Update(book, bars)
	assert.Equal(t, want, book.Gaps)
	assert.Len(t, book.Tail, 3)
	assert.Equal(t, bars[len(bars)-1].Time, book.LastBarTime)
}

func TestAnnotate(t *testing.T) {
	g := &model.FairValueGap{Lower: 100, Upper: 101, CreatedAt: t0, Status: model.GapOpen}
	Annotate(g, 100.5, t0.Add(90*time.Minute))
	assert.True(t, g.CurrentlyInside)
	assert.Equal(t, 90.0, g.AgeMinutes)
}
