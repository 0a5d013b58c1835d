package notifier

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketStructure/internal/model"
)

func TestTelegramNotifier_Send(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", "")
	n.APIBase = srv.URL
	require.NoError(t, n.Send(context.Background(), "<b>hi</b>"))
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "<b>hi</b>", got["text"])
}

func TestTelegramNotifier_SendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("bad", "42", "")
	n.APIBase = srv.URL
	err := n.Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestTelegramNotifier_Poll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("offset"))
		w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"text":"/orb SPY"}},{"update_id":8}]}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("T", "1", "")
	n.APIBase = srv.URL
	updates, next, err := n.poll(context.Background(), srv.Client(), 7)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "/orb SPY", updates[0].Message.Text)
	assert.Nil(t, updates[1].Message)
	assert.Equal(t, 9, next)
}

type stubAnalyst struct {
	symbols []string
}

func env(symbol string) model.Envelope {
	return model.Envelope{Symbol: symbol, Status: model.StatusSuccess, Timestamp: time.Now()}
}

func (s *stubAnalyst) VolumeProfile(_ context.Context, symbol string, _ []model.Timeframe) *model.VolumeProfileResult {
	s.symbols = append(s.symbols, symbol)
	return &model.VolumeProfileResult{
		Envelope:     env(symbol),
		CurrentPrice: 150.2,
		Timeframes: map[model.Timeframe]*model.VolumeProfileFrame{
			model.TF5m: {
				Frame:     model.Frame{Status: model.FrameSuccess},
				Structure: &model.VolumeProfileStructure{PointOfControl: 150, ValueAreaHigh: 151, ValueAreaLow: 149.5},
				Dynamics:  &model.VolumeDynamics{Bias: model.BiasBullish, Trend: model.TrendIncreasing},
			},
		},
	}
}

func (s *stubAnalyst) Zones(_ context.Context, symbol string, _ []model.Timeframe) *model.ZonesResult {
	s.symbols = append(s.symbols, symbol)
	return &model.ZonesResult{Envelope: env(symbol)}
}

func (s *stubAnalyst) ORB(_ context.Context, symbol string, _ []int) *model.ORBResult {
	s.symbols = append(s.symbols, symbol)
	return &model.ORBResult{
		Envelope:      env(symbol),
		TradingDate:   "2025-01-15",
		MarketSession: "regular_hours",
		CurrentPrice:  425,
		Periods: map[string]*model.ORBPeriod{
			"15min": {Frame: model.Frame{Status: model.FrameInsufficientData, Message: "need more bars"}},
			"5min": {
				Frame: model.Frame{Status: model.FrameSuccess}, ORBHigh: 424.75, ORBLow: 424.25, ORBRange: 0.5,
				BreakoutConfirmed: true, BreakoutType: model.BreakoutBullish, TargetsHit: []string{"bull_0.5x"},
			},
		},
		TradingBias: &model.TradingBias{Bias: model.BiasBullish, Confidence: model.ConfidenceMedium},
	}
}

func (s *stubAnalyst) FVG(_ context.Context, symbol string, _ []model.Timeframe) *model.FVGResult {
	s.symbols = append(s.symbols, symbol)
	res := &model.FVGResult{Envelope: env(symbol), CurrentPrice: 445.3}
	res.Nearest = &model.NearestGaps{
		Below: []model.GapRef{{Timeframe: model.TF5m, Type: model.GapBullish, Lower: 445, Upper: 445.5, FilledPercentage: 0.6}},
	}
	return res
}

func TestCommandRouter_Handle(t *testing.T) {
	a := &stubAnalyst{}
	c := NewCommandRouter(a, "SPY")
	ctx := context.Background()

	out := c.Handle(ctx, "/orb QQQ")
	assert.Contains(t, out, "QQQ opening range")
	assert.Contains(t, out, "5min: 424.25 - 424.75 (0.50) bullish breakout | hit bull_0.5x")
	assert.Contains(t, out, "15min: need more bars")
	assert.Less(t, strings.Index(out, "5min:"), strings.Index(out, "15min:"))
	assert.Contains(t, out, "Bias: <b>bullish</b> (medium)")

	out = c.Handle(ctx, "/fvg@MarketBot")
	assert.Contains(t, out, "5m bullish 445.00 - 445.50 (60% filled)")

	out = c.Handle(ctx, "/vp")
	assert.Contains(t, out, "5m: POC 150.00 | VA 149.50 - 151.00 | bullish increasing")

	assert.Contains(t, c.Handle(ctx, "/help"), "/zones SYMBOL")
	assert.Contains(t, c.Handle(ctx, "/buy SPY"), "Unknown command")
	assert.Equal(t, "", c.Handle(ctx, "   "))
	assert.Equal(t, []string{"QQQ", "SPY", "SPY"}, a.symbols)
}

func TestCommandRouter_NoDefaultSymbol(t *testing.T) {
	c := NewCommandRouter(&stubAnalyst{}, "")
	assert.Equal(t, "Usage: /zones SYMBOL", c.Handle(context.Background(), "/zones"))
}

func TestFormatEvent(t *testing.T) {
	e := model.Event{
		Type: model.EventTargetHit, Symbol: "SPY", Scope: "5min", Label: "bull_1x",
		Price: 425.3, Level: 425.25, Time: time.Date(2025, 1, 15, 15, 5, 0, 0, time.UTC),
	}
	out := FormatEvent(e)
	assert.Contains(t, out, "SPY 5min target bull_1x hit")
	assert.Contains(t, out, "Level: 425.25 | Price: 425.30")
	assert.True(t, strings.HasSuffix(out, "2025-01-15 15:05 UTC</i>"))
}

func TestFormatORB_Error(t *testing.T) {
	res := &model.ORBResult{Envelope: model.Envelope{Symbol: "X", Status: model.StatusError, Message: "invalid symbol"}}
	out := FormatORB(res)
	assert.Contains(t, out, "[error]")
	assert.Contains(t, out, "invalid symbol")
}
