package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketStructure/internal/model"
	"MarketStructure/internal/recorder"
)

type stubTools struct {
	tfs     []model.Timeframe
	periods []int
	symbol  string
}

func (s *stubTools) env(symbol string) model.Envelope {
	s.symbol = symbol
	return model.Envelope{Symbol: symbol, Status: model.StatusSuccess, Timestamp: time.Now()}
}

func (s *stubTools) VolumeProfile(_ context.Context, symbol string, tfs []model.Timeframe) *model.VolumeProfileResult {
	s.tfs = tfs
	return &model.VolumeProfileResult{Envelope: s.env(symbol), CurrentPrice: 425}
}

func (s *stubTools) Zones(_ context.Context, symbol string, tfs []model.Timeframe) *model.ZonesResult {
	s.tfs = tfs
	return &model.ZonesResult{Envelope: s.env(symbol)}
}

func (s *stubTools) ORB(_ context.Context, symbol string, periods []int) *model.ORBResult {
	s.periods = periods
	env := s.env(symbol)
	env.Status = model.StatusError
	env.ErrorKind = model.KindInsufficientData
	env.Message = "no bars"
	return &model.ORBResult{Envelope: env}
}

func (s *stubTools) FVG(_ context.Context, symbol string, tfs []model.Timeframe) *model.FVGResult {
	s.tfs = tfs
	return &model.FVGResult{Envelope: s.env(symbol)}
}

type runLog struct {
	recorder.NoopRecorder
	runs   []*recorder.Run
	events []model.Event
}

func (l *runLog) RecordRun(run *recorder.Run) error {
	l.runs = append(l.runs, run)
	return nil
}

func (l *runLog) RecentEvents(symbol string, limit int) ([]model.Event, error) {
	var out []model.Event
	for _, e := range l.events {
		if e.Symbol == symbol && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestVolumeProfile_BindsTimeframes(t *testing.T) {
	tools := &stubTools{}
	rec := &runLog{}
	srv := New(tools, rec, nil)

	w, body := get(t, srv.Handler(), "/v1/volume-profile/spy?timeframes=1m,%205m,1m")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, []model.Timeframe{model.TF1m, model.TF5m}, tools.tfs)
	assert.Equal(t, "spy", tools.symbol)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, "volume_profile", rec.runs[0].Tool)
	assert.NotEmpty(t, rec.runs[0].ID)
}

func TestTimeframes_Rejected(t *testing.T) {
	srv := New(&stubTools{}, nil, nil)
	for _, target := range []string{
		"/v1/zones/SPY?timeframes=2m",
		"/v1/fvg/SPY?timeframes=1m,5m,15m,30m,1h,1d,1m",
	} {
		w, body := get(t, srv.Handler(), target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, "error", body["status"], target)
		assert.Contains(t, body["message"], "timeframes", target)
	}
}

func TestORB_Periods(t *testing.T) {
	tools := &stubTools{}
	srv := New(tools, nil, nil)

	w, body := get(t, srv.Handler(), "/v1/orb/SPY?periods=5,15")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{5, 15}, tools.periods)
	// tool failures still answer 200 with the error envelope
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "insufficient_data", body["error_kind"])

	w, _ = get(t, srv.Handler(), "/v1/orb/SPY?periods=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = get(t, srv.Handler(), "/v1/orb/SPY?periods=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvents(t *testing.T) {
	rec := &runLog{events: []model.Event{
		{ID: "a", Type: model.EventGapFilled, Symbol: "SPY"},
		{ID: "b", Type: model.EventTargetHit, Symbol: "QQQ"},
	}}
	srv := New(&stubTools{}, rec, nil)

	w, body := get(t, srv.Handler(), "/v1/events/spy?limit=5")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SPY", body["symbol"])
	assert.Len(t, body["events"], 1)

	w, _ = get(t, srv.Handler(), "/v1/events/SPY?limit=1000")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = get(t, srv.Handler(), "/v1/events/not_a_symbol!")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	srv := New(&stubTools{}, nil, nil)
	w, body := get(t, srv.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestStream(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	ts := httptest.NewServer(New(&stubTools{}, nil, hub).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream?symbols=spy"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(model.Event{Type: model.EventTargetHit, Symbol: "QQQ", Label: "bull_1x"})
	hub.Publish(model.Event{Type: model.EventGapFilled, Symbol: "SPY", Label: "5m_x"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt model.Event
	require.NoError(t, json.Unmarshal(msg, &evt))
	assert.Equal(t, model.EventGapFilled, evt.Type)
	assert.Equal(t, "5m_x", evt.Label)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
}
