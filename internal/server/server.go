// Package server exposes the analysis tools over HTTP and streams scheduler events over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"MarketStructure/internal/analysis"
	"MarketStructure/internal/model"
	"MarketStructure/internal/recorder"
)

// Tools is the analysis surface served over HTTP. analysis.Analyzer implements it.
type Tools interface {
	VolumeProfile(ctx context.Context, symbol string, tfs []model.Timeframe) *model.VolumeProfileResult
	Zones(ctx context.Context, symbol string, tfs []model.Timeframe) *model.ZonesResult
	ORB(ctx context.Context, symbol string, periods []int) *model.ORBResult
	FVG(ctx context.Context, symbol string, tfs []model.Timeframe) *model.FVGResult
}

type timeframeQuery struct {
	Timeframes []string `json:"timeframes" validate:"max=6,dive,oneof=1m 5m 15m 30m 1h 1d"`
}

type periodQuery struct {
	Periods []int `json:"periods" validate:"max=6,dive,gte=1,lte=390"`
}

type eventsQuery struct {
	Limit int `json:"limit" validate:"gte=1,lte=500"`
}

type errorBody struct {
	Status  model.Status `json:"status"`
	Message string       `json:"message"`
}

// Server routes HTTP requests to the analysis tools.
type Server struct {
	tools    Tools
	rec      recorder.Recorder
	hub      *Hub
	validate *validator.Validate
	router   chi.Router
}

// New builds the router. A nil recorder disables run history.
func New(tools Tools, rec recorder.Recorder, hub *Hub) *Server {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	s := &Server{tools: tools, rec: rec, hub: hub, validate: v}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.Timeout(60*time.Second)).Group(func(r chi.Router) {
			r.Get("/volume-profile/{symbol}", s.handleVolumeProfile)
			r.Get("/zones/{symbol}", s.handleZones)
			r.Get("/orb/{symbol}", s.handleORB)
			r.Get("/fvg/{symbol}", s.handleFVG)
			r.Get("/events/{symbol}", s.handleEvents)
		})
		if s.hub != nil {
			r.Get("/stream", s.hub.ServeWS)
		}
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleVolumeProfile(w http.ResponseWriter, r *http.Request) {
	tfs, ok := s.timeframes(w, r)
	if !ok {
		return
	}
	started := time.Now()
	res := s.tools.VolumeProfile(r.Context(), chi.URLParam(r, "symbol"), tfs)
	s.respond(w, r, analysis.ToolVolumeProfile, &res.Envelope, started, res)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	tfs, ok := s.timeframes(w, r)
	if !ok {
		return
	}
	started := time.Now()
	res := s.tools.Zones(r.Context(), chi.URLParam(r, "symbol"), tfs)
	s.respond(w, r, analysis.ToolZones, &res.Envelope, started, res)
}

func (s *Server) handleORB(w http.ResponseWriter, r *http.Request) {
	q := periodQuery{}
	for _, p := range splitList(r.URL.Query().Get("periods")) {
		n, err := strconv.Atoi(p)
		if err != nil {
			badRequest(w, r, fmt.Sprintf("periods: %q is not a number of minutes", p))
			return
		}
		q.Periods = append(q.Periods, n)
	}
	if !s.check(w, r, q) {
		return
	}
	started := time.Now()
	res := s.tools.ORB(r.Context(), chi.URLParam(r, "symbol"), q.Periods)
	s.respond(w, r, analysis.ToolORB, &res.Envelope, started, res)
}

func (s *Server) handleFVG(w http.ResponseWriter, r *http.Request) {
	tfs, ok := s.timeframes(w, r)
	if !ok {
		return
	}
	started := time.Now()
	res := s.tools.FVG(r.Context(), chi.URLParam(r, "symbol"), tfs)
	s.respond(w, r, analysis.ToolFVG, &res.Envelope, started, res)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := eventsQuery{Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, r, "limit must be a number")
			return
		}
		q.Limit = n
	}
	if !s.check(w, r, q) {
		return
	}
	symbol, err := analysis.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	events, err := s.rec.RecentEvents(symbol, q.Limit)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("load recent events")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorBody{Status: model.StatusError, Message: "failed to load events"})
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	render.JSON(w, r, map[string]interface{}{"symbol": symbol, "events": events})
}

// timeframes binds and validates the comma-separated timeframes parameter.
func (s *Server) timeframes(w http.ResponseWriter, r *http.Request) ([]model.Timeframe, bool) {
	q := timeframeQuery{Timeframes: splitList(r.URL.Query().Get("timeframes"))}
	if !s.check(w, r, q) {
		return nil, false
	}
	tfs, err := analysis.ParseTimeframes(q.Timeframes)
	if err != nil {
		badRequest(w, r, err.Error())
		return nil, false
	}
	return tfs, true
}

func (s *Server) check(w http.ResponseWriter, r *http.Request, q interface{}) bool {
	err := s.validate.Struct(q)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
		}
		badRequest(w, r, strings.Join(msgs, "; "))
		return false
	}
	badRequest(w, r, err.Error())
	return false
}

// respond renders a tool result with 200 whatever its status and records the run.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, tool string, env *model.Envelope, started time.Time, res interface{}) {
	if env.RequestID == "" {
		env.RequestID = middleware.GetReqID(r.Context())
	}
	if err := s.rec.RecordRun(recorder.RunFromEnvelope(tool, *env, time.Since(started))); err != nil {
		log.Error().Err(err).Str("tool", tool).Msg("record run")
	}
	render.JSON(w, r, res)
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorBody{Status: model.StatusError, Message: msg})
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(started)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
