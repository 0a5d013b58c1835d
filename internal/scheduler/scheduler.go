package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"MarketStructure/internal/analysis"
	"MarketStructure/internal/model"
	"MarketStructure/internal/notifier"
	"MarketStructure/internal/recorder"
	"MarketStructure/internal/session"
)

// Analyst runs the stateful tools and exposes their raw state. analysis.Analyzer implements it.
type Analyst interface {
	ORBStates(ctx context.Context, symbol string, periods []int) (*model.ORBResult, map[int]*model.ORBState)
	FVGGaps(ctx context.Context, symbol string, tfs []model.Timeframe) (*model.FVGResult, map[model.Timeframe][]*model.FairValueGap)
}

// Publisher fans events out to live subscribers.
type Publisher interface {
	Publish(evt model.Event)
}

// Scheduler polls the watch list on a cron schedule and alerts on state changes.
type Scheduler struct {
	Cron      *cron.Cron
	Analyst   Analyst
	Notifier  notifier.Notifier
	Recorder  recorder.Recorder
	Publisher Publisher
	Store     session.Store
	Calendar  *session.Calendar
	Watchlist []string
	Ctx       context.Context

	mu    sync.Mutex
	last  map[string]*snapshot
	now   func() time.Time
	polls sync.Mutex
}

// NewScheduler creates a new Scheduler. A nil publisher or store disables that output.
func NewScheduler(ctx context.Context, analyst Analyst, n notifier.Notifier, rec recorder.Recorder, pub Publisher, store session.Store, cal *session.Calendar, watchlist []string) *Scheduler {
	if n == nil {
		n = notifier.Noop{}
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if cal == nil {
		cal = session.DefaultCalendar()
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds(), cron.WithLocation(cal.Location())),
		Analyst:   analyst,
		Notifier:  n,
		Recorder:  rec,
		Publisher: pub,
		Store:     store,
		Calendar:  cal,
		Watchlist: watchlist,
		Ctx:       ctx,
		last:      make(map[string]*snapshot),
		now:       time.Now,
	}
}

// RegisterAll registers the watch-list poll and the session-state purge.
func (s *Scheduler) RegisterAll(pollCron, purgeCron string) error {
	if _, err := s.Cron.AddFunc(pollCron, s.pollTask); err != nil {
		return fmt.Errorf("register poll task: %w", err)
	}
	if s.Store != nil {
		if _, err := s.Cron.AddFunc(purgeCron, s.purgeTask); err != nil {
			return fmt.Errorf("register purge task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Strs("watchlist", s.Watchlist).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) pollTask() {
	if st := s.Calendar.Status(s.now()); st != session.RegularHours {
		log.Debug().Str("session", st).Msg("outside regular hours, skipping poll")
		return
	}
	// overlapping ticks would diff against a half-updated snapshot
	if !s.polls.TryLock() {
		log.Warn().Msg("previous poll still running, skipping")
		return
	}
	defer s.polls.Unlock()

	for _, sym := range s.Watchlist {
		if s.Ctx.Err() != nil {
			return
		}
		s.Dispatch(s.Poll(s.Ctx, sym))
	}
}

// RunPollNow polls the watch list once regardless of session hours.
func (s *Scheduler) RunPollNow() {
	log.Info().Msg("manual poll triggered")
	s.polls.Lock()
	defer s.polls.Unlock()
	for _, sym := range s.Watchlist {
		s.Dispatch(s.Poll(s.Ctx, sym))
	}
}

func (s *Scheduler) purgeTask() {
	date := s.Calendar.DateKey(s.Calendar.TradingDate(s.now()))
	n, err := s.Store.Purge(s.Ctx, date)
	if err != nil {
		log.Error().Err(err).Msg("purge session state")
		return
	}
	s.mu.Lock()
	for sym, snap := range s.last {
		if snap.date < date {
			delete(s.last, sym)
		}
	}
	s.mu.Unlock()
	log.Info().Int("purged", n).Str("before", date).Msg("session state purged")
}

// Poll runs ORB and FVG for symbol and returns the events since the previous poll. The first
// poll of a trading date only records a baseline.
func (s *Scheduler) Poll(ctx context.Context, symbol string) []model.Event {
	started := time.Now()
	orbRes, states := s.Analyst.ORBStates(ctx, symbol, nil)
	s.recordRun(analysis.ToolORB, orbRes.Envelope, time.Since(started))

	started = time.Now()
	fvgRes, gaps := s.Analyst.FVGGaps(ctx, symbol, nil)
	s.recordRun(analysis.ToolFVG, fvgRes.Envelope, time.Since(started))

	if orbRes.Status == model.StatusError && fvgRes.Status == model.StatusError {
		log.Warn().Str("symbol", symbol).Str("orb", orbRes.Message).Str("fvg", fvgRes.Message).Msg("poll failed")
		return nil
	}

	cur := newSnapshot(orbRes.TradingDate, states, orbRes.Squeeze, gaps)
	s.mu.Lock()
	prev := s.last[symbol]
	if prev != nil && prev.date == cur.date {
		// a failed tool keeps its last view so its next success is not mistaken for news
		if orbRes.Status == model.StatusError {
			cur.orb, cur.squeeze = prev.orb, prev.squeeze
		}
		if fvgRes.Status == model.StatusError {
			cur.gaps = prev.gaps
		}
	}
	s.last[symbol] = cur
	s.mu.Unlock()

	if prev == nil || prev.date != cur.date {
		return nil
	}
	return diff(symbol, prev, cur, s.now())
}

// Dispatch records, publishes and sends each event.
func (s *Scheduler) Dispatch(events []model.Event) {
	for i := range events {
		e := &events[i]
		if err := s.Recorder.RecordEvent(e); err != nil {
			log.Error().Err(err).Str("event", string(e.Type)).Msg("record event")
		}
		if s.Publisher != nil {
			s.Publisher.Publish(*e)
		}
		s.trySend(notifier.FormatEvent(*e))
	}
}

func (s *Scheduler) trySend(text string) {
	var err error
	if tg, ok := s.Notifier.(*notifier.TelegramNotifier); ok {
		err = tg.SendWithRetry(s.Ctx, text, 3)
	} else {
		err = s.Notifier.Send(s.Ctx, text)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to send alert")
	}
}

func (s *Scheduler) recordRun(tool string, env model.Envelope, took time.Duration) {
	if err := s.Recorder.RecordRun(recorder.RunFromEnvelope(tool, env, took)); err != nil {
		log.Error().Err(err).Str("tool", tool).Msg("record run")
	}
}
