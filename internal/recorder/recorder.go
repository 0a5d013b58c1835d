package recorder

import (
	"time"

	"MarketStructure/internal/model"
)

// Run is one completed tool request.
type Run struct {
	ID        string
	Tool      string
	Symbol    string
	Status    model.Status
	ErrorKind model.ErrorKind
	Message   string
	Duration  time.Duration
	At        time.Time
}

// RunFromEnvelope builds a Run from a tool result envelope.
func RunFromEnvelope(tool string, env model.Envelope, took time.Duration) *Run {
	return &Run{
		ID:        env.RequestID,
		Tool:      tool,
		Symbol:    env.Symbol,
		Status:    env.Status,
		ErrorKind: env.ErrorKind,
		Message:   env.Message,
		Duration:  took,
		At:        env.Timestamp,
	}
}

// Recorder persists analysis history.
type Recorder interface {
	RecordRun(run *Run) error
	RecordEvent(evt *model.Event) error
	RecentEvents(symbol string, limit int) ([]model.Event, error)
	Close() error
}

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ *Run) error                              { return nil }
func (n *NoopRecorder) RecordEvent(_ *model.Event) error                    { return nil }
func (n *NoopRecorder) RecentEvents(_ string, _ int) ([]model.Event, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                        { return nil }
