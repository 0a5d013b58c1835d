package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"MarketStructure/internal/model"
)

// SQLiteRecorder persists runs and events to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the scheduler writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			id          TEXT PRIMARY KEY,
			timestamp   INTEGER NOT NULL,
			tool        TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			status      TEXT NOT NULL,
			error_kind  TEXT,
			message     TEXT,
			duration_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON analysis_runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			timestamp  INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			scope      TEXT,
			label      TEXT,
			price      REAL,
			level      REAL,
			detail     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_symbol_ts ON events(symbol, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}
	at := run.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO analysis_runs
		(id, timestamp, tool, symbol, status, error_kind, message, duration_ms)
		VALUES (?,?,?,?,?,?,?,?)`,
		id, at.Unix(), run.Tool, run.Symbol, string(run.Status),
		string(run.ErrorKind), run.Message, run.Duration.Milliseconds(),
	)
	return err
}

func (r *SQLiteRecorder) RecordEvent(evt *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO events
		(id, timestamp, event_type, symbol, scope, label, price, level, detail)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		evt.ID, evt.Time.Unix(), string(evt.Type), evt.Symbol, evt.Scope,
		evt.Label, evt.Price, evt.Level, evt.Detail,
	)
	return err
}

// RecentEvents returns the newest events of symbol first.
func (r *SQLiteRecorder) RecentEvents(symbol string, limit int) ([]model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT id, timestamp, event_type, symbol, scope, label, price, level, detail
		FROM events WHERE symbol = ? ORDER BY timestamp DESC, id LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var (
			e    model.Event
			ts   int64
			kind string
		)
		if err := rows.Scan(&e.ID, &ts, &kind, &e.Symbol, &e.Scope, &e.Label, &e.Price, &e.Level, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = model.EventType(kind)
		e.Time = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountRuns returns how many runs of tool were recorded.
func (r *SQLiteRecorder) CountRuns(tool string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM analysis_runs WHERE tool = ?`, tool).Scan(&n)
	return n, err
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
