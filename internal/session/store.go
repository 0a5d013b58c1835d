package session

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"MarketStructure/internal/model"
)

// Store persists session-scoped ORB and gap state between polling calls. Values returned by
// Load are private copies; callers Save them back after advancing.
type Store interface {
	LoadORB(ctx context.Context, key model.SessionKey) (*model.ORBSession, bool, error)
	SaveORB(ctx context.Context, s *model.ORBSession) error
	LoadGaps(ctx context.Context, key model.SessionKey) (*model.GapBook, bool, error)
	SaveGaps(ctx context.Context, b *model.GapBook) error
	// Purge drops every entry whose trading date sorts before date.
	Purge(ctx context.Context, date string) (int, error)
}

type snapshot struct {
	ORB  map[string]*model.ORBSession `json:"orb"`
	Gaps map[string]*model.GapBook    `json:"gaps"`
}

func newSnapshot() *snapshot {
	return &snapshot{ORB: map[string]*model.ORBSession{}, Gaps: map[string]*model.GapBook{}}
}

func (s *snapshot) purge(date string) int {
	n := 0
	for k, v := range s.ORB {
		if v.Key.Date < date {
			delete(s.ORB, k)
			n++
		}
	}
	for k, v := range s.Gaps {
		if v.Key.Date < date {
			delete(s.Gaps, k)
			n++
		}
	}
	return n
}

// clone deep-copies v through its JSON form.
func clone[T any](v *T) (*T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MemoryStore keeps state in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	snap *snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snap: newSnapshot()}
}

func (m *MemoryStore) LoadORB(_ context.Context, key model.SessionKey) (*model.ORBSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snap.ORB[key.String()]
	if !ok {
		return nil, false, nil
	}
	c, err := clone(s)
	return c, err == nil, err
}

func (m *MemoryStore) SaveORB(_ context.Context, s *model.ORBSession) error {
	c, err := clone(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.ORB[s.Key.String()] = c
	return nil
}

func (m *MemoryStore) LoadGaps(_ context.Context, key model.SessionKey) (*model.GapBook, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.snap.Gaps[key.String()]
	if !ok {
		return nil, false, nil
	}
	c, err := clone(b)
	return c, err == nil, err
}

func (m *MemoryStore) SaveGaps(_ context.Context, b *model.GapBook) error {
	c, err := clone(b)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Gaps[b.Key.String()] = c
	return nil
}

func (m *MemoryStore) Purge(_ context.Context, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.purge(date), nil
}
