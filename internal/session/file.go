package session

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"MarketStructure/internal/model"
)

// FileStore keeps state in a single JSON file, rewritten on every save.
type FileStore struct {
	mu       sync.Mutex
	snap     *snapshot
	filePath string
}

// NewFileStore loads filePath, starting empty when it does not exist yet.
func NewFileStore(filePath string) (*FileStore, error) {
	snap, err := loadSnapshot(filePath)
	if err != nil {
		return nil, err
	}
	return &FileStore{snap: snap, filePath: filePath}, nil
}

func loadSnapshot(filePath string) (*snapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return newSnapshot(), nil
		}
		return nil, err
	}
	snap := newSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decode session state %s: %w", filePath, err)
	}
	if snap.ORB == nil {
		snap.ORB = map[string]*model.ORBSession{}
	}
	if snap.Gaps == nil {
		snap.Gaps = map[string]*model.GapBook{}
	}
	return snap, nil
}

// save writes the snapshot; callers hold mu.
func (f *FileStore) save() error {
	data, err := json.MarshalIndent(f.snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.filePath, data, 0644)
}

func (f *FileStore) LoadORB(_ context.Context, key model.SessionKey) (*model.ORBSession, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snap.ORB[key.String()]
	if !ok {
		return nil, false, nil
	}
	c, err := clone(s)
	return c, err == nil, err
}

func (f *FileStore) SaveORB(_ context.Context, s *model.ORBSession) error {
	c, err := clone(s)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.ORB[s.Key.String()] = c
	return f.save()
}

func (f *FileStore) LoadGaps(_ context.Context, key model.SessionKey) (*model.GapBook, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.snap.Gaps[key.String()]
	if !ok {
		return nil, false, nil
	}
	c, err := clone(b)
	return c, err == nil, err
}

func (f *FileStore) SaveGaps(_ context.Context, b *model.GapBook) error {
	c, err := clone(b)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Gaps[b.Key.String()] = c
	return f.save()
}

func (f *FileStore) Purge(_ context.Context, date string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.snap.purge(date)
	if n == 0 {
		return 0, nil
	}
	return n, f.save()
}
