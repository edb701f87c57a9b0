package settings

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the settings row in process memory.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Get(ctx context.Context) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil {
		return Record{}, false, nil
	}
	return *s.rec, true, nil
}

func (s *MemoryStore) Apply(ctx context.Context, defaults Record, c Change, now time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	base := defaults
	if s.rec != nil {
		base = *s.rec
	}
	next := c.applyTo(base)
	next.UpdatedAt = now
	s.rec = &next
	return next, nil
}

var _ Store = (*MemoryStore)(nil)
