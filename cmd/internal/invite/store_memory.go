package invite

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps invites in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]*Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]*Record)}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := rec
	s.byHash[rec.CodeHash] = &cp
	return nil
}

func (s *MemoryStore) Consume(ctx context.Context, codeHash, userID string, now time.Time) (Invite, bool, error) {
	if err := ctx.Err(); err != nil {
		return Invite{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[codeHash]
	if !ok || rec.ConsumedAt != nil || !rec.ExpiresAt.After(now) {
		return Invite{}, false, nil
	}
	at, by := now, userID
	rec.ConsumedAt = &at
	rec.ConsumedBy = &by
	return rec.Invite, true, nil
}

func (s *MemoryStore) Release(ctx context.Context, codeHash, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[codeHash]
	if ok && rec.ConsumedBy != nil && *rec.ConsumedBy == userID {
		rec.ConsumedAt = nil
		rec.ConsumedBy = nil
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
