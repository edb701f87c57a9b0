package challenge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type memoryEntry struct {
	c        Challenge
	consumed atomic.Bool
}

// MemoryStore keeps challenges in process memory. Consumption is a
// compare-and-swap on the entry, so ids never contend with each other.
type MemoryStore struct {
	byID sync.Map // id -> *memoryEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Put(ctx context.Context, c Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Bytes = append([]byte(nil), c.Bytes...)
	s.byID.Store(c.ID, &memoryEntry{c: c})
	return nil
}

func (s *MemoryStore) Consume(ctx context.Context, id string, now time.Time) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := s.byID.Load(id)
	if !ok {
		return nil, false, nil
	}
	e := v.(*memoryEntry)
	if !e.c.ExpiresAt.After(now) {
		return nil, false, nil
	}
	if !e.consumed.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	return append([]byte(nil), e.c.Bytes...), true, nil
}

func (s *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	s.byID.Range(func(k, v any) bool {
		if !v.(*memoryEntry).c.ExpiresAt.After(now) {
			s.byID.Delete(k)
			n++
		}
		return true
	})
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
