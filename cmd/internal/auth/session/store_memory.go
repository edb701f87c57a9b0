package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	mu  sync.Mutex
	rec Record
}

// MemoryStore keeps refresh tokens in process memory with one lock per record.
type MemoryStore struct {
	byHash sync.Map // token hash -> *memoryEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.byHash.Store(rec.TokenHash, &memoryEntry{rec: cloneRecord(rec)})
	return nil
}

func (s *MemoryStore) Lookup(ctx context.Context, tokenHash string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	v, ok := s.byHash.Load(tokenHash)
	if !ok {
		return Record{}, false, nil
	}
	e := v.(*memoryEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneRecord(e.rec), true, nil
}

func (s *MemoryStore) Rotate(ctx context.Context, oldHash string, now time.Time, next Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	v, ok := s.byHash.Load(oldHash)
	if !ok {
		return Record{}, errRefreshNotFound
	}
	e := v.(*memoryEntry)
	e.mu.Lock()
	defer e.mu.Unlock()

	old := cloneRecord(e.rec)
	switch {
	case e.rec.RevokedAt != nil:
		return old, errRefreshReused
	case !e.rec.ExpiresAt.After(now):
		return old, errRefreshExpired
	}

	next.UserID = e.rec.UserID
	from := e.rec.ID
	next.RotatedFrom = &from
	next.RevokedAt = nil
	s.byHash.Store(next.TokenHash, &memoryEntry{rec: cloneRecord(next)})

	at := now
	e.rec.RevokedAt = &at
	return old, nil
}

func (s *MemoryStore) RevokeUser(ctx context.Context, userID string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	s.byHash.Range(func(_, v any) bool {
		e := v.(*memoryEntry)
		e.mu.Lock()
		if e.rec.UserID == userID && e.rec.RevokedAt == nil {
			at := now
			e.rec.RevokedAt = &at
			n++
		}
		e.mu.Unlock()
		return true
	})
	return n, nil
}

func (s *MemoryStore) Purge(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	s.byHash.Range(func(k, v any) bool {
		e := v.(*memoryEntry)
		e.mu.Lock()
		expired := !e.rec.ExpiresAt.After(now)
		e.mu.Unlock()
		if expired {
			s.byHash.Delete(k)
			n++
		}
		return true
	})
	return n, nil
}

func cloneRecord(r Record) Record {
	if r.RotatedFrom != nil {
		v := *r.RotatedFrom
		r.RotatedFrom = &v
	}
	if r.RevokedAt != nil {
		v := *r.RevokedAt
		r.RevokedAt = &v
	}
	return r
}

var _ Store = (*MemoryStore)(nil)
