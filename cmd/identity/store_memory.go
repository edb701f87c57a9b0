package identity

import (
	"context"
	"sync"
	"time"
)

const ownerKey = "owner"

// MemoryStore keeps identities in process memory.
//
// Writers take key-scoped locks on the fingerprint and display name (and the
// owner slot when claiming ownership), so unrelated registrations never
// contend with each other.
type MemoryStore struct {
	keys *keyLocks

	mu      sync.RWMutex
	byID    map[string]Identity
	byFpr   map[string]string
	byName  map[string]string
	ownerID string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:   newKeyLocks(),
		byID:   make(map[string]Identity),
		byFpr:  make(map[string]string),
		byName: make(map[string]string),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, rec Identity) (Identity, error) {
	const op = "identity.MemoryStore.Insert"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	keys := []string{"fpr:" + rec.Fingerprint, "name:" + rec.DisplayName}
	if rec.IsOwner {
		keys = append(keys, ownerKey)
	}
	unlock := s.keys.lock(keys...)
	defer unlock()

	s.mu.RLock()
	_, fprTaken := s.byFpr[rec.Fingerprint]
	_, nameTaken := s.byName[rec.DisplayName]
	ownerTaken := s.ownerID != ""
	s.mu.RUnlock()

	switch {
	case fprTaken:
		return Identity{}, conflict(op, FieldFingerprint)
	case nameTaken:
		return Identity{}, conflict(op, FieldDisplayName)
	case rec.IsOwner && ownerTaken:
		return Identity{}, ErrOwnerTaken
	}

	stored := rec.clone()

	s.mu.Lock()
	s.byID[stored.UserID] = stored
	s.byFpr[stored.Fingerprint] = stored.UserID
	s.byName[stored.DisplayName] = stored.UserID
	if stored.IsOwner {
		s.ownerID = stored.UserID
	}
	s.mu.Unlock()

	return stored.clone(), nil
}

func (s *MemoryStore) GetByFingerprint(ctx context.Context, fingerprint string) (Identity, error) {
	const op = "identity.MemoryStore.GetByFingerprint"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byFpr[fingerprint]
	if !ok {
		return Identity{}, notFound(op)
	}
	return s.byID[id].clone(), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, userID string) (Identity, error) {
	const op = "identity.MemoryStore.GetByID"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[userID]
	if !ok {
		return Identity{}, notFound(op)
	}
	return rec.clone(), nil
}

func (s *MemoryStore) UpdateBlob(ctx context.Context, userID string, blob []byte, now time.Time) error {
	const op = "identity.MemoryStore.UpdateBlob"

	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return notFound(op)
	}
	rec.EncryptedBlob = append([]byte(nil), blob...)
	rec.BlobUpdatedAt = now
	s.byID[userID] = rec
	return nil
}

func (s *MemoryStore) HasOwner(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownerID != "", nil
}

var _ Store = (*MemoryStore)(nil)
