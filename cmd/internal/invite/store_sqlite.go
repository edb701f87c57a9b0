package invite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"united/cmd/internal/storage"
)

// SQLiteStore persists invites in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps a migrated database handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("invite: nil sqlite db")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invites (id, code_hash, created_by, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.CodeHash, rec.CreatedBy, storage.ToMillis(rec.CreatedAt), storage.ToMillis(rec.ExpiresAt),
	)
	return err
}

func (s *SQLiteStore) Consume(ctx context.Context, codeHash, userID string, now time.Time) (Invite, bool, error) {
	var (
		out                  Invite
		createdAt, expiresAt int64
		consumedAt           sql.NullInt64
		consumedBy           sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`UPDATE invites
		    SET consumed_at = ?1, consumed_by = ?2
		  WHERE code_hash = ?3
		    AND consumed_at IS NULL
		    AND expires_at > ?1
		RETURNING id, COALESCE(created_by, ''), created_at, expires_at, consumed_at, consumed_by`,
		storage.ToMillis(now), userID, codeHash,
	).Scan(&out.ID, &out.CreatedBy, &createdAt, &expiresAt, &consumedAt, &consumedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Invite{}, false, nil
		}
		return Invite{}, false, err
	}
	out.CreatedAt = storage.FromMillis(createdAt)
	out.ExpiresAt = storage.FromMillis(expiresAt)
	out.ConsumedAt = storage.FromNullMillis(consumedAt)
	if consumedBy.Valid {
		out.ConsumedBy = &consumedBy.String
	}
	return out, true, nil
}

func (s *SQLiteStore) Release(ctx context.Context, codeHash, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE invites SET consumed_at = NULL, consumed_by = NULL WHERE code_hash = ? AND consumed_by = ?`,
		codeHash, userID,
	)
	return err
}

var _ Store = (*SQLiteStore)(nil)
