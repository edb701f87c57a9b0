package challenge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"united/cmd/internal/storage"
)

// SQLiteStore persists challenges in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps a migrated database handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("challenge: nil sqlite db")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, c Challenge) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO challenges (id, bytes, issued_at, expires_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Bytes, storage.ToMillis(c.IssuedAt), storage.ToMillis(c.ExpiresAt),
	)
	return err
}

func (s *SQLiteStore) Consume(ctx context.Context, id string, now time.Time) ([]byte, bool, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx,
		`UPDATE challenges
		    SET consumed_at = ?1
		  WHERE id = ?2
		    AND consumed_at IS NULL
		    AND expires_at > ?1
		RETURNING bytes`,
		storage.ToMillis(now), id,
	).Scan(&b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *SQLiteStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at <= ?`, storage.ToMillis(now))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ Store = (*SQLiteStore)(nil)
