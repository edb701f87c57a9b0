package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"united/cmd/internal/storage"
)

// SQLiteStore persists refresh tokens in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps a migrated database handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("session: nil sqlite db")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteRefreshColumns = `id, user_id, token_hash, issued_at, expires_at, rotated_from, revoked_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (Record, error) {
	var (
		r                   Record
		issuedAt, expiresAt int64
		rotatedFrom         sql.NullString
		revokedAt           sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.TokenHash, &issuedAt, &expiresAt, &rotatedFrom, &revokedAt); err != nil {
		return Record{}, err
	}
	r.IssuedAt = storage.FromMillis(issuedAt)
	r.ExpiresAt = storage.FromMillis(expiresAt)
	if rotatedFrom.Valid {
		r.RotatedFrom = &rotatedFrom.String
	}
	r.RevokedAt = storage.FromNullMillis(revokedAt)
	return r, nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec Record) error {
	var from sql.NullString
	if rec.RotatedFrom != nil {
		from = sql.NullString{String: *rec.RotatedFrom, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, rotated_from) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.TokenHash, storage.ToMillis(rec.IssuedAt), storage.ToMillis(rec.ExpiresAt), from,
	)
	return err
}

func (s *SQLiteStore) Lookup(ctx context.Context, tokenHash string) (Record, bool, error) {
	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRefreshColumns+` FROM refresh_tokens WHERE token_hash = ?`, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// Rotate consumes the old row with a conditional UPDATE inside a transaction.
func (s *SQLiteStore) Rotate(ctx context.Context, oldHash string, now time.Time, next Record) (old Record, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	nowMs := storage.ToMillis(now)
	old, err = scanSQLiteRecord(tx.QueryRowContext(ctx,
		`UPDATE refresh_tokens
		    SET revoked_at = ?1
		  WHERE token_hash = ?2
		    AND revoked_at IS NULL
		    AND expires_at > ?1
		RETURNING `+sqliteRefreshColumns,
		nowMs, oldHash,
	))
	if errors.Is(err, sql.ErrNoRows) {
		prev, lerr := scanSQLiteRecord(tx.QueryRowContext(ctx,
			`SELECT `+sqliteRefreshColumns+` FROM refresh_tokens WHERE token_hash = ?`, oldHash))
		switch {
		case errors.Is(lerr, sql.ErrNoRows):
			return Record{}, errRefreshNotFound
		case lerr != nil:
			return Record{}, lerr
		case prev.RevokedAt != nil:
			return prev, errRefreshReused
		default:
			return prev, errRefreshExpired
		}
	}
	if err != nil {
		return Record{}, err
	}
	// RETURNING reports the row after the update.
	old.RevokedAt = nil

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, rotated_from) VALUES (?, ?, ?, ?, ?, ?)`,
		next.ID, old.UserID, next.TokenHash, storage.ToMillis(next.IssuedAt), storage.ToMillis(next.ExpiresAt), old.ID,
	); err != nil {
		return old, err
	}
	if err = tx.Commit(); err != nil {
		return old, err
	}
	return old, nil
}

func (s *SQLiteStore) RevokeUser(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		storage.ToMillis(now), userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Purge(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, storage.ToMillis(now))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ Store = (*SQLiteStore)(nil)
