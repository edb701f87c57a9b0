package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"united/cmd/internal/storage"
)

// PostgresStore persists refresh tokens in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "united").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !storage.ValidIdent(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: storage.DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table() string { return storage.Ident(s.schema, "refresh_tokens") }

const pgRefreshColumns = `id, user_id, token_hash, issued_at, expires_at, rotated_from, revoked_at`

func scanPgRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.UserID, &r.TokenHash, &r.IssuedAt, &r.ExpiresAt, &r.RotatedFrom, &r.RevokedAt)
	return r, err
}

func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (id, user_id, token_hash, issued_at, expires_at, rotated_from)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.UserID, rec.TokenHash, rec.IssuedAt, rec.ExpiresAt, rec.RotatedFrom,
	)
	return err
}

func (s *PostgresStore) Lookup(ctx context.Context, tokenHash string) (Record, bool, error) {
	rec, err := scanPgRecord(s.pool.QueryRow(ctx,
		`SELECT `+pgRefreshColumns+` FROM `+s.table()+` WHERE token_hash = $1`, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// Rotate locks the old row with SELECT ... FOR UPDATE so concurrent rotations serialize.
func (s *PostgresStore) Rotate(ctx context.Context, oldHash string, now time.Time, next Record) (old Record, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Record{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err = scanPgRecord(tx.QueryRow(ctx,
		`SELECT `+pgRefreshColumns+` FROM `+s.table()+` WHERE token_hash = $1 FOR UPDATE`, oldHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, errRefreshNotFound
		}
		return Record{}, err
	}
	switch {
	case old.RevokedAt != nil:
		return old, errRefreshReused
	case !old.ExpiresAt.After(now):
		return old, errRefreshExpired
	}

	if _, err = tx.Exec(ctx,
		`UPDATE `+s.table()+` SET revoked_at = $1 WHERE id = $2`, now, old.ID,
	); err != nil {
		return old, err
	}
	if _, err = tx.Exec(ctx,
		`INSERT INTO `+s.table()+` (id, user_id, token_hash, issued_at, expires_at, rotated_from)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		next.ID, old.UserID, next.TokenHash, next.IssuedAt, next.ExpiresAt, old.ID,
	); err != nil {
		return old, err
	}
	if err = tx.Commit(ctx); err != nil {
		return old, err
	}
	return old, nil
}

func (s *PostgresStore) RevokeUser(ctx context.Context, userID string, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`, now, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Purge(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

var _ Store = (*PostgresStore)(nil)
