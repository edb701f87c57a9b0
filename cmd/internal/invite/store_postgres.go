package invite

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

// PostgresStore persists invites in PostgreSQL.
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
			return fmt.Errorf("invite: invalid schema identifier")
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
		return nil, fmt.Errorf("invite: nil pool")
	}
	return st, nil
}

// Create inserts a new invite record.
func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+storage.Ident(s.schema, "invites")+` (
		     id, code_hash, created_by, created_at, expires_at
		   ) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID,
		rec.CodeHash,
		rec.CreatedBy,
		rec.CreatedAt,
		rec.ExpiresAt,
	)
	return err
}

// Consume marks the invite used in a single conditional UPDATE.
func (s *PostgresStore) Consume(ctx context.Context, codeHash, userID string, now time.Time) (Invite, bool, error) {
	var out Invite
	err := s.pool.QueryRow(ctx,
		`UPDATE `+storage.Ident(s.schema, "invites")+`
		    SET consumed_at = $1,
		        consumed_by = $2
		  WHERE code_hash = $3
		    AND consumed_at IS NULL
		    AND expires_at > $1
		RETURNING id, COALESCE(created_by, ''), created_at, expires_at, consumed_at, consumed_by`,
		now,
		userID,
		codeHash,
	).Scan(
		&out.ID,
		&out.CreatedBy,
		&out.CreatedAt,
		&out.ExpiresAt,
		&out.ConsumedAt,
		&out.ConsumedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invite{}, false, nil
		}
		return Invite{}, false, err
	}
	return out, true, nil
}

// Release clears the consumption mark left by userID.
func (s *PostgresStore) Release(ctx context.Context, codeHash, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE `+storage.Ident(s.schema, "invites")+`
		    SET consumed_at = NULL, consumed_by = NULL
		  WHERE code_hash = $1 AND consumed_by = $2`,
		codeHash, userID,
	)
	return err
}

var _ Store = (*PostgresStore)(nil)
