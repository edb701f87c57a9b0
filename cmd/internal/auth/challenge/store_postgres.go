package challenge

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

// PostgresStore persists challenges in PostgreSQL.
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
			return fmt.Errorf("challenge: invalid schema identifier")
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
		return nil, fmt.Errorf("challenge: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) Put(ctx context.Context, c Challenge) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+storage.Ident(s.schema, "challenges")+` (id, bytes, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		c.ID, c.Bytes, c.IssuedAt, c.ExpiresAt,
	)
	return err
}

// Consume flips consumed_at in one conditional UPDATE.
func (s *PostgresStore) Consume(ctx context.Context, id string, now time.Time) ([]byte, bool, error) {
	var b []byte
	err := s.pool.QueryRow(ctx,
		`UPDATE `+storage.Ident(s.schema, "challenges")+`
		    SET consumed_at = $1
		  WHERE id = $2
		    AND consumed_at IS NULL
		    AND expires_at > $1
		RETURNING bytes`,
		now, id,
	).Scan(&b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+storage.Ident(s.schema, "challenges")+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

var _ Store = (*PostgresStore)(nil)
