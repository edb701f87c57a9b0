package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"united/cmd/internal/apperr"
	"united/cmd/internal/storage"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Uniqueness is enforced by the schema: unique constraints on fingerprint and
// display_name, plus a partial unique index allowing a single owner row.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema (default "united").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !storage.ValidIdent(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
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
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const pgIdentityColumns = `user_id, public_key, fingerprint, display_name, encrypted_blob,
	blob_updated_at, genesis_signature, is_owner, created_at`

func (s *PostgresStore) Insert(ctx context.Context, rec Identity) (Identity, error) {
	const op = "identity.PostgresStore.Insert"

	if s == nil || s.pool == nil {
		return Identity{}, apperr.OpError{Op: op, Kind: apperr.ErrValidation, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+storage.Ident(s.schema, "identities")+` (`+pgIdentityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.UserID,
		[]byte(rec.PublicKey),
		rec.Fingerprint,
		rec.DisplayName,
		nonNilBytes(rec.EncryptedBlob),
		rec.BlobUpdatedAt,
		rec.GenesisSignature,
		rec.IsOwner,
		rec.CreatedAt,
	)
	if err != nil {
		if c, ok := storage.PgUniqueViolation(err); ok {
			return Identity{}, classifyConflict(op, c)
		}
		return Identity{}, err
	}
	return rec.clone(), nil
}

func (s *PostgresStore) GetByFingerprint(ctx context.Context, fingerprint string) (Identity, error) {
	return s.getOne(ctx, "identity.PostgresStore.GetByFingerprint", "fingerprint", fingerprint)
}

func (s *PostgresStore) GetByID(ctx context.Context, userID string) (Identity, error) {
	return s.getOne(ctx, "identity.PostgresStore.GetByID", "user_id", userID)
}

func (s *PostgresStore) getOne(ctx context.Context, op, column, value string) (Identity, error) {
	if s == nil || s.pool == nil {
		return Identity{}, apperr.OpError{Op: op, Kind: apperr.ErrValidation, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	var (
		rec Identity
		pub []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT `+pgIdentityColumns+`
		 FROM `+storage.Ident(s.schema, "identities")+`
		 WHERE `+pgx.Identifier{column}.Sanitize()+` = $1`,
		value,
	).Scan(
		&rec.UserID,
		&pub,
		&rec.Fingerprint,
		&rec.DisplayName,
		&rec.EncryptedBlob,
		&rec.BlobUpdatedAt,
		&rec.GenesisSignature,
		&rec.IsOwner,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, notFound(op)
		}
		return Identity{}, err
	}
	rec.PublicKey = pub
	rec.BlobUpdatedAt = rec.BlobUpdatedAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func (s *PostgresStore) UpdateBlob(ctx context.Context, userID string, blob []byte, now time.Time) error {
	const op = "identity.PostgresStore.UpdateBlob"

	if s == nil || s.pool == nil {
		return apperr.OpError{Op: op, Kind: apperr.ErrValidation, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+storage.Ident(s.schema, "identities")+`
		    SET encrypted_blob = $2, blob_updated_at = $3
		  WHERE user_id = $1`,
		userID, nonNilBytes(blob), now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}

func (s *PostgresStore) HasOwner(ctx context.Context) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+storage.Ident(s.schema, "identities")+` WHERE is_owner)`,
	).Scan(&ok)
	return ok, err
}

// classifyConflict maps a constraint name (postgres) or driver message
// (sqlite) to the logical conflict it represents.
func classifyConflict(op, detail string) error {
	switch {
	case strings.Contains(detail, "uq_identities_owner") || strings.Contains(detail, "identities.is_owner"):
		return ErrOwnerTaken
	case strings.Contains(detail, "fingerprint"):
		return conflict(op, FieldFingerprint)
	case strings.Contains(detail, "display_name"):
		return conflict(op, FieldDisplayName)
	default:
		return conflict(op, "unique")
	}
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

var _ Store = (*PostgresStore)(nil)
