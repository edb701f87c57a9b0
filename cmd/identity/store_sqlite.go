package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"united/cmd/internal/storage"
)

// SQLiteStore implements identity persistence over SQLite.
// The *sql.DB is owned by the caller.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps a migrated database handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil sqlite db")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteIdentityColumns = `user_id, public_key, fingerprint, display_name, encrypted_blob,
	blob_updated_at, genesis_signature, is_owner, created_at`

func (s *SQLiteStore) Insert(ctx context.Context, rec Identity) (Identity, error) {
	const op = "identity.SQLiteStore.Insert"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (`+sqliteIdentityColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID,
		[]byte(rec.PublicKey),
		rec.Fingerprint,
		rec.DisplayName,
		nonNilBytes(rec.EncryptedBlob),
		storage.ToMillis(rec.BlobUpdatedAt),
		rec.GenesisSignature,
		boolInt(rec.IsOwner),
		storage.ToMillis(rec.CreatedAt),
	)
	if err != nil {
		if detail, ok := storage.SQLiteUniqueViolation(err); ok {
			return Identity{}, classifyConflict(op, detail)
		}
		return Identity{}, err
	}
	return rec.clone(), nil
}

func (s *SQLiteStore) GetByFingerprint(ctx context.Context, fingerprint string) (Identity, error) {
	return s.getOne(ctx, "identity.SQLiteStore.GetByFingerprint",
		`SELECT `+sqliteIdentityColumns+` FROM identities WHERE fingerprint = ?`, fingerprint)
}

func (s *SQLiteStore) GetByID(ctx context.Context, userID string) (Identity, error) {
	return s.getOne(ctx, "identity.SQLiteStore.GetByID",
		`SELECT `+sqliteIdentityColumns+` FROM identities WHERE user_id = ?`, userID)
}

func (s *SQLiteStore) getOne(ctx context.Context, op, query string, arg string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	var (
		rec               Identity
		pub               []byte
		blobAt, createdAt int64
		owner             int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&rec.UserID,
		&pub,
		&rec.Fingerprint,
		&rec.DisplayName,
		&rec.EncryptedBlob,
		&blobAt,
		&rec.GenesisSignature,
		&owner,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, notFound(op)
		}
		return Identity{}, err
	}
	rec.PublicKey = pub
	rec.BlobUpdatedAt = storage.FromMillis(blobAt)
	rec.CreatedAt = storage.FromMillis(createdAt)
	rec.IsOwner = owner == 1
	return rec, nil
}

func (s *SQLiteStore) UpdateBlob(ctx context.Context, userID string, blob []byte, now time.Time) error {
	const op = "identity.SQLiteStore.UpdateBlob"

	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE identities SET encrypted_blob = ?, blob_updated_at = ? WHERE user_id = ?`,
		nonNilBytes(blob), storage.ToMillis(now), userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(op)
	}
	return nil
}

func (s *SQLiteStore) HasOwner(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM identities WHERE is_owner = 1`).Scan(&n)
	return n > 0, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
