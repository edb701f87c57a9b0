package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"united/cmd/internal/storage"
)

// SQLiteStore persists settings in the server_settings table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps a migrated database handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("settings: nil sqlite db")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context) (Record, bool, error) {
	var (
		r         Record
		mode      string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, description, registration_mode, updated_at FROM server_settings WHERE id = 1`,
	).Scan(&r.Name, &r.Description, &mode, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	r.RegistrationMode = Mode(mode)
	r.UpdatedAt = storage.FromMillis(updatedAt)
	return r, true, nil
}

func (s *SQLiteStore) Apply(ctx context.Context, defaults Record, c Change, now time.Time) (Record, error) {
	var (
		r         Record
		mode      string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO server_settings (id, name, description, registration_mode, updated_at)
		 VALUES (1, COALESCE(?1, ?4), COALESCE(?2, ?5), COALESCE(?3, ?6), ?7)
		 ON CONFLICT (id) DO UPDATE SET
		        name              = COALESCE(?1, name),
		        description       = COALESCE(?2, description),
		        registration_mode = COALESCE(?3, registration_mode),
		        updated_at        = ?7
		 RETURNING name, description, registration_mode, updated_at`,
		nullString(c.Name), nullString(c.Description), nullString(modePtr(c.RegistrationMode)),
		defaults.Name, defaults.Description, string(defaults.RegistrationMode),
		storage.ToMillis(now),
	).Scan(&r.Name, &r.Description, &mode, &updatedAt)
	if err != nil {
		return Record{}, err
	}
	r.RegistrationMode = Mode(mode)
	r.UpdatedAt = storage.FromMillis(updatedAt)
	return r, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

var _ Store = (*SQLiteStore)(nil)
