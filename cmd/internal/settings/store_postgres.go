package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"united/cmd/internal/storage"
)

// PostgresStore persists settings in schema.server_settings.
// The pgx pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStore constructs a PostgresStore. An empty schema selects storage.DefaultSchema.
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("settings: nil pool")
	}
	if schema == "" {
		schema = storage.DefaultSchema
	}
	if !storage.ValidIdent(schema) {
		return nil, fmt.Errorf("settings: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

func (s *PostgresStore) Get(ctx context.Context) (Record, bool, error) {
	var (
		r    Record
		mode string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT name, description, registration_mode, updated_at
		   FROM `+storage.Ident(s.schema, "server_settings")+`
		  WHERE id = 1`,
	).Scan(&r.Name, &r.Description, &mode, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	r.RegistrationMode = Mode(mode)
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, true, nil
}

func (s *PostgresStore) Apply(ctx context.Context, defaults Record, c Change, now time.Time) (Record, error) {
	var (
		r    Record
		mode string
	)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+storage.Ident(s.schema, "server_settings")+` AS cur
		        (id, name, description, registration_mode, updated_at)
		 VALUES (1, COALESCE($1::text, $4::text), COALESCE($2::text, $5::text), COALESCE($3::text, $6::text), $7)
		 ON CONFLICT (id) DO UPDATE SET
		        name              = COALESCE($1::text, cur.name),
		        description       = COALESCE($2::text, cur.description),
		        registration_mode = COALESCE($3::text, cur.registration_mode),
		        updated_at        = $7
		 RETURNING name, description, registration_mode, updated_at`,
		c.Name, c.Description, modePtr(c.RegistrationMode),
		defaults.Name, defaults.Description, string(defaults.RegistrationMode),
		now,
	).Scan(&r.Name, &r.Description, &mode, &r.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	r.RegistrationMode = Mode(mode)
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func modePtr(m *Mode) *string {
	if m == nil {
		return nil
	}
	s := string(*m)
	return &s
}

var _ Store = (*PostgresStore)(nil)
