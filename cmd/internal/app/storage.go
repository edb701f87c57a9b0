package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"united/cmd/identity"
	"united/cmd/internal/auth/challenge"
	"united/cmd/internal/auth/session"
	"united/cmd/internal/invite"
	"united/cmd/internal/settings"
	"united/cmd/internal/storage"
)

// backends holds one store per component, all on the same driver.
type backends struct {
	driver string

	identities identity.Store
	challenges challenge.Store
	refresh    session.Store
	settings   settings.Store
	invites    invite.Store

	pool *pgxpool.Pool
	db   *sql.DB
}

// openBackends connects the configured driver and runs its migrations.
func openBackends(ctx context.Context, cfg StorageConfig, driver string, log Logger) (*backends, error) {
	switch driver {
	case DriverMemory:
		log.Warn("db.disabled.inmemory_store", "reason", "state is lost on restart")
		return &backends{
			driver:     driver,
			identities: identity.NewMemoryStore(),
			challenges: challenge.NewMemoryStore(),
			refresh:    session.NewMemoryStore(),
			settings:   settings.NewMemoryStore(),
			invites:    invite.NewMemoryStore(),
		}, nil

	case DriverPostgres:
		pool, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, err
		}
		if err := storage.MigratePostgres(ctx, pool, cfg.Schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		b, err := postgresBackends(pool, cfg.Schema)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("db.enabled.postgres_store", "schema", cfg.Schema)
		return b, nil

	case DriverSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b, err := sqliteBackends(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("db.enabled.sqlite_store", "path", cfg.SQLitePath)
		return b, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

func postgresBackends(pool *pgxpool.Pool, schema string) (*backends, error) {
	b := &backends{driver: DriverPostgres, pool: pool}
	var err error
	if b.identities, err = identity.NewPostgresStore(pool, identity.WithSchema(schema)); err != nil {
		return nil, err
	}
	if b.challenges, err = challenge.NewPostgresStore(pool, challenge.WithSchema(schema)); err != nil {
		return nil, err
	}
	if b.refresh, err = session.NewPostgresStore(pool, session.WithSchema(schema)); err != nil {
		return nil, err
	}
	if b.settings, err = settings.NewPostgresStore(pool, schema); err != nil {
		return nil, err
	}
	if b.invites, err = invite.NewPostgresStore(pool, invite.WithSchema(schema)); err != nil {
		return nil, err
	}
	return b, nil
}

func sqliteBackends(db *sql.DB) (*backends, error) {
	b := &backends{driver: DriverSQLite, db: db}
	var err error
	if b.identities, err = identity.NewSQLiteStore(db); err != nil {
		return nil, err
	}
	if b.challenges, err = challenge.NewSQLiteStore(db); err != nil {
		return nil, err
	}
	if b.refresh, err = session.NewSQLiteStore(db); err != nil {
		return nil, err
	}
	if b.settings, err = settings.NewSQLiteStore(db); err != nil {
		return nil, err
	}
	if b.invites, err = invite.NewSQLiteStore(db); err != nil {
		return nil, err
	}
	return b, nil
}

// persistent reports whether state survives a restart.
func (b *backends) persistent() bool { return b.driver != DriverMemory }

// ping checks the database within timeout. The memory driver is always ready.
func (b *backends) ping(ctx context.Context, timeout time.Duration) error {
	switch {
	case b.pool != nil:
		return storage.PingPostgres(ctx, b.pool, timeout)
	case b.db != nil:
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return b.db.PingContext(pctx)
	default:
		return nil
	}
}

func (b *backends) Close() error {
	var errs []error
	if b.pool != nil {
		b.pool.Close()
	}
	if b.db != nil {
		errs = append(errs, b.db.Close())
	}
	return errors.Join(errs...)
}
