package store

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	config "example.com/blogapi/internal/init"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

//go:embed migrations/cassandra/*.cql
var cassandraMigrations embed.FS

// Migrate applies the migrations of the configured backend. The memory
// backend has nothing to migrate.
func Migrate(cfg *config.Config) error {
	switch cfg.StorageBackend {
	case BackendPostgres:
		return MigratePostgres(cfg.PostgresDSN)
	case BackendCassandra:
		if err := ensureKeyspace(cfg); err != nil {
			return fmt.Errorf("failed to ensure keyspace: %w", err)
		}
		return MigrateCassandra(cfg)
	default:
		logg.Info("store", "No migrations for backend "+cfg.StorageBackend)
		return nil
	}
}

// MigratePostgres runs the embedded SQL migrations against dsn.
func MigratePostgres(dsn string) error {
	return runMigrations(postgresMigrations, "migrations/postgres", PgxMigrateURL(dsn))
}

// MigrateCassandra runs the embedded CQL migrations against the configured keyspace.
func MigrateCassandra(cfg *config.Config) error {
	dbURL := fmt.Sprintf(
		"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
		cfg.CassandraHost, cfg.CassandraKeyspace,
	)
	return runMigrations(cassandraMigrations, "migrations/cassandra", dbURL)
}

// PgxMigrateURL rewrites a postgres:// DSN to the pgx5:// scheme registered by
// the migrate pgx/v5 driver.
func PgxMigrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// --- Migration runner ---

func runMigrations(fsys embed.FS, dir, dbURL string) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to open migrations %s: %w", dir, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}
