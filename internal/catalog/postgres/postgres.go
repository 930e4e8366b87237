// Package postgres stores schema catalogs in PostgreSQL and loads them into
// immutable in-memory snapshots.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists catalog definitions.
type Store struct {
	db *sql.DB
}

// Open connects to the PostgreSQL database at the given URL, configures the
// connection pool, and runs any pending migrations.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already migrated database handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads every entity and returns a validated snapshot.
func (s *Store) Load(ctx context.Context) (*catalog.Static, error) {
	entities, err := queryEntities(ctx, s.db)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*catalog.Entity, len(entities))
	for i := range entities {
		byName[entities[i].Name] = &entities[i]
	}

	if err := queryFields(ctx, s.db, byName); err != nil {
		return nil, err
	}
	if err := queryAssociations(ctx, s.db, byName); err != nil {
		return nil, err
	}

	return catalog.New(entities...)
}

// Replace swaps the stored catalog for entities in a single transaction.
func (s *Store) Replace(ctx context.Context, entities []catalog.Entity) error {
	c, err := catalog.New(entities...)
	if err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := replaceAll(ctx, tx, c.Definitions()); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
