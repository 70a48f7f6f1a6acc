package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQL keeps one row per cart key in the line_items table.
type SQL struct {
	db         *sql.DB
	readQuery  string
	writeQuery string
}

func NewSQLite(db *sql.DB) *SQL {
	return &SQL{
		db:        db,
		readQuery: `SELECT payload FROM line_items WHERE cart_key = ?`,
		writeQuery: `INSERT INTO line_items (cart_key, payload, updated_at) VALUES (?, ?, ?)
		             ON CONFLICT (cart_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
	}
}

func NewPostgres(db *sql.DB) *SQL {
	return &SQL{
		db:        db,
		readQuery: `SELECT payload FROM line_items WHERE cart_key = $1`,
		writeQuery: `INSERT INTO line_items (cart_key, payload, updated_at) VALUES ($1, $2, $3)
		             ON CONFLICT (cart_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
	}
}

func (s *SQL) Read(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.readQuery, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	return []byte(payload), nil
}

func (s *SQL) Write(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.writeQuery, key, string(value), time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert line items: %w", err)
	}
	return nil
}

func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent carts
	db.SetMaxOpenConns(1)

	if err := pingOrClose(db); err != nil {
		return nil, err
	}
	return db, nil
}

func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pingOrClose(db); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return db, nil
}

// pingOrClose releases db when it cannot be reached.
func pingOrClose(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func RunSQLiteMigrations(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	return runMigrations("sqlite", driver)
}

func RunPostgresMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "line_items_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	return runMigrations("postgres", driver)
}

func runMigrations(name string, driver database.Driver) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, name, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}
