package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Supported SQL driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// Executor abstracts the query surface shared by *sqlx.DB and *sqlx.Tx.
type Executor interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	Rebind(query string) string
	BindNamed(query string, arg any) (string, []any, error)
}

// =============================================================================
// DB
// =============================================================================

// DB is an open, migrated SQL database.
type DB struct {
	db     *sqlx.DB
	driver string
}

// OpenDB opens a database with the given driver ("sqlite3" or "pgx") and
// runs the embedded migrations.
func OpenDB(driver, dsn string) (*DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, NewStoreError("OpenDB", "", "", fmt.Sprintf("driver %q", driver), ErrUnsupportedDriver)
	}

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, NewStoreError("OpenDB", "", "", "failed to open database", ErrConnectionFailed)
	}

	// Every connection to ":memory:" is a separate database.
	if strings.HasPrefix(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("OpenDB", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB, driver); err != nil {
		db.Close()
		return nil, NewStoreError("OpenDB", "", "", err.Error(), ErrMigrationFailed)
	}

	return &DB{db: db, driver: driver}, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on&_busy_timeout=5000"
	}
	return dsn + "?_foreign_keys=on&_busy_timeout=5000"
}

// runMigrations runs the driver's embedded SQL migrations.
func runMigrations(db *sql.DB, driver string) error {
	var (
		dir      string
		name     string
		instance database.Driver
		err      error
	)
	switch driver {
	case DriverPostgres:
		dir, name = "migrations/postgres", "pgx5"
		instance, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		dir, name = "migrations/sqlite", "sqlite3"
		instance, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, name, instance)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Driver returns the driver name the database was opened with.
func (d *DB) Driver() string {
	return d.driver
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Session returns a new session over the database. It satisfies the open
// function expected by NewProvider.
func (d *DB) Session(ctx context.Context) (*TxSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &TxSession{db: d.db}, nil
}

// =============================================================================
// Transaction Session
// =============================================================================

// TxSession is the SQL unit-of-work session. Reads run on the database until
// the first write opens a transaction; from then on everything runs inside
// it until Commit.
type TxSession struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

// reader returns the executor for queries.
func (s *TxSession) reader() Executor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// writer returns the open transaction, beginning one if needed.
func (s *TxSession) writer(ctx context.Context) (Executor, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, NewStoreError("Begin", "", "", err.Error(), ErrTxFailed)
	}
	s.tx = tx
	return tx, nil
}

// Commit commits the open transaction, if any.
func (s *TxSession) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := ctx.Err(); err != nil {
		tx.Rollback()
		return NewStoreError("Commit", "", "", err.Error(), ErrTxFailed)
	}
	if err := tx.Commit(); err != nil {
		return NewStoreError("Commit", "", "", "failed to commit transaction", errors.Join(ErrTxFailed, err))
	}
	return nil
}

// Rollback discards the open transaction, if any.
func (s *TxSession) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return NewStoreError("Rollback", "", "", err.Error(), ErrTxFailed)
	}
	return nil
}
