package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artpar/crudkit/internal/core/domain"
	"github.com/artpar/crudkit/internal/shell/store"
)

// DriverMemory selects the in-process backend.
const DriverMemory = "memory"

// Backend is an opened store with every resource registered on it.
type Backend struct {
	driver   string
	provider store.Provider
	ping     func(ctx context.Context) error
	close    func() error
}

// Open opens the backend for driver ("sqlite3", "pgx" or "memory"), runs
// migrations for SQL drivers, registers the resource tables and verifies
// that every capability the resources need is provided.
func Open(driver, dsn string, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var b *Backend
	switch driver {
	case DriverMemory:
		db := store.NewMemoryDB()
		reg := store.NewRegistry[*store.MemorySession]()
		store.RegisterMemoryTable[int64, *domain.Widget](reg, WidgetTable)
		store.RegisterMemoryTable[string, *domain.Note](reg, NoteTable)
		if err := reg.Verify(Capabilities()...); err != nil {
			return nil, err
		}
		b = &Backend{
			driver:   driver,
			provider: store.NewProvider(reg, db.Session),
			ping:     func(context.Context) error { return nil },
			close:    func() error { return nil },
		}

	case store.DriverSQLite, store.DriverPostgres:
		db, err := store.OpenDB(driver, dsn)
		if err != nil {
			return nil, err
		}
		reg := store.NewRegistry[*store.TxSession]()
		store.RegisterTable[int64, *domain.Widget](reg, WidgetTable)
		store.RegisterTable[string, *domain.Note](reg, NoteTable)
		if err := reg.Verify(Capabilities()...); err != nil {
			db.Close()
			return nil, err
		}
		b = &Backend{
			driver:   driver,
			provider: store.NewProvider(reg, db.Session),
			ping:     db.Ping,
			close:    db.Close,
		}

	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnsupportedDriver, driver)
	}

	logger.Info("storage backend ready", "driver", driver)
	return b, nil
}

// Driver returns the backend's driver name.
func (b *Backend) Driver() string {
	return b.driver
}

// Provider begins units of work on the backend.
func (b *Backend) Provider() store.Provider {
	return b.provider
}

// Ping checks that the backend is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

// Close releases the backend.
func (b *Backend) Close() error {
	return b.close()
}
