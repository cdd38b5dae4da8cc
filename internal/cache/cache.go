// Package cache is the local SQLite mirror of the vehicle catalog. Every
// crawl writes here first; the sync engine later pushes the cache to the
// remote store. Writes are serialized through a single mutex because SQLite
// allows one writer at a time.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/fipeops/fipecrawler/db/migrations"

	// SQLite driver for database/sql.
	_ "modernc.org/sqlite"
)

// Recorder receives write-transaction timing observations. Implementations
// must be goroutine safe.
type Recorder interface {
	AddDBTime(d time.Duration)
}

// Cache wraps the local SQLite database.
type Cache struct {
	db  *sql.DB
	rec Recorder
	log *zap.Logger

	// writeMu serializes all write transactions.
	writeMu sync.Mutex
}

// SetRecorder wires timing observations into rec. A nil rec disables them.
// Call before the cache is shared across goroutines.
func (c *Cache) SetRecorder(rec Recorder) {
	c.rec = rec
}

// Open opens (creating if needed) the cache database at path and applies
// pending migrations. Use ":memory:" for tests.
func Open(path string, log *zap.Logger) (*Cache, error) {
	useMemory := path == ":memory:"

	var dsn string
	if useMemory {
		dsn = "file::memory:?cache=shared&_pragma=foreign_keys(ON)"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve cache path: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
			filepath.ToSlash(abs))
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Cache{db: db, log: log.Named("cache")}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("initialise migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.Files, ".")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	defer func() {
		_ = sourceDriver.Close()
	}()

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
