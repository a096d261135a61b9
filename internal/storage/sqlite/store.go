package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/migration"
	"github.com/julianstephens/habitlog/migrations"
)

// Store is a gateway.Backend over a local SQLite file. Changes made through
// the store are published to its own subscribers immediately. Writes by other
// processes are picked up by watching the database file.
type Store struct {
	path string
	db   *sql.DB
	hub  *gateway.Hub
	now  func() time.Time

	watchOnce   sync.Once
	stopWatch   context.CancelFunc
	watchDone   chan struct{}
	lastWriteMu sync.Mutex
	lastWrite   time.Time
}

var _ gateway.Backend = (*Store)(nil)

func NewStore(path string) *Store {
	return &Store{
		path: path,
		hub:  gateway.NewHub(),
		now:  time.Now,
	}
}

func (s *Store) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	return s.path + "?" + q.Encode()
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	return nil
}

// Init creates the database file if needed and applies pending migrations
func (s *Store) Init(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if s.db == nil {
		if err := s.open(); err != nil {
			return err
		}
	}

	if err := s.runMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Load opens an existing database and checks its schema version
func (s *Store) Load(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("storage not initialized, run 'habitlog init' first")
	}

	if err := s.open(); err != nil {
		return err
	}
	return s.validateSchemaVersion(ctx)
}

// Close stops the file watcher, ends every subscription and closes the database
func (s *Store) Close() error {
	if s.stopWatch != nil {
		s.stopWatch()
		<-s.watchDone
		s.stopWatch = nil
	}
	s.hub.Close()
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return fmt.Errorf("failed to access sqlite migrations: %w", err)
	}

	runner := migration.NewRunner(s.db, subFS, migration.DriverSQLite)
	_, err = runner.ApplyMigrations(ctx, func(msg string) {
		fmt.Println(msg)
	})
	return err
}

func (s *Store) validateSchemaVersion(ctx context.Context) error {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return fmt.Errorf("failed to access sqlite migrations: %w", err)
	}

	runner := migration.NewRunner(s.db, subFS, migration.DriverSQLite)
	return runner.ValidateVersion(ctx)
}

// Migrate applies pending migrations and reports progress through logFn
func (s *Store) Migrate(ctx context.Context, logFn func(string)) (int, error) {
	if s.db == nil {
		if err := s.open(); err != nil {
			return 0, err
		}
	}
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return 0, fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	return migration.NewRunner(s.db, subFS, migration.DriverSQLite).ApplyMigrations(ctx, logFn)
}

func (s *Store) Path() string {
	return s.path
}

// GetDB returns the underlying database connection, or nil before Init/Load
func (s *Store) GetDB() *sql.DB {
	return s.db
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return t, nil
}
