// Package backup keeps rotating snapshots of a SQLite habit log database.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/logger"
)

const (
	DefaultRetention = 14
	DirName          = "backups"
	FilePrefix       = constants.AppName + "-"
	FileSuffix       = ".db"

	stampFormat = "20060102-150405"
)

// Info describes one snapshot file
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
	// Seq orders snapshots taken within the same second
	Seq int
}

type Manager struct {
	dbPath    string
	dir       string
	retention int
	now       func() time.Time
}

type Option func(*Manager)

// WithDir stores snapshots in dir instead of <db dir>/backups.
func WithDir(dir string) Option {
	return func(m *Manager) { m.dir = dir }
}

// WithRetention keeps at most n snapshots. n < 1 disables rotation.
func WithRetention(n int) Option {
	return func(m *Manager) { m.retention = n }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(dbPath string, opts ...Option) *Manager {
	m := &Manager{
		dbPath:    dbPath,
		dir:       filepath.Join(filepath.Dir(dbPath), DirName),
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Dir() string {
	return m.dir
}

// Create snapshots the database and rotates old snapshots.
func (m *Manager) Create(ctx context.Context) (Info, error) {
	info, err := m.snapshot(ctx)
	if err != nil {
		return Info{}, err
	}
	if err := m.rotate(); err != nil {
		// the new snapshot is still good
		logger.Warn("failed to rotate backups", "dir", m.dir, "error", err)
	}
	return info, nil
}

func (m *Manager) snapshot(ctx context.Context) (Info, error) {
	if _, err := os.Stat(m.dbPath); err != nil {
		return Info{}, fmt.Errorf("database does not exist: %s", m.dbPath)
	}
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return Info{}, fmt.Errorf("failed to create backup directory: %w", err)
	}

	stamp := m.now().UTC()
	path := filepath.Join(m.dir, FilePrefix+stamp.Format(stampFormat)+FileSuffix)
	for i := 1; fileExists(path); i++ {
		if i > 100 {
			return Info{}, fmt.Errorf("failed to generate unique backup filename")
		}
		path = filepath.Join(m.dir, fmt.Sprintf("%s%s-%d%s", FilePrefix, stamp.Format(stampFormat), i, FileSuffix))
	}

	if err := vacuumInto(ctx, m.dbPath, path); err != nil {
		return Info{}, fmt.Errorf("failed to back up database: %w", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	_, seq, _ := parseName(filepath.Base(path))
	logger.Info("database backed up", "path", path, "bytes", st.Size())
	return Info{Path: path, Timestamp: stamp.Truncate(time.Second), Size: st.Size(), Seq: seq}, nil
}

// vacuumInto writes a consistent copy of src to dst, falling back to a plain
// file copy when VACUUM INTO is unavailable.
func vacuumInto(ctx context.Context, src, dst string) error {
	db, err := sql.Open("sqlite", src+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	if err := verify(ctx, db); err != nil {
		return fmt.Errorf("source database appears to be corrupted: %w", err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		logger.Debug("VACUUM INTO failed, copying file", "error", err)
		db.Close()
		return copyFile(src, dst)
	}
	return nil
}

// List returns the snapshots newest first. Files that do not look like
// snapshots are skipped.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stamp, seq, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(m.dir, entry.Name()),
			Timestamp: stamp,
			Size:      fi.Size(),
			Seq:       seq,
		})
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].Seq > backups[j].Seq
		}
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// parseName extracts the timestamp and sequence of
// habitlog-YYYYMMDD-HHMMSS[-N].db
func parseName(name string) (time.Time, int, bool) {
	if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileSuffix) {
		return time.Time{}, 0, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), FileSuffix)
	seq := 0
	if len(stamp) > len(stampFormat) {
		if stamp[len(stampFormat)] != '-' {
			return time.Time{}, 0, false
		}
		n, err := strconv.Atoi(stamp[len(stampFormat)+1:])
		if err != nil || n < 1 {
			return time.Time{}, 0, false
		}
		seq = n
		stamp = stamp[:len(stampFormat)]
	}
	t, err := time.Parse(stampFormat, stamp)
	if err != nil {
		return time.Time{}, 0, false
	}
	return t, seq, true
}

func (m *Manager) rotate() error {
	if m.retention < 1 {
		return nil
	}
	backups, err := m.List()
	if err != nil {
		return err
	}
	for i := m.retention; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
		logger.Debug("removed old backup", "path", backups[i].Path)
	}
	return nil
}

// Restore replaces the database with the snapshot at path. The current
// database is snapshotted first, outside rotation. The caller must not hold
// the database open.
func (m *Manager) Restore(ctx context.Context, path string) (Info, error) {
	if !fileExists(path) {
		return Info{}, fmt.Errorf("backup file does not exist: %s", path)
	}
	if err := verifyFile(ctx, path); err != nil {
		return Info{}, fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}

	var previous Info
	if fileExists(m.dbPath) {
		var err error
		previous, err = m.snapshot(ctx)
		if err != nil {
			return Info{}, fmt.Errorf("failed to back up current database before restore: %w", err)
		}
	}

	tmp := m.dbPath + ".restore.tmp"
	if err := copyFile(path, tmp); err != nil {
		return Info{}, fmt.Errorf("failed to copy backup file: %w", err)
	}
	if err := os.Rename(tmp, m.dbPath); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			logger.Warn("failed to remove temporary file", "path", tmp, "error", rmErr)
		}
		return Info{}, fmt.Errorf("failed to restore database: %w", err)
	}
	// stale journal files belong to the replaced database
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(m.dbPath + suffix)
	}

	logger.Info("database restored", "from", path, "previous", previous.Path)
	return previous, nil
}

func verify(ctx context.Context, db *sql.DB) error {
	var n int
	return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&n)
}

func verifyFile(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	return verify(ctx, db)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return out.Sync()
}
