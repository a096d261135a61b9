// Package storage selects and opens the gateway backend named by the --db
// flag: a local SQLite file or a PostgreSQL server.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/keyring"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/storage/postgres"
	"github.com/julianstephens/habitlog/internal/storage/sqlite"
	"github.com/julianstephens/habitlog/internal/utils"
)

// Provider is a gateway backend with a schema lifecycle.
type Provider interface {
	gateway.Backend

	Init(ctx context.Context) error
	Load(ctx context.Context) error
	Migrate(ctx context.Context, logFn func(string)) (int, error)
	Path() string
}

var (
	_ Provider = (*sqlite.Store)(nil)
	_ Provider = (*postgres.Store)(nil)
)

// IsPostgres reports whether db is a PostgreSQL URI or key/value DSN.
func IsPostgres(db string) bool {
	return strings.HasPrefix(db, "postgres://") ||
		strings.HasPrefix(db, "postgresql://") ||
		strings.Contains(db, "host=")
}

// Resolve returns the database to open. An empty or default db falls back to
// a connection string stored in the keyring, then to the default SQLite path.
func Resolve(db string) (string, bool, error) {
	if db == "" || db == constants.DefaultConfigPath {
		connStr, err := keyring.GetConnectionString()
		switch {
		case err == nil:
			return connStr, true, nil
		case errors.Is(err, keyring.ErrNotFound):
		default:
			logger.Debug("keyring lookup failed, using default database", "error", err)
		}
		db = constants.DefaultConfigPath
	}
	if IsPostgres(db) {
		return db, false, nil
	}

	path, err := utils.ExpandHome(db)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve database path: %w", err)
	}
	return path, false, nil
}

// New returns an unopened Provider for db. Connection strings passed on the
// command line must not embed a password; ones read from the keyring may.
func New(db string) (Provider, error) {
	resolved, fromKeyring, err := Resolve(db)
	if err != nil {
		return nil, err
	}

	if !IsPostgres(resolved) {
		logger.Debug("using sqlite backend", "path", resolved)
		return sqlite.NewStore(resolved), nil
	}

	if _, err := postgres.ValidateConnString(resolved); err != nil {
		if !errors.Is(err, postgres.ErrEmbeddedCredentials) || !fromKeyring {
			return nil, err
		}
	}
	logger.Debug("using postgres backend", "keyring", fromKeyring)
	return postgres.New(resolved), nil
}
