package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/habitlog/internal/cache"
	"github.com/julianstephens/habitlog/internal/catalog"
	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/session"
	"github.com/julianstephens/habitlog/internal/stats"
	"github.com/julianstephens/habitlog/internal/storage"
	"github.com/julianstephens/habitlog/internal/utils"
)

// Globals are the flags shared by every command. Each one can also come from
// the environment or the JSON config file.
type Globals struct {
	DB            string `help:"SQLite path or PostgreSQL connection string. PostgreSQL passwords must come from the keyring, the environment or .pgpass." default:"${default_db}" env:"HABITLOG_DB"`
	Timezone      string `help:"IANA timezone used to decide what 'today' is." env:"HABITLOG_TIMEZONE"`
	Window        int    `help:"Number of days in a habit log window." default:"${default_window}" env:"HABITLOG_WINDOW"`
	Debug         bool   `help:"Log debug output to stderr." env:"HABITLOG_DEBUG"`
	SessionSecret string `help:"Secret used to sign session tokens. Defaults to one kept in the OS keyring." env:"HABITLOG_SESSION_SECRET"`
}

// Context is handed to every command. Components are built on first use so a
// command only opens what it needs.
type Context struct {
	Globals

	Ctx       context.Context
	ConfigDir string
	Store     storage.Provider
	Location  *time.Location

	now      func() time.Time
	loaded   bool
	sessions *session.Manager
	client   *gateway.Client
	service  *gateway.Client
	cache    *cache.Cache
	catalog  *catalog.Catalog
	stats    *stats.Controller
}

// NewContext resolves the globals into a store and a location. The store is
// not opened yet.
func NewContext(ctx context.Context, g Globals, configDir string) (*Context, error) {
	loc, err := utils.LoadLocation(g.Timezone)
	if err != nil {
		return nil, err
	}
	store, err := storage.New(g.DB)
	if err != nil {
		return nil, err
	}
	if configDir == "" {
		configDir, err = utils.ExpandHome(constants.DefaultConfigDir)
		if err != nil {
			return nil, err
		}
	}
	if g.Window <= 0 {
		g.Window = constants.DefaultWindowLength
	}
	if g.Window > constants.MaxWindowLength {
		return nil, fmt.Errorf("window cannot exceed %d days", constants.MaxWindowLength)
	}

	return &Context{
		Globals:   g,
		Ctx:       ctx,
		ConfigDir: configDir,
		Store:     store,
		Location:  loc,
		now:       time.Now,
	}, nil
}

// SetClock overrides the wall clock of clients built afterwards.
func (c *Context) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Context) Now() time.Time {
	return c.now()
}

// Today is the current calendar day in the configured timezone.
func (c *Context) Today() string {
	return utils.DayOf(c.now(), c.Location)
}

// Load opens the store and checks its schema version.
func (c *Context) Load() error {
	if c.loaded {
		return nil
	}
	if err := c.Store.Load(c.Ctx); err != nil {
		return err
	}
	c.loaded = true
	return nil
}

func (c *Context) Sessions() (*session.Manager, error) {
	if c.sessions != nil {
		return c.sessions, nil
	}
	m, err := session.NewManager(c.SessionSecret, session.WithClock(c.now))
	if err != nil {
		return nil, err
	}
	c.sessions = m
	return m, nil
}

// Client returns the gateway scoped to the signed-in user, signing in
// anonymously on first use.
func (c *Context) Client() (*gateway.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	if err := c.Load(); err != nil {
		return nil, err
	}
	m, err := c.Sessions()
	if err != nil {
		return nil, err
	}
	id, err := m.CurrentOrSignIn()
	if err != nil {
		return nil, err
	}
	c.client = gateway.NewClient(c.Store, id, gateway.WithLocation(c.Location), gateway.WithClock(c.now))
	c.cache = cache.New(
		cache.WithNamespace(id.UserID()),
		cache.WithDisk(filepath.Join(c.ConfigDir, constants.CacheDirName)),
	)
	logger.Debug("client ready", "user", id.UserID(), "db", c.Store.Path())
	return c.client, nil
}

// ServiceClient returns the gateway with the unrestricted identity used by
// maintenance jobs.
func (c *Context) ServiceClient() (*gateway.Client, error) {
	if c.service != nil {
		return c.service, nil
	}
	if err := c.Load(); err != nil {
		return nil, err
	}
	c.service = gateway.NewClient(c.Store, session.Service(), gateway.WithLocation(c.Location), gateway.WithClock(c.now))
	return c.service, nil
}

func (c *Context) Catalog() (*catalog.Catalog, error) {
	if c.catalog != nil {
		return c.catalog, nil
	}
	client, err := c.Client()
	if err != nil {
		return nil, err
	}
	c.catalog = catalog.New(client, c.cache)
	return c.catalog, nil
}

func (c *Context) Stats() (*stats.Controller, error) {
	if c.stats != nil {
		return c.stats, nil
	}
	client, err := c.Client()
	if err != nil {
		return nil, err
	}
	c.stats = stats.NewController(client, c.cache)
	return c.stats, nil
}

// Close releases the store and every subscription on it.
func (c *Context) Close() error {
	c.loaded = false
	return c.Store.Close()
}

// ParseWeekdays parses a comma-separated list of weekday names or numbers
// (0=Sunday).
func ParseWeekdays(s string) ([]time.Weekday, error) {
	dayMap := map[string]time.Weekday{
		"sun":       time.Sunday,
		"sunday":    time.Sunday,
		"mon":       time.Monday,
		"monday":    time.Monday,
		"tue":       time.Tuesday,
		"tuesday":   time.Tuesday,
		"wed":       time.Wednesday,
		"wednesday": time.Wednesday,
		"thu":       time.Thursday,
		"thursday":  time.Thursday,
		"fri":       time.Friday,
		"friday":    time.Friday,
		"sat":       time.Saturday,
		"saturday":  time.Saturday,
	}

	var weekdays []time.Weekday
	seen := make(map[time.Weekday]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		wd, ok := dayMap[part]
		if !ok {
			num, err := strconv.Atoi(part)
			if err != nil || num < 0 || num > 6 {
				return nil, fmt.Errorf("invalid weekday: %s", part)
			}
			wd = time.Weekday(num)
		}
		if !seen[wd] {
			seen[wd] = true
			weekdays = append(weekdays, wd)
		}
	}
	return weekdays, nil
}
