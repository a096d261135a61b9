// Package lockfile keeps a single habitlog daemon running per config
// directory. The lockfile holds "pid|started-at"; a file whose process is
// gone or is not habitlog is stale and gets replaced.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/logger"
)

var (
	findProcessFunc = ps.FindProcess
	getpidFunc      = os.Getpid
)

// ErrNotRunning is returned by Read when no live daemon owns the lockfile.
var ErrNotRunning = errors.New("daemon is not running")

// RunningError reports the daemon that already holds the lock.
type RunningError struct {
	PID     int
	Started time.Time
}

func (e *RunningError) Error() string {
	return fmt.Sprintf("daemon already running (pid %d, started %s)", e.PID, e.Started.Local().Format(time.DateTime))
}

type Owner struct {
	PID     int
	Started time.Time
}

type Lock struct {
	path string
	pid  int
}

// Acquire takes the lock at path or returns a *RunningError.
func Acquire(path string, now time.Time) (*Lock, error) {
	owner, err := Read(path)
	switch {
	case err == nil:
		return nil, &RunningError{PID: owner.PID, Started: owner.Started}
	case errors.Is(err, ErrNotRunning):
	default:
		logger.Warn("replacing unreadable lockfile", "path", path, "error", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lockfile directory: %w", err)
	}
	pid := getpidFunc()
	content := fmt.Sprintf("%d|%s", pid, now.UTC().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return nil, fmt.Errorf("failed to write lockfile: %w", err)
	}
	logger.Debug("lock acquired", "path", path, "pid", pid)
	return &Lock{path: path, pid: pid}, nil
}

// Release removes the lockfile unless another process has taken it over.
func (l *Lock) Release() error {
	content, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	pid, _, err := parse(string(content))
	if err == nil && pid != l.pid {
		return nil
	}
	return os.Remove(l.path)
}

// Read returns the live owner of the lockfile. ErrNotRunning covers a missing
// file and a stale one.
func Read(path string) (Owner, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Owner{}, ErrNotRunning
	}
	if err != nil {
		return Owner{}, err
	}
	pid, started, err := parse(string(content))
	if err != nil {
		return Owner{}, err
	}

	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return Owner{}, ErrNotRunning
	}
	if !strings.HasPrefix(process.Executable(), constants.AppName) {
		logger.Debug("lockfile pid belongs to another program", "pid", pid, "executable", process.Executable())
		return Owner{}, ErrNotRunning
	}
	return Owner{PID: pid, Started: started}, nil
}

func parse(content string) (int, time.Time, error) {
	parts := strings.Split(strings.TrimSpace(content), "|")
	if len(parts) != 2 {
		return 0, time.Time{}, errors.New("lockfile is malformed")
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil || pid < 1 {
		return 0, time.Time{}, errors.New("invalid process ID in lockfile")
	}
	started, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return 0, time.Time{}, errors.New("invalid start time in lockfile")
	}
	return pid, started, nil
}
