package constants

import "time"

const (
	AppName            = "habitlog"
	DefaultKeyringUser = "database-connection"
	SessionKeyringUser = "session-token"
	SecretKeyringUser  = "session-secret"
	DefaultConfigDir   = "~/.config/habitlog"
	DefaultConfigPath  = "~/.config/habitlog/habitlog.db"
	DefaultConfigFile  = "~/.config/habitlog/config.json"
	Version            = "v0.3.0"

	// DateFormat is the calendar-day format exchanged with the backend (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used for schedules (HH:MM)
	TimeFormat = "15:04"

	// Window constants
	DefaultWindowLength = 7
	MaxWindowLength     = 366

	// Log entry constants
	MaxNotesLength = 500

	// Table names
	TableHabits     = "habits"
	TableHabitLogs  = "habit_logs"
	TableTemplates  = "habit_templates"
	TableStatistics = "habit_statistics_view"

	// Server-side procedures
	ProcRecomputeStatistics    = "recompute_statistics"
	ProcRecomputeAllStatistics = "recompute_all_statistics"

	// Cache keys
	CacheKeyStatistics = "habit-statistics"
	CacheKeyHabits     = "habits"
	CacheKeyTemplates  = "habit-templates"
	CacheTTL           = 5 * time.Minute
	CacheDirName       = "cache"

	// Scheduler defaults
	DefaultBackfillTime  = "00:05"
	DefaultRecomputeTime = "00:15"
	DefaultBackupTime    = "03:00"
	DaemonLockfileName   = "daemon.lock"

	// Session constants
	SessionTTL    = 365 * 24 * time.Hour
	SessionIssuer = "habitlog"

	// Change stream constants
	ChangeChannel          = "habit_logs_changes"
	ChangeBufferSize       = 16
	ChangeThrottle         = 100 * time.Millisecond
	ListenerMinReconnect   = 10 * time.Second
	ListenerMaxReconnect   = time.Minute
	ListenerConnectTimeout = 10 * time.Second
)
