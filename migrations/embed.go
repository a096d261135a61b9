package migrations

import "embed"

// FS holds the SQL migrations of both storage drivers
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
