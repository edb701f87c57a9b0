// Package migrations contains the embedded SQL migrations for every backend.
package migrations

import "embed"

// Postgres migrations reference the target schema through the {{schema}} placeholder.
//
//go:embed postgres/*.sql
var Postgres embed.FS

//go:embed sqlite/*.sql
var SQLite embed.FS
