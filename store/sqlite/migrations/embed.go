package migrations

import "embed"

// FS contains embedded SQLite migrations for module state.
//
//go:embed *.sql
var FS embed.FS
