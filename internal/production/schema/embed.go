package schema

import "embed"

// FS holds the Postgres schema of the dashboard tables, applied in
// lexical order by cmd/migrate.
//
//go:embed *.sql
var FS embed.FS
