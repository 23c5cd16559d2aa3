// Package migrations embeds the SQL schema applied by both services on startup.
package migrations

import "embed"

// FS holds the goose migration files.
//
//go:embed *.sql
var FS embed.FS

// Dir is the directory inside FS that goose reads.
const Dir = "."
