// Package migrations contains the SQL migrations of the application database.
package migrations

import "embed"

// FS contains all migration files.
//
//go:embed *.sql
var FS embed.FS
