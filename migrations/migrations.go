// Package migrations embeds the SQL migrations for the appointment store.
package migrations

import "embed"

// FS holds the golang-migrate up/down files.
//
//go:embed *.sql
var FS embed.FS
