// Package migrations embeds the schema of the accounts store. The files
// are written to run unchanged on SQLite and Postgres.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
