package db

import "embed"

// MigrationFS embeds the SQL migrations for the Postgres session and user
// tables. The migrate runner and `authd -migrate` apply them.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
