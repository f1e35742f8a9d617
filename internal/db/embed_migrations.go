package db

import "embed"

// MigrationFS embeds the SQL migrations (users, identities, sessions) applied by cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
