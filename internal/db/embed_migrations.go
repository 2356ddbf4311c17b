package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// Used by the migrate runner (cmd/migrate, and cmd/server with AUTO_MIGRATE)
// to apply the users and sessions schema.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
