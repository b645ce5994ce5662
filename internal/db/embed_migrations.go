package db

import "embed"

// MigrationFS embeds the SQL migrations applied by fleetd migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
