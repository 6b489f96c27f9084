package db

import "embed"

// Migrations holds the goose migrations for every supported dialect, under
// migrations/<dialect>/.
//
//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var Migrations embed.FS
