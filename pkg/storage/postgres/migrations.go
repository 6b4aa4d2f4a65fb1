package postgres

import "embed"

// MigrationsDir is the directory inside Migrations that holds the
// golang-migrate files.
const MigrationsDir = "migrations"

// Migrations holds the schema of this adapter so binaries can migrate without
// a source checkout.
//
//go:embed migrations/*.sql
var Migrations embed.FS
