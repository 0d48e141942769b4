// Package migrations embeds the SQL migration files into the binary.
//
// Feeder Core runs migrations without the SQL files present on disk; the
// files are compiled into the executable and handed to the database package:
//
//	db.Migrate(ctx, migrations.FS)
package migrations

import "embed"

// FS holds every *.sql file in this directory, at the root of the FS.
//
//go:embed *.sql
var FS embed.FS
