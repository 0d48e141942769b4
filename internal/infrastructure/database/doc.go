// Package database provides SQLite connectivity for Feeder Core.
//
// It owns the connection (WAL mode, busy timeout, single writer), the
// transaction helper used by repositories, and the migration runner.
// Migration files live in the top-level migrations package and are passed
// in as an fs.FS:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use ? placeholders. Timestamps are stored as
// millisecond RFC3339 UTC text (see TimeLayout).
package database
