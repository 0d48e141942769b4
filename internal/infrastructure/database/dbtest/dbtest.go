// Package dbtest opens a migrated SQLite database for repository tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
	"github.com/nerrad567/feeder-core/internal/infrastructure/database"
	"github.com/nerrad567/feeder-core/migrations"
)

// Open returns a fresh database in t.TempDir() with the full schema applied.
// It is closed automatically when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "feeder-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("dbtest: open: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("dbtest: migrate: %v", err)
	}
	return db.DB
}

// InsertUser adds an operator row and returns its id.
func InsertUser(t testing.TB, db *sql.DB, id, username string) string {
	t.Helper()

	now := database.FormatTime(time.Now())
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO users (id, username, display_name, password_hash, role, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, 'x', 'operator', 1, ?, ?)`,
		id, username, username, now, now,
	)
	if err != nil {
		t.Fatalf("dbtest: insert user %s: %v", id, err)
	}
	return id
}

// InsertDevice adds an active device and returns its id. owner may be empty.
func InsertDevice(t testing.TB, db *sql.DB, serial, owner string) int64 {
	t.Helper()

	var ownerArg any
	if owner != "" {
		ownerArg = owner
	}
	now := database.FormatTime(time.Now())
	result, err := db.ExecContext(context.Background(),
		`INSERT INTO devices (serial, name, host, port, owner_user_id, model, is_active, created_at, updated_at)
		 VALUES (?, ?, '127.0.0.1', 80, ?, 'generic', 1, ?, ?)`,
		serial, "feeder-"+serial, ownerArg, now, now,
	)
	if err != nil {
		t.Fatalf("dbtest: insert device %s: %v", serial, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("dbtest: device id: %v", err)
	}
	return id
}
