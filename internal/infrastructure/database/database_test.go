package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
)

// openTestDB opens a file-backed database in a temp dir.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(context.Background(), config.DatabaseConfig{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		if _, err := db.ExecContext(context.Background(), "CREATE TABLE t (id INTEGER)"); err != nil {
			t.Fatalf("create table: %v", err)
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("creates directory if not exists", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(context.Background(), config.DatabaseConfig{Path: dbPath, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("database directory was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	db.Close() //nolint:errcheck // closing to force failure
	if err := db.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() on closed database should fail")
	}
}

func TestClose_Nil(t *testing.T) {
	db := &DB{}
	if err := db.Close(); err != nil {
		t.Errorf("Close() on empty DB error = %v", err)
	}
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE counters (n INTEGER NOT NULL)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	t.Run("commits on success", func(t *testing.T) {
		err := WithTx(ctx, db.DB, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO counters (n) VALUES (1)")
			return err
		})
		if err != nil {
			t.Fatalf("WithTx() error = %v", err)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := WithTx(ctx, db.DB, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO counters (n) VALUES (2)"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTx() error = %v, want %v", err, boom)
		}
	})

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM counters").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1 (second insert rolled back)", count)
	}
}

// ─── Timestamps ──────────────────────────────────────────────────────────────

func TestFormatTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"whole second", base, "2026-03-01T08:00:00.000Z"},
		{"milliseconds kept", base.Add(1500 * time.Millisecond), "2026-03-01T08:00:01.500Z"},
		{"sub-millisecond dropped", base.Add(999 * time.Microsecond), "2026-03-01T08:00:00.000Z"},
		{"converted to UTC", base.In(time.FixedZone("CET", 3600)), "2026-03-01T08:00:00.000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTime(tt.in); got != tt.want {
				t.Errorf("FormatTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatTime_LexicalOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	earlier := FormatTime(base.Add(-500 * time.Millisecond))
	later := FormatTime(base)

	if earlier >= later {
		t.Errorf("%q should sort before %q", earlier, later)
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 3, 1, 8, 0, 1, 500_000_000, time.UTC)

	got, err := ParseTime(FormatTime(want))
	if err != nil {
		t.Fatalf("ParseTime() error = %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("ParseTime() = %v, want %v", got, want)
	}

	legacy, err := ParseTime("2026-03-01T08:00:01Z")
	if err != nil {
		t.Fatalf("ParseTime(second precision) error = %v", err)
	}
	if !legacy.Equal(want.Truncate(time.Second)) {
		t.Errorf("ParseTime(second precision) = %v", legacy)
	}

	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("ParseTime() should reject garbage")
	}
}
