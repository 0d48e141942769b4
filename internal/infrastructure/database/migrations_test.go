package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

// testMigrations is a two-step schema used to exercise the runner.
var testMigrations = fstest.MapFS{
	"20260301_090000_create_pets.up.sql": &fstest.MapFile{
		Data: []byte(`CREATE TABLE test_pets (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`),
	},
	"20260301_090000_create_pets.down.sql": &fstest.MapFile{
		Data: []byte(`DROP TABLE test_pets;`),
	},
	"20260302_100000_add_bowls.up.sql": &fstest.MapFile{
		Data: []byte(`CREATE TABLE test_bowls (id INTEGER PRIMARY KEY, pet_id INTEGER REFERENCES test_pets(id));`),
	},
	"20260302_100000_add_bowls.down.sql": &fstest.MapFile{
		Data: []byte(`DROP TABLE test_bowls;`),
	},
	"README.md": &fstest.MapFile{Data: []byte("ignored")},
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if !tableExists(t, db, "test_pets") || !tableExists(t, db, "test_bowls") {
		t.Fatal("expected both migration tables to exist")
	}

	applied, pending, err := db.MigrationStatus(ctx, testMigrations)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}

	// Running again is a no-op.
	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if err := db.MigrateDown(ctx, testMigrations); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "test_bowls") {
		t.Error("test_bowls should have been dropped")
	}
	if !tableExists(t, db, "test_pets") {
		t.Error("test_pets should still exist")
	}

	applied, pending, err := db.MigrationStatus(ctx, testMigrations)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 1/1", len(applied), len(pending))
	}
}

func TestMigrateDown_NothingApplied(t *testing.T) {
	db := openTestDB(t)

	if err := db.MigrateDown(context.Background(), testMigrations); err != nil {
		t.Fatalf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrate_NilSource(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("Migrate() with nil source error = %v", err)
	}
}

func TestMigrate_FailingMigrationStops(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	broken := fstest.MapFS{
		"20260301_090000_ok.up.sql":     &fstest.MapFile{Data: []byte(`CREATE TABLE ok_table (id INTEGER);`)},
		"20260302_090000_broken.up.sql": &fstest.MapFile{Data: []byte(`CREATE TABLE nope (`)},
	}

	if err := db.Migrate(ctx, broken); err == nil {
		t.Fatal("Migrate() expected error for broken SQL")
	}

	if !tableExists(t, db, "ok_table") {
		t.Error("earlier migration should remain committed")
	}

	applied, pending, err := db.MigrationStatus(ctx, broken)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 1/1", len(applied), len(pending))
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{name: "valid up", filename: "20260118_120000_create_devices.up.sql", wantVersion: "20260118_120000", wantIsUp: true, wantOk: true},
		{name: "valid down", filename: "20260118_120000_create_devices.down.sql", wantVersion: "20260118_120000", wantOk: true},
		{name: "not sql file", filename: "readme.txt"},
		{name: "missing direction", filename: "20260118_120000_create_devices.sql"},
		{name: "invalid format", filename: "invalid.up.sql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %v, want %v", version, tt.wantVersion)
			}
			if isUp != tt.wantIsUp {
				t.Errorf("isUp = %v, want %v", isUp, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260118_120000_create_devices.up.sql", "create_devices"},
		{"20260118_120000_initial_schema.down.sql", "initial_schema"},
		{"20260118_120000_add_settings_to_devices.up.sql", "add_settings_to_devices"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := extractMigrationName(tt.filename); got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
