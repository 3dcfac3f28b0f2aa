package sqlitemigrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return sqlDB
}

func TestApplyMigrationsRunsInOrderOnce(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"0001_create.sql": {Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY);")},
		"0002_column.sql": {Data: []byte("ALTER TABLE items ADD COLUMN label TEXT;")},
		"notes.txt":       {Data: []byte("ignored")},
	}
	sqlDB := openTestDB(t)

	if err := ApplyMigrations(sqlDB, fsys, ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := sqlDB.Exec("INSERT INTO items (id, label) VALUES ('a', 'first')"); err != nil {
		t.Fatalf("expected migrated schema to be usable: %v", err)
	}

	// Re-applying must be a no-op.
	if err := ApplyMigrations(sqlDB, fsys, ""); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}

	var applied int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("count applied migrations: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", applied)
	}
}

func TestApplyMigrationsUsesUpSection(t *testing.T) {
	t.Parallel()

	content := `-- +migrate Up
CREATE TABLE widgets (id TEXT PRIMARY KEY);
-- +migrate Down
DROP TABLE widgets;
`
	fsys := fstest.MapFS{"0001_widgets.sql": {Data: []byte(content)}}
	sqlDB := openTestDB(t)

	if err := ApplyMigrations(sqlDB, fsys, ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := sqlDB.Exec("INSERT INTO widgets (id) VALUES ('w')"); err != nil {
		t.Fatalf("expected up section applied: %v", err)
	}
}

func TestExtractUpMigration(t *testing.T) {
	t.Parallel()

	plain := "CREATE TABLE t (id TEXT);"
	if got := ExtractUpMigration(plain); got != plain {
		t.Fatalf("expected unmarked content returned whole, got %q", got)
	}

	sectioned := "-- +migrate Up\nSELECT 1;\n-- +migrate Down\nSELECT 2;\n"
	got := ExtractUpMigration(sectioned)
	if got != "\nSELECT 1;\n" {
		t.Fatalf("unexpected up section: %q", got)
	}
}
