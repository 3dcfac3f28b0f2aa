package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	sqlitestore "github.com/harborlaw/intake/internal/intake/storage/sqlite"
)

func TestRunEngineRequiresCheckerURL(t *testing.T) {
	err := RunEngine(context.Background(), EngineConfig{})
	if err == nil {
		t.Fatal("expected an error without a conflict checker url")
	}
}

func TestRunIndexWorkerRequiresRedis(t *testing.T) {
	err := RunIndexWorker(context.Background(), IndexWorkerConfig{DBPath: filepath.Join(t.TempDir(), "index.db")})
	if err == nil {
		t.Fatal("expected an error without a redis address")
	}
}

func TestOpenStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "intake.db")
	store, err := openStore(path, sqlitestore.Open)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	}()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("storage dir missing: %v", err)
	}
}
