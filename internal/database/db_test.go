package database

import (
	"path/filepath"
	"testing"
)

func TestNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "metrics.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer db.Close()

	var name string
	err = db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='execution_metrics'`).Scan(&name)
	if err != nil {
		t.Fatalf("Expected execution_metrics table: %v", err)
	}

	t.Run("MigrationsAreIdempotent", func(t *testing.T) {
		if err := RunMigrations(dbPath); err != nil {
			t.Errorf("Second migration run failed: %v", err)
		}
	})
}
