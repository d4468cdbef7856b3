package shared

import (
	"database/sql"
	"testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	if err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	return count > 0
}

func TestRunMigrations(t *testing.T) {
	t.Run("creates the schema", func(t *testing.T) {
		db := setupTestDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations failed: %v", err)
		}

		for _, table := range []string{"playlists", "tracks", "track_playlists", "schema_migrations"} {
			if !tableExists(t, db, table) {
				t.Errorf("table %s missing after migrations", table)
			}
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		db := setupTestDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		if err := RunMigrations(db); err != nil {
			t.Fatalf("second run failed: %v", err)
		}

		var applied int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
			t.Fatalf("failed to count migrations: %v", err)
		}
		if applied != 1 {
			t.Errorf("expected 1 applied migration, got %d", applied)
		}
	})
}

func TestRollbackMigration(t *testing.T) {
	t.Run("drops the schema", func(t *testing.T) {
		db := setupTestDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations failed: %v", err)
		}
		if err := RollbackMigration(db); err != nil {
			t.Fatalf("RollbackMigration failed: %v", err)
		}

		for _, table := range []string{"playlists", "tracks", "track_playlists"} {
			if tableExists(t, db, table) {
				t.Errorf("table %s still exists after rollback", table)
			}
		}
	})

	t.Run("nothing to roll back", func(t *testing.T) {
		db := setupTestDB(t)
		if err := createMigrationsTable(db); err != nil {
			t.Fatalf("failed to create migrations table: %v", err)
		}

		if err := RollbackMigration(db); err == nil {
			t.Error("expected an error with no applied migrations")
		}
	})
}
