package repositories

import (
	"database/sql"
	"fmt"

	"github.com/tagify/spotmirror/internal/shared"
)

// withTx runs fn inside a transaction, rolling back on error.
func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", shared.ErrStorageFailure, err)
	}
	return nil
}

// ClearAll deletes every locally persisted entity across all tables in one transaction.
func ClearAll(db *sql.DB) error {
	return withTx(db, func(tx *sql.Tx) error {
		for _, table := range []string{"track_playlists", "tracks", "playlists"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("%w: failed to clear %s: %v", shared.ErrStorageFailure, table, err)
			}
		}
		return nil
	})
}
