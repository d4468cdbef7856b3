package repositories

import (
	"database/sql"
	"fmt"

	"github.com/tagify/spotmirror/internal/services"
	"github.com/tagify/spotmirror/internal/shared"
)

// AssociationRepository handles track↔playlist memberships in the local mirror.
type AssociationRepository struct {
	db *sql.DB
}

// NewAssociationRepository creates a new AssociationRepository with the given database connection
func NewAssociationRepository(db *sql.DB) *AssociationRepository {
	return &AssociationRepository{db: db}
}

// All retrieves every persisted membership.
func (r *AssociationRepository) All() ([]services.Association, error) {
	rows, err := r.db.Query("SELECT track_id, playlist_id FROM track_playlists ORDER BY playlist_id, track_id")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query associations: %v", shared.ErrStorageFailure, err)
	}
	defer rows.Close()

	var associations []services.Association
	for rows.Next() {
		var a services.Association
		if err := rows.Scan(&a.TrackID, &a.PlaylistID); err != nil {
			return nil, fmt.Errorf("%w: failed to scan association: %v", shared.ErrStorageFailure, err)
		}
		associations = append(associations, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorageFailure, err)
	}

	return associations, nil
}

// PlaylistIDsForTrack lists the playlists one track currently belongs to.
func (r *AssociationRepository) PlaylistIDsForTrack(trackID string) ([]string, error) {
	rows, err := r.db.Query("SELECT playlist_id FROM track_playlists WHERE track_id = ? ORDER BY playlist_id", trackID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query associations: %v", shared.ErrStorageFailure, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: failed to scan playlist id: %v", shared.ErrStorageFailure, err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// TrackIDsForPlaylist lists the members of one playlist.
func (r *AssociationRepository) TrackIDsForPlaylist(playlistID string) ([]string, error) {
	rows, err := r.db.Query("SELECT track_id FROM track_playlists WHERE playlist_id = ? ORDER BY track_id", playlistID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query associations: %v", shared.ErrStorageFailure, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: failed to scan track id: %v", shared.ErrStorageFailure, err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ApplyBatch inserts and deletes memberships inside one transaction.
//
// Inserts ignore rows that already exist, so replaying a committed batch is a no-op.
func (r *AssociationRepository) ApplyBatch(add, remove []services.Association) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}

	return withTx(r.db, func(tx *sql.Tx) error {
		for _, a := range add {
			_, err := tx.Exec(
				"INSERT OR IGNORE INTO track_playlists (track_id, playlist_id) VALUES (?, ?)",
				a.TrackID, a.PlaylistID,
			)
			if err != nil {
				return fmt.Errorf("%w: failed to add association (%s, %s): %v", shared.ErrStorageFailure, a.TrackID, a.PlaylistID, err)
			}
		}

		for _, a := range remove {
			_, err := tx.Exec(
				"DELETE FROM track_playlists WHERE track_id = ? AND playlist_id = ?",
				a.TrackID, a.PlaylistID,
			)
			if err != nil {
				return fmt.Errorf("%w: failed to remove association (%s, %s): %v", shared.ErrStorageFailure, a.TrackID, a.PlaylistID, err)
			}
		}

		return nil
	})
}

// DeleteAll removes every membership row.
func (r *AssociationRepository) DeleteAll() error {
	if _, err := r.db.Exec("DELETE FROM track_playlists"); err != nil {
		return fmt.Errorf("%w: failed to delete associations: %v", shared.ErrStorageFailure, err)
	}
	return nil
}

// Count reports the number of persisted memberships.
func (r *AssociationRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM track_playlists").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count associations: %v", shared.ErrStorageFailure, err)
	}
	return count, nil
}
