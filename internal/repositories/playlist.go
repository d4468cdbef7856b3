package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tagify/spotmirror/internal/services"
	"github.com/tagify/spotmirror/internal/shared"
)

// PlaylistRecord is the locally persisted projection of a remote playlist.
//
// MasterSnapshotID remembers the snapshot version last pushed to the MASTER
// playlist, so a later push only touches playlists whose snapshot moved.
type PlaylistRecord struct {
	services.Playlist
	MasterSnapshotID string
	UpdatedAt        time.Time
}

// PlaylistRepository handles playlist CRUD against the local mirror.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// All retrieves every persisted playlist ordered by name.
func (r *PlaylistRepository) All() ([]PlaylistRecord, error) {
	query := `
		SELECT id, name, description, snapshot_id, master_snapshot_id, track_count, updated_at
		FROM playlists
		ORDER BY name ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query playlists: %v", shared.ErrStorageFailure, err)
	}
	defer rows.Close()

	var playlists []PlaylistRecord
	for rows.Next() {
		var p PlaylistRecord
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.SnapshotID, &p.MasterSnapshotID, &p.TrackCount, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan playlist: %v", shared.ErrStorageFailure, err)
		}
		playlists = append(playlists, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorageFailure, err)
	}

	return playlists, nil
}

// Get retrieves a single playlist by its remote identifier.
func (r *PlaylistRepository) Get(id string) (*PlaylistRecord, error) {
	query := `
		SELECT id, name, description, snapshot_id, master_snapshot_id, track_count, updated_at
		FROM playlists
		WHERE id = ?
	`

	var p PlaylistRecord
	err := r.db.QueryRow(query, id).Scan(&p.ID, &p.Name, &p.Description, &p.SnapshotID, &p.MasterSnapshotID, &p.TrackCount, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan playlist: %v", shared.ErrStorageFailure, err)
	}

	return &p, nil
}

// UpsertBatch persists remote playlists inside one transaction.
//
// New identifiers are inserted; existing rows take the remote's mutable fields
// while keeping their master snapshot marker.
func (r *PlaylistRepository) UpsertBatch(playlists []services.Playlist) error {
	if len(playlists) == 0 {
		return nil
	}

	return withTx(r.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		query := `
			INSERT INTO playlists (id, name, description, snapshot_id, track_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				snapshot_id = excluded.snapshot_id,
				track_count = excluded.track_count,
				updated_at = excluded.updated_at
		`

		for _, p := range playlists {
			if _, err := tx.Exec(query, p.ID, p.Name, p.Description, p.SnapshotID, p.TrackCount, now, now); err != nil {
				return fmt.Errorf("%w: failed to upsert playlist %s: %v", shared.ErrStorageFailure, p.ID, err)
			}
		}
		return nil
	})
}

// SetMasterSnapshot records the snapshot version last synced to the MASTER playlist.
func (r *PlaylistRepository) SetMasterSnapshot(playlistID, snapshotID string) error {
	result, err := r.db.Exec(
		"UPDATE playlists SET master_snapshot_id = ?, updated_at = ? WHERE id = ?",
		snapshotID, time.Now().UTC(), playlistID,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update master snapshot: %v", shared.ErrStorageFailure, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorageFailure, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}

	return nil
}

// DeleteAll removes every playlist row.
func (r *PlaylistRepository) DeleteAll() error {
	if _, err := r.db.Exec("DELETE FROM playlists"); err != nil {
		return fmt.Errorf("%w: failed to delete playlists: %v", shared.ErrStorageFailure, err)
	}
	return nil
}

// Snapshots converts records back to the remote snapshot shape for diffing.
func Snapshots(records []PlaylistRecord) []services.Playlist {
	playlists := make([]services.Playlist, 0, len(records))
	for _, r := range records {
		playlists = append(playlists, r.Playlist)
	}
	return playlists
}
