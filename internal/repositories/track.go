package repositories

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tagify/spotmirror/internal/services"
	"github.com/tagify/spotmirror/internal/shared"
)

// TrackRecord is the locally persisted projection of a remote track,
// extended with the file-side fields the organizer layers depend on.
type TrackRecord struct {
	services.Track
	LocalPath   string // empty when no audio file is mapped
	TagEmbedded bool
	UpdatedAt   time.Time
}

// TrackRepository handles track CRUD against the local mirror.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// All retrieves every persisted track.
func (r *TrackRepository) All() ([]TrackRecord, error) {
	query := `
		SELECT id, uri, title, artists, album, duration_ms, is_local, local_path, tag_embedded, added_at, updated_at
		FROM tracks
		ORDER BY artists ASC, title ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query tracks: %v", shared.ErrStorageFailure, err)
	}
	defer rows.Close()

	var tracks []TrackRecord
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorageFailure, err)
	}

	return tracks, nil
}

// Get retrieves a single track by its remote identifier.
func (r *TrackRepository) Get(id string) (*TrackRecord, error) {
	query := `
		SELECT id, uri, title, artists, album, duration_ms, is_local, local_path, tag_embedded, added_at, updated_at
		FROM tracks
		WHERE id = ?
	`

	rows, err := r.db.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query track: %v", shared.ErrStorageFailure, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}

	track, err := scanTrack(rows)
	if err != nil {
		return nil, err
	}
	return &track, nil
}

// UpsertBatch persists remote tracks inside one transaction.
//
// The file-side columns (local_path, tag_embedded) are never touched by a
// sync; they belong to the file-organization layer.
func (r *TrackRepository) UpsertBatch(tracks []services.Track) error {
	if len(tracks) == 0 {
		return nil
	}

	return withTx(r.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		query := `
			INSERT INTO tracks (id, uri, title, artists, album, duration_ms, is_local, added_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				uri = excluded.uri,
				title = excluded.title,
				artists = excluded.artists,
				album = excluded.album,
				duration_ms = excluded.duration_ms,
				is_local = excluded.is_local,
				updated_at = excluded.updated_at
		`

		for _, t := range tracks {
			var addedAt any
			if !t.AddedAt.IsZero() {
				addedAt = t.AddedAt.UTC()
			}
			if _, err := tx.Exec(query, t.ID, t.URI, t.Title, t.ArtistNames(), t.Album, t.DurationMS, t.IsLocal, addedAt, now, now); err != nil {
				return fmt.Errorf("%w: failed to upsert track %s: %v", shared.ErrStorageFailure, t.ID, err)
			}
		}
		return nil
	})
}

// SetLocalFile maps a track to an audio file on disk.
func (r *TrackRepository) SetLocalFile(trackID, path string) error {
	result, err := r.db.Exec(
		"UPDATE tracks SET local_path = ?, updated_at = ? WHERE id = ?",
		path, time.Now().UTC(), trackID,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to set local file: %v", shared.ErrStorageFailure, err)
	}
	return requireRow(result, trackID)
}

// MarkTagEmbedded records that the track's identifier has been written into its file tags.
func (r *TrackRepository) MarkTagEmbedded(trackID string) error {
	result, err := r.db.Exec(
		"UPDATE tracks SET tag_embedded = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), trackID,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to mark tag embedded: %v", shared.ErrStorageFailure, err)
	}
	return requireRow(result, trackID)
}

// DeleteAll removes every track row.
func (r *TrackRepository) DeleteAll() error {
	if _, err := r.db.Exec("DELETE FROM tracks"); err != nil {
		return fmt.Errorf("%w: failed to delete tracks: %v", shared.ErrStorageFailure, err)
	}
	return nil
}

// TrackSnapshots converts records back to the remote snapshot shape for diffing.
func TrackSnapshots(records []TrackRecord) []services.Track {
	tracks := make([]services.Track, 0, len(records))
	for _, r := range records {
		tracks = append(tracks, r.Track)
	}
	return tracks
}

func requireRow(result sql.Result, trackID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorageFailure, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, trackID)
	}
	return nil
}

func scanTrack(rows *sql.Rows) (TrackRecord, error) {
	var (
		track     TrackRecord
		artists   string
		localPath sql.NullString
		addedAt   sql.NullTime
	)

	err := rows.Scan(&track.ID, &track.URI, &track.Title, &artists, &track.Album, &track.DurationMS, &track.IsLocal, &localPath, &track.TagEmbedded, &addedAt, &track.UpdatedAt)
	if err != nil {
		return TrackRecord{}, fmt.Errorf("%w: failed to scan track: %v", shared.ErrStorageFailure, err)
	}

	if artists != "" {
		track.Artists = strings.Split(artists, ", ")
	}
	if localPath.Valid {
		track.LocalPath = localPath.String
	}
	if addedAt.Valid {
		track.AddedAt = addedAt.Time
	}

	return track, nil
}
