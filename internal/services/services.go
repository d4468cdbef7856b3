// package services defines interface Library for the remote track library
package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// Library defines typed access to the remote collections and the membership mutations.
type Library interface {
	// CurrentUser retrieves the authenticated user's profile.
	CurrentUser(ctx context.Context) (*User, error)

	// Playlists retrieves every playlist owned by the current user, with
	// exclusion rules already applied. Pagination is handled internally and a
	// complete collection is always returned.
	Playlists(ctx context.Context) ([]Playlist, error)

	// PlaylistTracks retrieves the full, merged track list of one playlist.
	PlaylistTracks(ctx context.Context, playlistID string) ([]Track, error)

	// LikedTracks retrieves the user's liked songs added at or after since.
	// A zero since returns the whole collection.
	LikedTracks(ctx context.Context, since time.Time) ([]Track, error)

	// AddPlaylistTracks adds the given track IDs to a playlist.
	AddPlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error

	// RemovePlaylistTracks removes the given track IDs from a playlist.
	RemovePlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error

	// Name returns the provider name (e.g. "Spotify").
	Name() string
}

// User represents the authenticated remote user.
type User struct {
	ID          string
	DisplayName string
}

// Playlist represents a remote playlist.
type Playlist struct {
	ID          string
	Name        string
	Description string
	SnapshotID  string
	TrackCount  int
}

// Track represents a remote track.
//
// Local-file entries carry no remote identifier; their ID is derived
// deterministically from the URI so they remain stable across syncs.
type Track struct {
	ID         string
	URI        string
	Title      string
	Artists    []string
	Album      string
	DurationMS int
	IsLocal    bool
	AddedAt    time.Time
}

// Association is a track's membership in a playlist. Existence is the fact
// being synchronized; there are no further attributes.
type Association struct {
	TrackID    string
	PlaylistID string
}

// ArtistNames joins the track's artist list for display and comparison.
func (t Track) ArtistNames() string {
	return strings.Join(t.Artists, ", ")
}

// LocalTrackID derives a stable identifier for a local-file track from its URI.
func LocalTrackID(uri string) string {
	sum := sha1.Sum([]byte(uri))
	return "local_" + hex.EncodeToString(sum[:8])
}
