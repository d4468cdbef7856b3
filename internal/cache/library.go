package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tagify/spotmirror/internal/services"
	"github.com/tagify/spotmirror/internal/shared"
)

// TTLs holds the per-collection cache lifetimes.
type TTLs struct {
	Playlists      time.Duration
	Tracks         time.Duration
	PlaylistTracks time.Duration
}

// DefaultTTLs mirrors the collection lifetimes the cache was tuned for:
// playlists and memberships an hour, track metadata a day.
func DefaultTTLs() TTLs {
	return TTLs{
		Playlists:      time.Hour,
		Tracks:         24 * time.Hour,
		PlaylistTracks: time.Hour,
	}
}

// Library decorates a [services.Library] with the response cache.
//
// Read methods take a forceRefresh flag that propagates the caller's directive
// all the way down: the corresponding entry is treated as a miss and replaced
// after the fresh fetch. Mutations call straight through and invalidate the
// affected membership entry.
type Library struct {
	remote services.Library
	store  *Store
	ttls   TTLs
	logger *log.Logger
}

// NewLibrary wraps remote with the response cache.
func NewLibrary(remote services.Library, store *Store, ttls TTLs, logger *log.Logger) *Library {
	if store == nil {
		store = NewStore()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Library{remote: remote, store: store, ttls: ttls, logger: logger}
}

// Playlists returns the user's playlists, served from cache when fresh.
func (l *Library) Playlists(ctx context.Context, forceRefresh bool) ([]services.Playlist, error) {
	key := shared.CacheKey("playlists")
	return fill(l, key, l.ttls.Playlists, forceRefresh, func() ([]services.Playlist, error) {
		return l.remote.Playlists(ctx)
	})
}

// PlaylistTracks returns one playlist's full track list, served from cache when fresh.
func (l *Library) PlaylistTracks(ctx context.Context, playlistID string, forceRefresh bool) ([]services.Track, error) {
	key := shared.CacheKey("playlist_tracks", playlistID)
	return fill(l, key, l.ttls.PlaylistTracks, forceRefresh, func() ([]services.Track, error) {
		return l.remote.PlaylistTracks(ctx, playlistID)
	})
}

// LikedTracks returns the liked songs collection, served from cache when fresh.
func (l *Library) LikedTracks(ctx context.Context, since time.Time, forceRefresh bool) ([]services.Track, error) {
	key := shared.CacheKey("liked_tracks", since.UTC().Format("2006-01-02"))
	return fill(l, key, l.ttls.Tracks, forceRefresh, func() ([]services.Track, error) {
		return l.remote.LikedTracks(ctx, since)
	})
}

// AddPlaylistTracks issues the remote mutation and invalidates the playlist's membership entry.
func (l *Library) AddPlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if err := l.remote.AddPlaylistTracks(ctx, playlistID, trackIDs); err != nil {
		return err
	}
	l.InvalidatePlaylist(playlistID)
	return nil
}

// RemovePlaylistTracks issues the remote mutation and invalidates the playlist's membership entry.
func (l *Library) RemovePlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if err := l.remote.RemovePlaylistTracks(ctx, playlistID, trackIDs); err != nil {
		return err
	}
	l.InvalidatePlaylist(playlistID)
	return nil
}

// InvalidatePlaylist drops the membership entry for one playlist without
// flushing the rest of the cache.
func (l *Library) InvalidatePlaylist(playlistID string) {
	l.store.Invalidate(shared.CacheKey("playlist_tracks", playlistID))
}

// Clear discards every cached entry.
func (l *Library) Clear() {
	l.store.Clear()
	l.logger.Info("response cache cleared")
}

// fill runs the typed fetch-through-cache cycle, JSON being the opaque payload format.
func fill[T any](l *Library, key string, ttl time.Duration, force bool, fetch func() ([]T, error)) ([]T, error) {
	payload, err := l.store.Fill(key, ttl, force, func() ([]byte, error) {
		items, err := fetch()
		if err != nil {
			return nil, err
		}
		l.logger.Debug("fetched from remote", "key", key, "count", len(items))
		return json.Marshal(items)
	})
	if err != nil {
		return nil, err
	}

	var items []T
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("failed to decode cached payload for %s: %w", key, err)
	}
	return items, nil
}
