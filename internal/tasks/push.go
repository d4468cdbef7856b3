package tasks

import (
	"context"
	"fmt"
	"sort"

	"github.com/tagify/spotmirror/internal/diff"
	"github.com/tagify/spotmirror/internal/services"
	"github.com/tagify/spotmirror/internal/shared"
)

// PushResult summarizes a one-directional membership push to the remote service.
type PushResult struct {
	Operation          Operation `json:"operation"`
	Success            bool      `json:"success"`
	Message            string    `json:"message"`
	TracksAdded        int       `json:"tracks_added"`
	TracksRemoved      int       `json:"tracks_removed,omitempty"`
	PlaylistsProcessed int       `json:"playlists_processed,omitempty"`
}

// SyncToMaster pushes every track from changed playlists into the MASTER
// playlist. The caller confirms before invoking since this mutates remote
// state.
//
// Membership reads force-refresh the cache: a stale snapshot here would push
// duplicates or miss tracks. Only playlists whose snapshot version moved since
// the last push are scanned; their marker is advanced after a successful push.
func (e *SyncEngine) SyncToMaster(ctx context.Context) (*PushResult, error) {
	if e.cfg.MasterID == "" {
		return nil, fmt.Errorf("%w: master playlist id not configured", shared.ErrInvalidConfig)
	}

	playlists, err := e.library.Playlists(ctx, true)
	if err != nil {
		return nil, err
	}

	records, err := e.stores.Playlists.All()
	if err != nil {
		return nil, err
	}
	lastPushed := make(map[string]string, len(records))
	for _, rec := range records {
		lastPushed[rec.ID] = rec.MasterSnapshotID
	}

	var changed []services.Playlist
	for _, p := range playlists {
		if p.ID == e.cfg.MasterID {
			continue
		}
		if lastPushed[p.ID] != p.SnapshotID || p.SnapshotID == "" {
			changed = append(changed, p)
		}
	}

	if len(changed) == 0 {
		return &PushResult{
			Operation: OpToMaster,
			Success:   true,
			Message:   "All playlists already synced to master",
		}, nil
	}

	masterTracks, err := e.library.PlaylistTracks(ctx, e.cfg.MasterID, true)
	if err != nil {
		return nil, err
	}
	masterSet := make(map[string]struct{}, len(masterTracks))
	for _, t := range masterTracks {
		masterSet[t.ID] = struct{}{}
	}

	memberships, err := e.fetchMemberships(ctx, changed, true)
	if err != nil {
		return nil, err
	}

	missing := make(map[string]struct{})
	for _, p := range changed {
		for _, track := range memberships[p.ID] {
			// Local files carry no remote identifier and cannot be added via the API.
			if track.IsLocal {
				continue
			}
			if _, ok := masterSet[track.ID]; !ok {
				missing[track.ID] = struct{}{}
			}
		}
	}

	toAdd := make([]string, 0, len(missing))
	for id := range missing {
		toAdd = append(toAdd, id)
	}
	sort.Strings(toAdd)

	e.remoteMu.Lock()
	defer e.remoteMu.Unlock()

	if len(toAdd) > 0 {
		if err := e.library.AddPlaylistTracks(ctx, e.cfg.MasterID, toAdd); err != nil {
			return nil, err
		}
	}

	// Advance the snapshot markers only after the remote mutation succeeded.
	for _, p := range changed {
		if _, known := lastPushed[p.ID]; !known {
			continue
		}
		if err := e.stores.Playlists.SetMasterSnapshot(p.ID, p.SnapshotID); err != nil {
			return nil, err
		}
	}

	e.opLogger(OpToMaster).Info("master sync complete", "tracks_added", len(toAdd), "playlists", len(changed))
	return &PushResult{
		Operation:          OpToMaster,
		Success:            true,
		Message:            fmt.Sprintf("Added %d tracks to master from %d changed playlists", len(toAdd), len(changed)),
		TracksAdded:        len(toAdd),
		PlaylistsProcessed: len(changed),
	}, nil
}

// SyncUnplaylisted reconciles the UNSORTED playlist against the liked-songs
// collection: liked tracks that belong to no playlist are added, and tracks
// that have since been sorted into a real playlist are removed. The caller
// confirms before invoking.
func (e *SyncEngine) SyncUnplaylisted(ctx context.Context) (*PushResult, error) {
	if e.cfg.UnsortedID == "" {
		return nil, fmt.Errorf("%w: unsorted playlist id not configured", shared.ErrInvalidConfig)
	}

	liked, err := e.library.LikedTracks(ctx, e.cfg.LikedSince, true)
	if err != nil {
		return nil, err
	}

	playlists, err := e.library.Playlists(ctx, true)
	if err != nil {
		return nil, err
	}

	var others []services.Playlist
	for _, p := range playlists {
		if p.ID != e.cfg.UnsortedID {
			others = append(others, p)
		}
	}

	memberships, err := e.fetchMemberships(ctx, others, true)
	if err != nil {
		return nil, err
	}

	playlisted := make(map[string]struct{})
	for _, p := range others {
		for _, track := range memberships[p.ID] {
			playlisted[track.ID] = struct{}{}
		}
	}

	unsortedTracks, err := e.library.PlaylistTracks(ctx, e.cfg.UnsortedID, true)
	if err != nil {
		return nil, err
	}

	var unsortedIDs []string
	for _, t := range unsortedTracks {
		unsortedIDs = append(unsortedIDs, t.ID)
	}
	unsortedSet := diff.TrackIDSet(unsortedIDs)

	// Tracks now sorted elsewhere no longer belong in UNSORTED.
	var toRemove []string
	for _, id := range unsortedIDs {
		if _, ok := playlisted[id]; ok {
			toRemove = append(toRemove, id)
		}
	}

	var toAdd []string
	for _, track := range liked {
		if track.IsLocal {
			continue
		}
		if _, ok := playlisted[track.ID]; ok {
			continue
		}
		if _, ok := unsortedSet[track.ID]; ok {
			continue
		}
		toAdd = append(toAdd, track.ID)
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)

	e.remoteMu.Lock()
	defer e.remoteMu.Unlock()

	if len(toAdd) > 0 {
		if err := e.library.AddPlaylistTracks(ctx, e.cfg.UnsortedID, toAdd); err != nil {
			return nil, err
		}
	}
	if len(toRemove) > 0 {
		if err := e.library.RemovePlaylistTracks(ctx, e.cfg.UnsortedID, toRemove); err != nil {
			return nil, err
		}
	}

	e.opLogger(OpUnplaylisted).Info("unplaylisted sync complete", "added", len(toAdd), "removed", len(toRemove))
	return &PushResult{
		Operation:     OpUnplaylisted,
		Success:       true,
		Message:       fmt.Sprintf("Added %d liked tracks to unsorted, removed %d now-playlisted tracks", len(toAdd), len(toRemove)),
		TracksAdded:   len(toAdd),
		TracksRemoved: len(toRemove),
	}, nil
}
