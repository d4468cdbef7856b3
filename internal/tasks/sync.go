package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/tagify/spotmirror/internal/diff"
	"github.com/tagify/spotmirror/internal/repositories"
	"github.com/tagify/spotmirror/internal/services"
	"github.com/tagify/spotmirror/internal/shared"
)

// SyncPlaylists reconciles the remote playlist collection with the local mirror.
func (e *SyncEngine) SyncPlaylists(ctx context.Context, opts Options) (*Outcome, error) {
	remote, err := e.library.Playlists(ctx, opts.ForceRefresh)
	if err != nil {
		return nil, err
	}

	if !opts.Confirm {
		result, stats, err := e.playlistDiff(remote)
		if err != nil {
			return nil, err
		}
		if !result.Empty() {
			return &Outcome{
				Operation:         OpPlaylists,
				Stage:             stageAnalysis,
				NeedsConfirmation: true,
				Message: fmt.Sprintf("Analysis complete: %d to add, %d to update, %d unchanged",
					stats.Added, stats.Updated, stats.Unchanged),
				Stats:   stats,
				Details: playlistAnalysis(result, opts.ForceRefresh),
			}, nil
		}
	}

	// The local read and diff happen under the lock: a concurrent commit that
	// finishes first is visible here, so its rows count as unchanged rather
	// than added a second time.
	e.playlistsMu.Lock()
	defer e.playlistsMu.Unlock()

	result, stats, err := e.playlistDiff(remote)
	if err != nil {
		return nil, err
	}

	changed := make([]services.Playlist, 0, len(result.Added)+len(result.Updated))
	changed = append(changed, result.Added...)
	for _, change := range result.Updated {
		changed = append(changed, change.New)
	}

	if err := e.stores.Playlists.UpsertBatch(changed); err != nil {
		return nil, err
	}

	e.opLogger(OpPlaylists).Info("playlists synced", "added", stats.Added, "updated", stats.Updated, "unchanged", stats.Unchanged)
	return &Outcome{
		Operation: OpPlaylists,
		Stage:     stageComplete,
		Message: fmt.Sprintf("Playlists synced: %d added, %d updated, %d unchanged",
			stats.Added, stats.Updated, stats.Unchanged),
		Stats: stats,
	}, nil
}

// SyncTracks reconciles the MASTER playlist's tracks with the local mirror.
func (e *SyncEngine) SyncTracks(ctx context.Context, opts Options) (*Outcome, error) {
	if e.cfg.MasterID == "" {
		return nil, fmt.Errorf("%w: master playlist id not configured", shared.ErrInvalidConfig)
	}

	remote, err := e.library.PlaylistTracks(ctx, e.cfg.MasterID, opts.ForceRefresh)
	if err != nil {
		return nil, err
	}

	if !opts.Confirm {
		result, stats, err := e.trackDiff(remote)
		if err != nil {
			return nil, err
		}
		if !result.Empty() {
			return &Outcome{
				Operation:         OpTracks,
				Stage:             stageAnalysis,
				NeedsConfirmation: true,
				Message: fmt.Sprintf("Analysis complete: %d to add, %d to update, %d unchanged",
					stats.Added, stats.Updated, stats.Unchanged),
				Stats:   stats,
				Details: trackAnalysis(result, opts.ForceRefresh),
			}, nil
		}
	}

	// Read and diff under the lock, same as SyncPlaylists.
	e.tracksMu.Lock()
	defer e.tracksMu.Unlock()

	result, stats, err := e.trackDiff(remote)
	if err != nil {
		return nil, err
	}

	changed := make([]services.Track, 0, len(result.Added)+len(result.Updated))
	changed = append(changed, result.Added...)
	for _, change := range result.Updated {
		changed = append(changed, change.New)
	}

	if err := e.stores.Tracks.UpsertBatch(changed); err != nil {
		return nil, err
	}

	e.opLogger(OpTracks).Info("tracks synced", "added", stats.Added, "updated", stats.Updated, "unchanged", stats.Unchanged)
	return &Outcome{
		Operation: OpTracks,
		Stage:     stageComplete,
		Message: fmt.Sprintf("Tracks synced: %d added, %d updated, %d unchanged",
			stats.Added, stats.Updated, stats.Unchanged),
		Stats: stats,
	}, nil
}

// SyncAssociations reconciles track↔playlist memberships with the local mirror.
//
// The remote membership snapshot is assembled from every playlist's track list
// and restricted to entities the mirror already knows, then set-diffed against
// the persisted associations. Adds and removes are both applied on confirm.
func (e *SyncEngine) SyncAssociations(ctx context.Context, opts Options) (*Outcome, error) {
	remote, err := e.fetchRemoteAssociations(ctx, opts.ForceRefresh)
	if err != nil {
		return nil, err
	}

	if !opts.Confirm {
		added, removed, err := e.associationDiff(remote)
		if err != nil {
			return nil, err
		}
		if len(added) > 0 || len(removed) > 0 {
			return &Outcome{
				Operation:         OpAssociations,
				Stage:             stageAnalysis,
				NeedsConfirmation: true,
				Message: fmt.Sprintf("Analysis complete: %d associations to add, %d to remove",
					len(added), len(removed)),
				Stats:   Stats{Added: len(added), RemovedLocally: len(removed), Unchanged: len(remote) - len(added)},
				Details: associationAnalysis(added, removed, opts.ForceRefresh),
			}, nil
		}
	}

	// Read and diff under the lock, same as SyncPlaylists.
	e.associationsMu.Lock()
	defer e.associationsMu.Unlock()

	added, removed, err := e.associationDiff(remote)
	if err != nil {
		return nil, err
	}
	stats := Stats{Added: len(added), RemovedLocally: len(removed), Unchanged: len(remote) - len(added)}

	if err := e.stores.Associations.ApplyBatch(added, removed); err != nil {
		return nil, err
	}

	e.opLogger(OpAssociations).Info("associations synced", "added", len(added), "removed", len(removed))
	return &Outcome{
		Operation: OpAssociations,
		Stage:     stageComplete,
		Message: fmt.Sprintf("Associations synced: %d added, %d removed",
			len(added), len(removed)),
		Stats: stats,
	}, nil
}

// playlistDiff reads the mirrored playlists and diffs them against the remote
// collection.
func (e *SyncEngine) playlistDiff(remote []services.Playlist) (diff.Result[services.Playlist], Stats, error) {
	local, err := e.stores.Playlists.All()
	if err != nil {
		return diff.Result[services.Playlist]{}, Stats{}, err
	}
	result := diff.Playlists(remote, repositories.Snapshots(local))
	return result, diffStats(result), nil
}

// trackDiff reads the mirrored tracks and diffs them against the remote set.
func (e *SyncEngine) trackDiff(remote []services.Track) (diff.Result[services.Track], Stats, error) {
	local, err := e.stores.Tracks.All()
	if err != nil {
		return diff.Result[services.Track]{}, Stats{}, err
	}
	result := diff.Tracks(remote, repositories.TrackSnapshots(local))
	return result, diffStats(result), nil
}

// associationDiff reads the mirrored memberships and set-diffs them against
// the remote snapshot.
func (e *SyncEngine) associationDiff(remote []services.Association) (added, removed []services.Association, err error) {
	local, err := e.stores.Associations.All()
	if err != nil {
		return nil, nil, err
	}
	added, removed = diff.Associations(remote, local)
	return added, removed, nil
}

func diffStats[T any](result diff.Result[T]) Stats {
	return Stats{
		Added:          len(result.Added),
		Updated:        len(result.Updated),
		Unchanged:      len(result.Unchanged),
		RemovedLocally: len(result.RemovedLocally),
	}
}

// SyncAll runs playlists, then tracks, then associations.
//
// Without confirmation it aggregates the three analyses into one combined
// payload so the caller approves everything at once. With confirmation it
// commits the steps sequentially; a failing step stops the run, and the
// outcome reports exactly which steps committed. Already-committed steps are
// not rolled back.
func (e *SyncEngine) SyncAll(ctx context.Context, opts Options) (*Outcome, error) {
	type step struct {
		op  Operation
		run func(context.Context, Options) (*Outcome, error)
	}

	steps := []step{
		{OpPlaylists, e.SyncPlaylists},
		{OpTracks, e.SyncTracks},
		{OpAssociations, e.SyncAssociations},
	}

	if !opts.Confirm {
		combined := &Outcome{Operation: OpAll, Stage: stageAnalysis}
		details := &Analysis{ForceRefresh: opts.ForceRefresh}

		for _, s := range steps {
			outcome, err := s.run(ctx, Options{ForceRefresh: opts.ForceRefresh})
			if err != nil {
				return nil, fmt.Errorf("analysis of %s failed: %w", s.op, err)
			}

			combined.Stats.Merge(outcome.Stats)
			combined.Steps = append(combined.Steps, StepResult{
				Operation: s.op,
				Stats:     outcome.Stats,
				Committed: outcome.Stage == stageComplete,
			})
			if outcome.NeedsConfirmation {
				combined.NeedsConfirmation = true
				mergeAnalysis(details, outcome.Details)
			}
		}

		if combined.NeedsConfirmation {
			combined.Details = details
			combined.Message = fmt.Sprintf("Combined analysis: %d to add, %d to update, %d unchanged",
				combined.Stats.Added, combined.Stats.Updated, combined.Stats.Unchanged)
			return combined, nil
		}

		combined.Stage = stageComplete
		combined.Message = "Everything is up to date"
		return combined, nil
	}

	combined := &Outcome{Operation: OpAll, Stage: stageComplete}
	for _, s := range steps {
		outcome, err := s.run(ctx, opts)
		if err != nil {
			combined.Steps = append(combined.Steps, StepResult{
				Operation: s.op,
				Error:     shared.FormatError(err),
			})
			combined.Message = fmt.Sprintf("Sync stopped at %s: %v", s.op, err)
			return combined, err
		}

		combined.Stats.Merge(outcome.Stats)
		combined.Steps = append(combined.Steps, StepResult{
			Operation: s.op,
			Stats:     outcome.Stats,
			Committed: true,
		})
	}

	combined.Message = fmt.Sprintf("Full sync complete: %d added, %d updated, %d unchanged",
		combined.Stats.Added, combined.Stats.Updated, combined.Stats.Unchanged)
	return combined, nil
}

// fetchRemoteAssociations assembles the complete membership snapshot.
//
// Playlists' track lists are fetched through a bounded worker pool and merged
// in playlist order, so the diff always observes a complete, deterministic
// snapshot; any page failure aborts the whole assembly.
func (e *SyncEngine) fetchRemoteAssociations(ctx context.Context, forceRefresh bool) ([]services.Association, error) {
	playlists, err := e.library.Playlists(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	knownPlaylists, err := e.stores.Playlists.All()
	if err != nil {
		return nil, err
	}
	knownTracks, err := e.stores.Tracks.All()
	if err != nil {
		return nil, err
	}

	playlistSet := make(map[string]struct{}, len(knownPlaylists))
	for _, p := range knownPlaylists {
		playlistSet[p.ID] = struct{}{}
	}
	trackSet := make(map[string]struct{}, len(knownTracks))
	for _, t := range knownTracks {
		trackSet[t.ID] = struct{}{}
	}

	memberships, err := e.fetchMemberships(ctx, playlists, forceRefresh)
	if err != nil {
		return nil, err
	}

	var associations []services.Association
	for _, p := range playlists {
		if _, ok := playlistSet[p.ID]; !ok {
			continue
		}
		for _, track := range memberships[p.ID] {
			if _, ok := trackSet[track.ID]; !ok {
				continue
			}
			associations = append(associations, services.Association{
				TrackID:    track.ID,
				PlaylistID: p.ID,
			})
		}
	}

	return associations, nil
}

type membershipJob struct {
	playlistID string
}

type membershipResult struct {
	playlistID string
	tracks     []services.Track
	err        error
}

// fetchMemberships retrieves each playlist's track list through a worker pool.
func (e *SyncEngine) fetchMemberships(ctx context.Context, playlists []services.Playlist, forceRefresh bool) (map[string][]services.Track, error) {
	jobs := make(chan membershipJob, len(playlists))
	results := make(chan membershipResult, len(playlists))

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.FetchWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-ctx.Done():
					results <- membershipResult{playlistID: job.playlistID, err: ctx.Err()}
					continue
				default:
				}

				tracks, err := e.library.PlaylistTracks(ctx, job.playlistID, forceRefresh)
				results <- membershipResult{playlistID: job.playlistID, tracks: tracks, err: err}
			}
		}()
	}

	for _, p := range playlists {
		jobs <- membershipJob{playlistID: p.ID}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	memberships := make(map[string][]services.Track, len(playlists))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to fetch tracks for playlist %s: %w", res.playlistID, res.err)
			}
			continue
		}
		memberships[res.playlistID] = res.tracks
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return memberships, nil
}

// analysisSampleLimit bounds the per-partition detail lists in association
// payloads; playlist and track analyses list everything since a human approves
// them item by item.
const analysisSampleLimit = 50

func playlistAnalysis(result diff.Result[services.Playlist], force bool) *Analysis {
	analysis := &Analysis{ForceRefresh: force}

	for _, p := range result.Added {
		analysis.AddedPlaylists = append(analysis.AddedPlaylists, PlaylistEntry{ID: p.ID, Name: p.Name})
	}
	for _, change := range result.Updated {
		analysis.UpdatedPlaylists = append(analysis.UpdatedPlaylists, RenamedPlaylist{
			ID:      change.New.ID,
			OldName: change.Old.Name,
			Name:    change.New.Name,
		})
	}
	for _, p := range result.RemovedLocally {
		analysis.RemovedPlaylists = append(analysis.RemovedPlaylists, PlaylistEntry{ID: p.ID, Name: p.Name})
	}

	return analysis
}

func trackAnalysis(result diff.Result[services.Track], force bool) *Analysis {
	analysis := &Analysis{ForceRefresh: force}

	for _, t := range result.Added {
		analysis.AddedTracks = append(analysis.AddedTracks, TrackEntry{
			ID:      t.ID,
			Title:   t.Title,
			Artists: t.ArtistNames(),
			Album:   t.Album,
			IsLocal: t.IsLocal,
		})
	}
	for _, change := range result.Updated {
		analysis.UpdatedTracks = append(analysis.UpdatedTracks, UpdatedTrack{
			ID:         change.New.ID,
			OldTitle:   change.Old.Title,
			OldArtists: change.Old.ArtistNames(),
			OldAlbum:   change.Old.Album,
			Title:      change.New.Title,
			Artists:    change.New.ArtistNames(),
			Album:      change.New.Album,
		})
	}
	for _, t := range result.RemovedLocally {
		analysis.RemovedTracks = append(analysis.RemovedTracks, TrackEntry{
			ID:      t.ID,
			Title:   t.Title,
			Artists: t.ArtistNames(),
			Album:   t.Album,
		})
	}

	return analysis
}

func associationAnalysis(added, removed []services.Association, force bool) *Analysis {
	analysis := &Analysis{
		ForceRefresh:         force,
		AssociationsToAdd:    len(added),
		AssociationsToRemove: len(removed),
	}

	for _, a := range added {
		if len(analysis.AssociationChanges) >= analysisSampleLimit {
			return analysis
		}
		analysis.AssociationChanges = append(analysis.AssociationChanges, AssociationChange{
			TrackID:    a.TrackID,
			PlaylistID: a.PlaylistID,
			Action:     "add",
		})
	}
	for _, a := range removed {
		if len(analysis.AssociationChanges) >= analysisSampleLimit {
			return analysis
		}
		analysis.AssociationChanges = append(analysis.AssociationChanges, AssociationChange{
			TrackID:    a.TrackID,
			PlaylistID: a.PlaylistID,
			Action:     "remove",
		})
	}

	return analysis
}

func mergeAnalysis(dst, src *Analysis) {
	if src == nil {
		return
	}
	dst.AddedPlaylists = append(dst.AddedPlaylists, src.AddedPlaylists...)
	dst.UpdatedPlaylists = append(dst.UpdatedPlaylists, src.UpdatedPlaylists...)
	dst.RemovedPlaylists = append(dst.RemovedPlaylists, src.RemovedPlaylists...)
	dst.AddedTracks = append(dst.AddedTracks, src.AddedTracks...)
	dst.UpdatedTracks = append(dst.UpdatedTracks, src.UpdatedTracks...)
	dst.RemovedTracks = append(dst.RemovedTracks, src.RemovedTracks...)
	dst.AssociationsToAdd += src.AssociationsToAdd
	dst.AssociationsToRemove += src.AssociationsToRemove
	dst.AssociationChanges = append(dst.AssociationChanges, src.AssociationChanges...)
}
