// package diff computes the remote-vs-local comparison that drives every sync.
//
// The engine is pure: it reads two snapshots and produces an immutable result,
// never touching storage or the network.
package diff

import (
	"github.com/tagify/spotmirror/internal/services"
)

// Change pairs the local (old) and remote (new) versions of an updated entity.
type Change[T any] struct {
	Old T
	New T
}

// Result partitions a remote snapshot against the local mirror.
//
// Added, Updated and Unchanged are a complete, non-overlapping cover of the
// remote snapshot's identifier set. RemovedLocally lists entities only the
// local mirror knows about; they are reported, never auto-deleted, because a
// missing remote read must not be read as "user deleted everything".
type Result[T any] struct {
	Added          []T
	Updated        []Change[T]
	Unchanged      []T
	RemovedLocally []T
}

// Empty reports whether the diff carries no additions or updates.
func (r Result[T]) Empty() bool {
	return len(r.Added) == 0 && len(r.Updated) == 0
}

// Entities compares two snapshots keyed by id, using equal as the configured
// equality field-set. Iteration follows the remote snapshot's order so results
// are deterministic for a given input.
func Entities[T any](remote, local []T, id func(T) string, equal func(a, b T) bool) Result[T] {
	index := make(map[string]T, len(local))
	for _, entity := range local {
		index[id(entity)] = entity
	}

	var result Result[T]
	seen := make(map[string]struct{}, len(remote))

	for _, entity := range remote {
		key := id(entity)
		seen[key] = struct{}{}

		existing, ok := index[key]
		if !ok {
			result.Added = append(result.Added, entity)
			continue
		}
		if equal(existing, entity) {
			result.Unchanged = append(result.Unchanged, entity)
		} else {
			result.Updated = append(result.Updated, Change[T]{Old: existing, New: entity})
		}
	}

	for _, entity := range local {
		if _, ok := seen[id(entity)]; !ok {
			result.RemovedLocally = append(result.RemovedLocally, entity)
		}
	}

	return result
}

// Playlists diffs remote playlists against the local mirror.
//
// The equality field-set is name and description; a renamed playlist is
// classified as updated, with both names available via the Change pair.
func Playlists(remote, local []services.Playlist) Result[services.Playlist] {
	return Entities(remote, local,
		func(p services.Playlist) string { return p.ID },
		func(a, b services.Playlist) bool {
			return a.Name == b.Name && a.Description == b.Description
		},
	)
}

// Tracks diffs remote tracks against the local mirror.
//
// The equality field-set is title, artist list, album and duration.
func Tracks(remote, local []services.Track) Result[services.Track] {
	return Entities(remote, local,
		func(t services.Track) string { return t.ID },
		func(a, b services.Track) bool {
			return a.Title == b.Title && a.ArtistNames() == b.ArtistNames() &&
				a.Album == b.Album && a.DurationMS == b.DurationMS
		},
	)
}

// Associations computes the pure set-difference between remote and local
// memberships. Membership has no attributes, so there is no updated partition.
func Associations(remote, local []services.Association) (added, removed []services.Association) {
	remoteSet := make(map[services.Association]struct{}, len(remote))
	for _, a := range remote {
		remoteSet[a] = struct{}{}
	}
	localSet := make(map[services.Association]struct{}, len(local))
	for _, a := range local {
		localSet[a] = struct{}{}
	}

	for _, a := range remote {
		if _, ok := localSet[a]; !ok {
			added = append(added, a)
		}
	}
	for _, a := range local {
		if _, ok := remoteSet[a]; !ok {
			removed = append(removed, a)
		}
	}

	return added, removed
}

// TrackIDSet builds a membership lookup from a slice of track IDs.
func TrackIDSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
