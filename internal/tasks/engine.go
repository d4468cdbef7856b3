package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tagify/spotmirror/internal/repositories"
	"github.com/tagify/spotmirror/internal/services"
	"github.com/tagify/spotmirror/internal/shared"
)

// Operation names one orchestrated sync.
type Operation string

const (
	OpPlaylists     Operation = "playlists"
	OpTracks        Operation = "tracks"
	OpAssociations  Operation = "associations"
	OpAll           Operation = "all"
	OpToMaster      Operation = "to-master"
	OpUnplaylisted  Operation = "unplaylisted"
	OpClearDatabase Operation = "clear-database"
	OpClearCache    Operation = "clear-cache"
)

// Options carries the caller's directives for one sync invocation.
type Options struct {
	// ForceRefresh bypasses cache freshness and replaces the affected entries.
	ForceRefresh bool
	// Confirm authorizes the commit phase. When false and the diff is
	// consequential, the invocation stops after analysis.
	Confirm bool
}

// Stats summarizes one committed or analyzed diff.
type Stats struct {
	Added          int `json:"added"`
	Updated        int `json:"updated"`
	Unchanged      int `json:"unchanged"`
	RemovedLocally int `json:"removed_locally,omitempty"`
}

// Merge accumulates counts from another Stats.
func (s *Stats) Merge(other Stats) {
	s.Added += other.Added
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.RemovedLocally += other.RemovedLocally
}

// PlaylistEntry identifies a playlist in an analysis payload with enough
// context for a human to approve without consulting another system.
type PlaylistEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RenamedPlaylist reports an updated playlist carrying both names.
type RenamedPlaylist struct {
	ID      string `json:"id"`
	OldName string `json:"old_name"`
	Name    string `json:"name"`
}

// TrackEntry identifies a track in an analysis payload.
type TrackEntry struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Artists string `json:"artists"`
	Album   string `json:"album"`
	IsLocal bool   `json:"is_local,omitempty"`
}

// UpdatedTrack reports a changed track with old and new field values.
type UpdatedTrack struct {
	ID         string `json:"id"`
	OldTitle   string `json:"old_title"`
	OldArtists string `json:"old_artists"`
	OldAlbum   string `json:"old_album"`
	Title      string `json:"title"`
	Artists    string `json:"artists"`
	Album      string `json:"album"`
}

// AssociationChange reports one membership edit in an analysis payload.
type AssociationChange struct {
	TrackID    string `json:"track_id"`
	PlaylistID string `json:"playlist_id"`
	Action     string `json:"action"` // "add" | "remove"
}

// Analysis is the staged diff presented for approval. It exists only for the
// lifetime of the invocation that produced it; a confirming call regenerates
// it deterministically from the same inputs.
type Analysis struct {
	ForceRefresh bool `json:"force_refresh"`

	AddedPlaylists   []PlaylistEntry   `json:"added_playlists,omitempty"`
	UpdatedPlaylists []RenamedPlaylist `json:"updated_playlists,omitempty"`
	RemovedPlaylists []PlaylistEntry   `json:"removed_playlists,omitempty"`

	AddedTracks   []TrackEntry   `json:"added_tracks,omitempty"`
	UpdatedTracks []UpdatedTrack `json:"updated_tracks,omitempty"`
	RemovedTracks []TrackEntry   `json:"removed_tracks,omitempty"`

	AssociationsToAdd    int                 `json:"associations_to_add,omitempty"`
	AssociationsToRemove int                 `json:"associations_to_remove,omitempty"`
	AssociationChanges   []AssociationChange `json:"association_changes,omitempty"`
}

// StepResult reports one sub-operation of a combined sync.
type StepResult struct {
	Operation Operation `json:"operation"`
	Stats     Stats     `json:"stats"`
	Committed bool      `json:"committed"`
	Error     string    `json:"error,omitempty"`
}

// Outcome is the immutable summary returned to callers.
type Outcome struct {
	Operation         Operation    `json:"operation"`
	Stage             string       `json:"stage"` // "analysis" | "complete"
	NeedsConfirmation bool         `json:"needs_confirmation"`
	Message           string       `json:"message"`
	Stats             Stats        `json:"stats"`
	Details           *Analysis    `json:"details,omitempty"`
	Steps             []StepResult `json:"steps,omitempty"`
}

const (
	stageAnalysis = "analysis"
	stageComplete = "complete"
)

// LibrarySource is the orchestrator's view of the remote library behind the
// response cache. Read methods take the force-refresh directive; mutations
// call straight through.
type LibrarySource interface {
	Playlists(ctx context.Context, forceRefresh bool) ([]services.Playlist, error)
	PlaylistTracks(ctx context.Context, playlistID string, forceRefresh bool) ([]services.Track, error)
	LikedTracks(ctx context.Context, since time.Time, forceRefresh bool) ([]services.Track, error)
	AddPlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error
	RemovePlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error
	Clear()
}

// PlaylistStore is the orchestrator's write boundary for mirrored playlists.
type PlaylistStore interface {
	All() ([]repositories.PlaylistRecord, error)
	UpsertBatch(playlists []services.Playlist) error
	SetMasterSnapshot(playlistID, snapshotID string) error
}

// TrackStore is the orchestrator's write boundary for mirrored tracks.
type TrackStore interface {
	All() ([]repositories.TrackRecord, error)
	UpsertBatch(tracks []services.Track) error
}

// AssociationStore is the orchestrator's write boundary for memberships.
type AssociationStore interface {
	All() ([]services.Association, error)
	ApplyBatch(add, remove []services.Association) error
}

// Stores bundles the local repositories plus the whole-database wipe used by
// clear-database.
type Stores struct {
	Playlists    PlaylistStore
	Tracks       TrackStore
	Associations AssociationStore
	Wipe         func() error
}

// Config carries the privileged playlist identifiers and tuning knobs.
type Config struct {
	MasterID   string
	UnsortedID string
	LikedSince time.Time
	// FetchWorkers bounds concurrent membership fetches during analysis.
	FetchWorkers int
}

// SyncEngine drives the two-phase sync workflow for every operation.
//
// Commits are serialized per entity type so concurrent invocations of the same
// operation cannot double-count an added entity or race on the same rows.
type SyncEngine struct {
	library LibrarySource
	stores  Stores
	cfg     Config
	logger  *log.Logger

	playlistsMu    sync.Mutex
	tracksMu       sync.Mutex
	associationsMu sync.Mutex
	remoteMu       sync.Mutex
}

// NewSyncEngine creates a SyncEngine with the provided collaborators.
func NewSyncEngine(library LibrarySource, stores Stores, cfg Config, logger *log.Logger) *SyncEngine {
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 5
	}
	if cfg.FetchWorkers > 10 {
		cfg.FetchWorkers = 10
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &SyncEngine{
		library: library,
		stores:  stores,
		cfg:     cfg,
		logger:  logger,
	}
}

// opLogger derives a per-invocation child logger carrying a fresh run
// identifier, so log lines from overlapping invocations can be told apart.
func (e *SyncEngine) opLogger(op Operation) *log.Logger {
	return shared.WithLogger(e.logger, "run", shared.GenerateID(), "op", string(op))
}

// ClearCache discards every cached remote response. Immediate and
// unconditional: cache invalidation is not data loss, so no confirmation gate.
func (e *SyncEngine) ClearCache() *Outcome {
	e.library.Clear()
	return &Outcome{
		Operation: OpClearCache,
		Stage:     stageComplete,
		Message:   "Response cache cleared",
	}
}

// ClearDatabase deletes every locally persisted entity across all tables in
// one transaction. Destructive, so it always requires confirmation.
func (e *SyncEngine) ClearDatabase(confirm bool) (*Outcome, error) {
	if !confirm {
		return &Outcome{
			Operation:         OpClearDatabase,
			Stage:             stageAnalysis,
			NeedsConfirmation: true,
			Message:           "Clearing the database deletes all mirrored playlists, tracks and memberships",
		}, nil
	}

	e.playlistsMu.Lock()
	e.tracksMu.Lock()
	e.associationsMu.Lock()
	defer e.associationsMu.Unlock()
	defer e.tracksMu.Unlock()
	defer e.playlistsMu.Unlock()

	if err := e.stores.Wipe(); err != nil {
		return nil, err
	}

	e.opLogger(OpClearDatabase).Info("local mirror cleared")
	return &Outcome{
		Operation: OpClearDatabase,
		Stage:     stageComplete,
		Message:   "Database cleared successfully",
	}, nil
}
