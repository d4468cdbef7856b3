package tasks

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tagify/spotmirror/internal/repositories"
	"github.com/tagify/spotmirror/internal/services"
	"github.com/tagify/spotmirror/internal/shared"
	tu "github.com/tagify/spotmirror/internal/testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func setupEngine(t *testing.T, library LibrarySource) (*SyncEngine, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	stores := Stores{
		Playlists:    repositories.NewPlaylistRepository(db),
		Tracks:       repositories.NewTrackRepository(db),
		Associations: repositories.NewAssociationRepository(db),
		Wipe:         func() error { return repositories.ClearAll(db) },
	}
	cfg := Config{MasterID: "master", UnsortedID: "unsorted"}
	logger := shared.NewLogger(&bytes.Buffer{})
	return NewSyncEngine(library, stores, cfg, logger), db
}

func seedLibrary() *tu.MockLibrary {
	library := tu.NewMockLibrary()
	library.PlaylistsData = []services.Playlist{
		{ID: "p1", Name: "Focus", SnapshotID: "s1", TrackCount: 2},
		{ID: "p2", Name: "Workout", SnapshotID: "s2", TrackCount: 1},
	}
	library.TracksByPlaylist["master"] = []services.Track{
		{ID: "t1", Title: "Song One", Artists: []string{"A"}, Album: "LP"},
		{ID: "t2", Title: "Song Two", Artists: []string{"B"}, Album: "EP"},
	}
	library.TracksByPlaylist["p1"] = []services.Track{
		{ID: "t1", Title: "Song One", Artists: []string{"A"}, Album: "LP"},
		{ID: "t2", Title: "Song Two", Artists: []string{"B"}, Album: "EP"},
	}
	library.TracksByPlaylist["p2"] = []services.Track{
		{ID: "t1", Title: "Song One", Artists: []string{"A"}, Album: "LP"},
	}
	return library
}

func commitAll(t *testing.T, engine *SyncEngine) {
	t.Helper()
	ctx := context.Background()
	if _, err := engine.SyncPlaylists(ctx, Options{Confirm: true}); err != nil {
		t.Fatalf("seed playlists: %v", err)
	}
	if _, err := engine.SyncTracks(ctx, Options{Confirm: true}); err != nil {
		t.Fatalf("seed tracks: %v", err)
	}
	if _, err := engine.SyncAssociations(ctx, Options{Confirm: true}); err != nil {
		t.Fatalf("seed associations: %v", err)
	}
}

func TestSyncPlaylists(t *testing.T) {
	ctx := context.Background()

	t.Run("analysis stage never mutates", func(t *testing.T) {
		engine, db := setupEngine(t, seedLibrary())

		outcome, err := engine.SyncPlaylists(ctx, Options{})
		if err != nil {
			t.Fatalf("SyncPlaylists failed: %v", err)
		}

		if !outcome.NeedsConfirmation || outcome.Stage != "analysis" {
			t.Errorf("expected analysis outcome, got %+v", outcome)
		}
		if outcome.Stats.Added != 2 {
			t.Errorf("Stats.Added = %d, want 2", outcome.Stats.Added)
		}

		records, err := repositories.NewPlaylistRepository(db).All()
		if err != nil {
			t.Fatalf("read playlists: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("analysis mutated the mirror: %+v", records)
		}
	})

	t.Run("confirm commits and is idempotent", func(t *testing.T) {
		engine, db := setupEngine(t, seedLibrary())

		outcome, err := engine.SyncPlaylists(ctx, Options{Confirm: true})
		if err != nil {
			t.Fatalf("SyncPlaylists failed: %v", err)
		}
		if outcome.Stage != "complete" || outcome.Stats.Added != 2 {
			t.Errorf("unexpected outcome: %+v", outcome)
		}

		records, err := repositories.NewPlaylistRepository(db).All()
		if err != nil {
			t.Fatalf("read playlists: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("expected 2 mirrored playlists, got %d", len(records))
		}

		// A duplicate confirm recomputes the diff and finds nothing to do.
		again, err := engine.SyncPlaylists(ctx, Options{Confirm: true})
		if err != nil {
			t.Fatalf("repeat SyncPlaylists failed: %v", err)
		}
		if again.Stats.Added != 0 || again.Stats.Unchanged != 2 {
			t.Errorf("repeat sync not idempotent: %+v", again.Stats)
		}
	})

	t.Run("rename is committed with the new name", func(t *testing.T) {
		library := seedLibrary()
		engine, db := setupEngine(t, library)
		commitAll(t, engine)

		library.PlaylistsData[0].Name = "Deep Focus"

		outcome, err := engine.SyncPlaylists(ctx, Options{})
		if err != nil {
			t.Fatalf("SyncPlaylists failed: %v", err)
		}
		if len(outcome.Details.UpdatedPlaylists) != 1 {
			t.Fatalf("expected one rename, got %+v", outcome.Details)
		}
		rename := outcome.Details.UpdatedPlaylists[0]
		if rename.OldName != "Focus" || rename.Name != "Deep Focus" {
			t.Errorf("rename pair = %+v", rename)
		}

		if _, err := engine.SyncPlaylists(ctx, Options{Confirm: true}); err != nil {
			t.Fatalf("confirm failed: %v", err)
		}
		record, err := repositories.NewPlaylistRepository(db).Get("p1")
		if err != nil {
			t.Fatalf("read playlist: %v", err)
		}
		if record.Name != "Deep Focus" {
			t.Errorf("mirror name = %q", record.Name)
		}
	})

	t.Run("remote absence is reported, never deleted", func(t *testing.T) {
		library := seedLibrary()
		engine, db := setupEngine(t, library)
		commitAll(t, engine)

		library.PlaylistsData = library.PlaylistsData[:1]

		outcome, err := engine.SyncPlaylists(ctx, Options{Confirm: true})
		if err != nil {
			t.Fatalf("SyncPlaylists failed: %v", err)
		}
		if outcome.Stats.RemovedLocally != 1 {
			t.Errorf("RemovedLocally = %d, want 1", outcome.Stats.RemovedLocally)
		}

		records, err := repositories.NewPlaylistRepository(db).All()
		if err != nil {
			t.Fatalf("read playlists: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("local rows were deleted: %d", len(records))
		}
	})

	t.Run("remote failure leaves state untouched", func(t *testing.T) {
		library := seedLibrary()
		engine, db := setupEngine(t, library)
		library.Err = shared.ErrRemoteUnavailable

		if _, err := engine.SyncPlaylists(ctx, Options{Confirm: true}); !errors.Is(err, shared.ErrRemoteUnavailable) {
			t.Fatalf("expected remote error, got %v", err)
		}

		records, err := repositories.NewPlaylistRepository(db).All()
		if err != nil {
			t.Fatalf("read playlists: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("failed sync mutated the mirror: %+v", records)
		}
	})

	t.Run("concurrent confirms serialize on the mirror", func(t *testing.T) {
		engine, _ := setupEngine(t, seedLibrary())
		// Widen the read-to-commit window so overlapping runs would both see
		// the empty mirror if the diff were computed outside the lock.
		engine.stores.Playlists = slowPlaylistStore{
			PlaylistStore: engine.stores.Playlists,
			delay:         50 * time.Millisecond,
		}

		outcomes := make([]*Outcome, 2)
		var wg sync.WaitGroup
		for i := range outcomes {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcome, err := engine.SyncPlaylists(ctx, Options{Confirm: true})
				if err != nil {
					t.Errorf("concurrent SyncPlaylists failed: %v", err)
					return
				}
				outcomes[i] = outcome
			}(i)
		}
		wg.Wait()

		var added, unchanged int
		for _, outcome := range outcomes {
			if outcome == nil {
				t.Fatal("missing outcome from a concurrent run")
			}
			added += outcome.Stats.Added
			unchanged += outcome.Stats.Unchanged
		}
		if added != 2 {
			t.Errorf("concurrent confirms added %d playlists in total, want 2", added)
		}
		if unchanged != 2 {
			t.Errorf("concurrent confirms reported %d unchanged in total, want 2", unchanged)
		}
	})
}

// slowPlaylistStore stretches the gap between the mirror read and the commit.
type slowPlaylistStore struct {
	PlaylistStore
	delay time.Duration
}

func (s slowPlaylistStore) All() ([]repositories.PlaylistRecord, error) {
	records, err := s.PlaylistStore.All()
	time.Sleep(s.delay)
	return records, err
}

func TestSyncTracks(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a configured master playlist", func(t *testing.T) {
		db := setupTestDB(t)
		stores := Stores{
			Playlists:    repositories.NewPlaylistRepository(db),
			Tracks:       repositories.NewTrackRepository(db),
			Associations: repositories.NewAssociationRepository(db),
			Wipe:         func() error { return repositories.ClearAll(db) },
		}
		engine := NewSyncEngine(seedLibrary(), stores, Config{}, shared.NewLogger(&bytes.Buffer{}))

		if _, err := engine.SyncTracks(ctx, Options{}); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected invalid config error, got %v", err)
		}
	})

	t.Run("mirrors the master playlist", func(t *testing.T) {
		engine, db := setupEngine(t, seedLibrary())

		if _, err := engine.SyncTracks(ctx, Options{Confirm: true}); err != nil {
			t.Fatalf("SyncTracks failed: %v", err)
		}

		records, err := repositories.NewTrackRepository(db).All()
		if err != nil {
			t.Fatalf("read tracks: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("expected 2 mirrored tracks, got %d", len(records))
		}
	})

	t.Run("metadata change is an update with old and new values", func(t *testing.T) {
		library := seedLibrary()
		engine, _ := setupEngine(t, library)
		commitAll(t, engine)

		library.TracksByPlaylist["master"][0].Album = "Remaster"

		outcome, err := engine.SyncTracks(ctx, Options{})
		if err != nil {
			t.Fatalf("SyncTracks failed: %v", err)
		}
		if len(outcome.Details.UpdatedTracks) != 1 {
			t.Fatalf("expected one track update, got %+v", outcome.Details)
		}
		change := outcome.Details.UpdatedTracks[0]
		if change.OldAlbum != "LP" || change.Album != "Remaster" {
			t.Errorf("change = %+v", change)
		}
	})
}

func TestSyncAssociations(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshot restricted to mirrored entities", func(t *testing.T) {
		library := seedLibrary()
		// t9 exists remotely but is not mirrored; it must never reach the diff.
		library.TracksByPlaylist["p1"] = append(library.TracksByPlaylist["p1"],
			services.Track{ID: "t9", Title: "Unknown"})

		engine, db := setupEngine(t, library)
		commitAll(t, engine)

		assocs, err := repositories.NewAssociationRepository(db).All()
		if err != nil {
			t.Fatalf("read associations: %v", err)
		}
		for _, a := range assocs {
			if a.TrackID == "t9" {
				t.Errorf("unmirrored track leaked into associations: %+v", a)
			}
		}
		if len(assocs) != 3 {
			t.Errorf("expected 3 associations, got %d", len(assocs))
		}
	})

	t.Run("confirm applies adds and removes", func(t *testing.T) {
		library := seedLibrary()
		engine, db := setupEngine(t, library)
		commitAll(t, engine)

		// t2 moves from p1 to p2.
		library.TracksByPlaylist["p1"] = library.TracksByPlaylist["p1"][:1]
		library.TracksByPlaylist["p2"] = append(library.TracksByPlaylist["p2"],
			services.Track{ID: "t2", Title: "Song Two", Artists: []string{"B"}, Album: "EP"})

		outcome, err := engine.SyncAssociations(ctx, Options{})
		if err != nil {
			t.Fatalf("SyncAssociations failed: %v", err)
		}
		if !outcome.NeedsConfirmation {
			t.Fatalf("expected analysis, got %+v", outcome)
		}
		if outcome.Details.AssociationsToAdd != 1 || outcome.Details.AssociationsToRemove != 1 {
			t.Errorf("analysis counts = %+v", outcome.Details)
		}

		if _, err := engine.SyncAssociations(ctx, Options{Confirm: true}); err != nil {
			t.Fatalf("confirm failed: %v", err)
		}

		repo := repositories.NewAssociationRepository(db)
		p2Tracks, err := repo.TrackIDsForPlaylist("p2")
		if err != nil {
			t.Fatalf("read p2 members: %v", err)
		}
		if len(p2Tracks) != 2 {
			t.Errorf("p2 members = %v", p2Tracks)
		}
		p1Tracks, err := repo.TrackIDsForPlaylist("p1")
		if err != nil {
			t.Fatalf("read p1 members: %v", err)
		}
		if len(p1Tracks) != 1 {
			t.Errorf("p1 members = %v", p1Tracks)
		}
	})
}

// failTracksLibrary fails membership reads while leaving playlist reads intact.
type failTracksLibrary struct {
	*tu.MockLibrary
}

func (f *failTracksLibrary) PlaylistTracks(ctx context.Context, playlistID string, forceRefresh bool) ([]services.Track, error) {
	return nil, shared.ErrRemoteUnavailable
}

func TestSyncAll(t *testing.T) {
	ctx := context.Background()

	t.Run("analysis aggregates all three steps", func(t *testing.T) {
		engine, _ := setupEngine(t, seedLibrary())

		outcome, err := engine.SyncAll(ctx, Options{})
		if err != nil {
			t.Fatalf("SyncAll failed: %v", err)
		}
		if !outcome.NeedsConfirmation {
			t.Fatalf("expected combined analysis, got %+v", outcome)
		}
		if len(outcome.Steps) != 3 {
			t.Errorf("steps = %+v", outcome.Steps)
		}
		// 2 playlists + 2 tracks; associations stay empty until entities are mirrored.
		if outcome.Stats.Added != 4 {
			t.Errorf("combined added = %d, want 4", outcome.Stats.Added)
		}
	})

	t.Run("confirm commits sequentially", func(t *testing.T) {
		engine, db := setupEngine(t, seedLibrary())

		outcome, err := engine.SyncAll(ctx, Options{Confirm: true})
		if err != nil {
			t.Fatalf("SyncAll failed: %v", err)
		}
		for _, step := range outcome.Steps {
			if !step.Committed {
				t.Errorf("step %s not committed", step.Operation)
			}
		}

		count, err := repositories.NewAssociationRepository(db).Count()
		if err != nil {
			t.Fatalf("count associations: %v", err)
		}
		if count != 3 {
			t.Errorf("association count = %d, want 3", count)
		}
	})

	t.Run("partial failure reports what committed", func(t *testing.T) {
		library := seedLibrary()
		engine, db := setupEngine(t, &failTracksLibrary{MockLibrary: library})

		outcome, err := engine.SyncAll(ctx, Options{Confirm: true})
		if !errors.Is(err, shared.ErrRemoteUnavailable) {
			t.Fatalf("expected remote error, got %v", err)
		}
		if outcome == nil {
			t.Fatal("expected partial outcome alongside the error")
		}

		if len(outcome.Steps) != 2 {
			t.Fatalf("steps = %+v", outcome.Steps)
		}
		if !outcome.Steps[0].Committed || outcome.Steps[0].Operation != OpPlaylists {
			t.Errorf("first step = %+v", outcome.Steps[0])
		}
		if outcome.Steps[1].Error == "" || outcome.Steps[1].Operation != OpTracks {
			t.Errorf("second step = %+v", outcome.Steps[1])
		}

		// The playlists step stays committed.
		records, err := repositories.NewPlaylistRepository(db).All()
		if err != nil {
			t.Fatalf("read playlists: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("expected committed playlists, got %d", len(records))
		}
	})
}

func TestClearDatabase(t *testing.T) {
	t.Run("requires confirmation", func(t *testing.T) {
		engine, db := setupEngine(t, seedLibrary())
		commitAll(t, engine)

		outcome, err := engine.ClearDatabase(false)
		if err != nil {
			t.Fatalf("ClearDatabase failed: %v", err)
		}
		if !outcome.NeedsConfirmation {
			t.Error("expected confirmation gate")
		}

		records, err := repositories.NewPlaylistRepository(db).All()
		if err != nil {
			t.Fatalf("read playlists: %v", err)
		}
		if len(records) == 0 {
			t.Error("unconfirmed clear mutated the mirror")
		}
	})

	t.Run("confirmed clear wipes everything, then sync reports all added", func(t *testing.T) {
		engine, db := setupEngine(t, seedLibrary())
		commitAll(t, engine)

		if _, err := engine.ClearDatabase(true); err != nil {
			t.Fatalf("ClearDatabase failed: %v", err)
		}

		count, err := repositories.NewAssociationRepository(db).Count()
		if err != nil {
			t.Fatalf("count associations: %v", err)
		}
		if count != 0 {
			t.Errorf("associations remain after clear: %d", count)
		}

		outcome, err := engine.SyncPlaylists(context.Background(), Options{})
		if err != nil {
			t.Fatalf("SyncPlaylists failed: %v", err)
		}
		if outcome.Stats.Added != 2 || outcome.Stats.Unchanged != 0 {
			t.Errorf("post-clear analysis = %+v", outcome.Stats)
		}
	})
}

func TestSyncToMaster(t *testing.T) {
	ctx := context.Background()

	t.Run("adds only missing non-local tracks", func(t *testing.T) {
		library := seedLibrary()
		library.TracksByPlaylist["p2"] = append(library.TracksByPlaylist["p2"],
			services.Track{ID: "t3", Title: "New Cut", Artists: []string{"C"}},
			services.Track{ID: "local_ab", Title: "Rip", IsLocal: true},
		)

		engine, _ := setupEngine(t, library)
		commitAll(t, engine)

		result, err := engine.SyncToMaster(ctx)
		if err != nil {
			t.Fatalf("SyncToMaster failed: %v", err)
		}

		added := library.Added["master"]
		if len(added) != 1 || added[0] != "t3" {
			t.Errorf("pushed %v, want [t3]", added)
		}
		if result.TracksAdded != 1 {
			t.Errorf("TracksAdded = %d", result.TracksAdded)
		}
	})

	t.Run("unchanged snapshots are skipped on the next push", func(t *testing.T) {
		library := seedLibrary()
		engine, _ := setupEngine(t, library)
		commitAll(t, engine)

		if _, err := engine.SyncToMaster(ctx); err != nil {
			t.Fatalf("first push failed: %v", err)
		}

		result, err := engine.SyncToMaster(ctx)
		if err != nil {
			t.Fatalf("second push failed: %v", err)
		}
		if !strings.Contains(result.Message, "already synced") {
			t.Errorf("expected no-op message, got %q", result.Message)
		}
	})

	t.Run("requires a configured master playlist", func(t *testing.T) {
		db := setupTestDB(t)
		stores := Stores{
			Playlists:    repositories.NewPlaylistRepository(db),
			Tracks:       repositories.NewTrackRepository(db),
			Associations: repositories.NewAssociationRepository(db),
			Wipe:         func() error { return repositories.ClearAll(db) },
		}
		engine := NewSyncEngine(seedLibrary(), stores, Config{}, shared.NewLogger(&bytes.Buffer{}))

		if _, err := engine.SyncToMaster(ctx); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected invalid config error, got %v", err)
		}
	})
}

func TestSyncUnplaylisted(t *testing.T) {
	ctx := context.Background()

	t.Run("adds unplaylisted liked tracks and removes sorted ones", func(t *testing.T) {
		library := tu.NewMockLibrary()
		library.PlaylistsData = []services.Playlist{
			{ID: "p1", Name: "Focus", SnapshotID: "s1"},
			{ID: "unsorted", Name: "Unsorted", SnapshotID: "s9"},
		}
		library.TracksByPlaylist["p1"] = []services.Track{
			{ID: "t1", Title: "Sorted"},
		}
		// t1 was sorted into p1 since it landed in unsorted; it must come out.
		library.TracksByPlaylist["unsorted"] = []services.Track{
			{ID: "t1", Title: "Sorted"},
		}
		library.LikedData = []services.Track{
			{ID: "t1", Title: "Sorted", AddedAt: time.Now()},
			{ID: "t2", Title: "Floating", AddedAt: time.Now()},
			{ID: "local_cd", Title: "Rip", IsLocal: true, AddedAt: time.Now()},
		}

		engine, _ := setupEngine(t, library)

		result, err := engine.SyncUnplaylisted(ctx)
		if err != nil {
			t.Fatalf("SyncUnplaylisted failed: %v", err)
		}

		if got := library.Added["unsorted"]; len(got) != 1 || got[0] != "t2" {
			t.Errorf("added %v, want [t2]", got)
		}
		if got := library.Removed["unsorted"]; len(got) != 1 || got[0] != "t1" {
			t.Errorf("removed %v, want [t1]", got)
		}
		if result.TracksAdded != 1 || result.TracksRemoved != 1 {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("requires a configured unsorted playlist", func(t *testing.T) {
		db := setupTestDB(t)
		stores := Stores{
			Playlists:    repositories.NewPlaylistRepository(db),
			Tracks:       repositories.NewTrackRepository(db),
			Associations: repositories.NewAssociationRepository(db),
			Wipe:         func() error { return repositories.ClearAll(db) },
		}
		engine := NewSyncEngine(seedLibrary(), stores, Config{}, shared.NewLogger(&bytes.Buffer{}))

		if _, err := engine.SyncUnplaylisted(ctx); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected invalid config error, got %v", err)
		}
	})
}

func TestCommitLogging(t *testing.T) {
	t.Run("commit logs carry a run id", func(t *testing.T) {
		db := setupTestDB(t)
		stores := Stores{
			Playlists:    repositories.NewPlaylistRepository(db),
			Tracks:       repositories.NewTrackRepository(db),
			Associations: repositories.NewAssociationRepository(db),
			Wipe:         func() error { return repositories.ClearAll(db) },
		}
		var buf bytes.Buffer
		engine := NewSyncEngine(seedLibrary(), stores, Config{MasterID: "master"}, shared.NewLogger(&buf))

		if _, err := engine.SyncPlaylists(context.Background(), Options{Confirm: true}); err != nil {
			t.Fatalf("SyncPlaylists failed: %v", err)
		}

		logged := buf.String()
		if !strings.Contains(logged, "run=") || !strings.Contains(logged, "op=playlists") {
			t.Errorf("commit log missing run fields: %s", logged)
		}
	})
}
