// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tagify/spotmirror/internal/services"
)

// MockLibrary is a configurable test double for the cached library view the
// sync engine reads from. Read methods record call counts and the
// force-refresh directive they were invoked with; mutations record the track
// IDs they were asked to apply.
type MockLibrary struct {
	mu sync.Mutex

	UserData         services.User
	PlaylistsData    []services.Playlist
	TracksByPlaylist map[string][]services.Track
	LikedData        []services.Track
	Err              error

	PlaylistsCalls      int
	PlaylistTracksCalls int
	LikedCalls          int
	ForceSeen           bool
	Cleared             bool

	Added   map[string][]string
	Removed map[string][]string
}

func NewMockLibrary() *MockLibrary {
	return &MockLibrary{
		TracksByPlaylist: map[string][]services.Track{},
		Added:            map[string][]string{},
		Removed:          map[string][]string{},
	}
}

func (m *MockLibrary) CurrentUser(ctx context.Context) (*services.User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	u := m.UserData
	return &u, nil
}

func (m *MockLibrary) Playlists(ctx context.Context, forceRefresh bool) ([]services.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlaylistsCalls++
	if forceRefresh {
		m.ForceSeen = true
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.PlaylistsData, nil
}

func (m *MockLibrary) PlaylistTracks(ctx context.Context, playlistID string, forceRefresh bool) ([]services.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlaylistTracksCalls++
	if forceRefresh {
		m.ForceSeen = true
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.TracksByPlaylist[playlistID], nil
}

func (m *MockLibrary) LikedTracks(ctx context.Context, since time.Time, forceRefresh bool) ([]services.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LikedCalls++
	if forceRefresh {
		m.ForceSeen = true
	}
	if m.Err != nil {
		return nil, m.Err
	}
	var out []services.Track
	for _, t := range m.LikedData {
		if since.IsZero() || !t.AddedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockLibrary) AddPlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Added[playlistID] = append(m.Added[playlistID], trackIDs...)
	return nil
}

func (m *MockLibrary) RemovePlaylistTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Removed[playlistID] = append(m.Removed[playlistID], trackIDs...)
	return nil
}

func (m *MockLibrary) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cleared = true
}

func (m *MockLibrary) Name() string { return "mock" }

// ReadCalls reports the total number of remote read invocations.
func (m *MockLibrary) ReadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PlaylistsCalls + m.PlaylistTracksCalls + m.LikedCalls
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
