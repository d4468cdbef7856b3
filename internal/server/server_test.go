package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/tagify/spotmirror/internal/shared"
	"github.com/tagify/spotmirror/internal/tasks"
)

type stubEngine struct {
	lastOpts     tasks.Options
	syncCalls    map[string]int
	outcome      *tasks.Outcome
	failOutcome  *tasks.Outcome
	pushResult   *tasks.PushResult
	err          error
	cacheCleared bool
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		syncCalls: map[string]int{},
		outcome: &tasks.Outcome{
			Operation: tasks.OpPlaylists,
			Stage:     "complete",
			Message:   "ok",
		},
		pushResult: &tasks.PushResult{Operation: tasks.OpToMaster, Success: true},
	}
}

func (s *stubEngine) sync(name string, opts tasks.Options) (*tasks.Outcome, error) {
	s.syncCalls[name]++
	s.lastOpts = opts
	if s.err != nil {
		return s.failOutcome, s.err
	}
	return s.outcome, nil
}

func (s *stubEngine) SyncPlaylists(ctx context.Context, opts tasks.Options) (*tasks.Outcome, error) {
	return s.sync("playlists", opts)
}

func (s *stubEngine) SyncTracks(ctx context.Context, opts tasks.Options) (*tasks.Outcome, error) {
	return s.sync("tracks", opts)
}

func (s *stubEngine) SyncAssociations(ctx context.Context, opts tasks.Options) (*tasks.Outcome, error) {
	return s.sync("associations", opts)
}

func (s *stubEngine) SyncAll(ctx context.Context, opts tasks.Options) (*tasks.Outcome, error) {
	return s.sync("all", opts)
}

func (s *stubEngine) SyncToMaster(ctx context.Context) (*tasks.PushResult, error) {
	s.syncCalls["master"]++
	if s.err != nil {
		return nil, s.err
	}
	return s.pushResult, nil
}

func (s *stubEngine) SyncUnplaylisted(ctx context.Context) (*tasks.PushResult, error) {
	s.syncCalls["unplaylisted"]++
	if s.err != nil {
		return nil, s.err
	}
	return s.pushResult, nil
}

func (s *stubEngine) ClearCache() *tasks.Outcome {
	s.cacheCleared = true
	return &tasks.Outcome{Operation: tasks.OpClearCache, Stage: "complete", Message: "cache cleared"}
}

func setupServer(t *testing.T) (*BasicRouter, *stubEngine) {
	t.Helper()
	engine := newStubEngine()
	logger := log.New(io.Discard)
	router := NewBasicRouter()
	router.Handler(NewSyncHandler(engine, logger))
	router.Handle("GET", "/health", HealthHandler())
	return router, engine
}

func TestSyncHandler(t *testing.T) {
	t.Run("database sync dispatches by action", func(t *testing.T) {
		router, engine := setupServer(t)

		body := strings.NewReader(`{"action": "playlists", "force_refresh": true, "confirmed": true}`)
		req := httptest.NewRequest("POST", "/api/sync/database", body)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if engine.syncCalls["playlists"] != 1 {
			t.Errorf("expected one playlists sync, got %d", engine.syncCalls["playlists"])
		}
		if !engine.lastOpts.ForceRefresh || !engine.lastOpts.Confirm {
			t.Errorf("options not forwarded: %+v", engine.lastOpts)
		}

		var outcome tasks.Outcome
		if err := json.Unmarshal(w.Body.Bytes(), &outcome); err != nil {
			t.Fatalf("response not an outcome: %v", err)
		}
		if outcome.Message != "ok" {
			t.Errorf("unexpected outcome message: %q", outcome.Message)
		}
	})

	t.Run("empty action defaults to full sync", func(t *testing.T) {
		router, engine := setupServer(t)

		req := httptest.NewRequest("POST", "/api/sync/database", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if engine.syncCalls["all"] != 1 {
			t.Errorf("expected full sync, got calls %v", engine.syncCalls)
		}
	})

	t.Run("unknown action is rejected", func(t *testing.T) {
		router, engine := setupServer(t)

		req := httptest.NewRequest("POST", "/api/sync/database", strings.NewReader(`{"action": "albums"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		if len(engine.syncCalls) != 0 {
			t.Errorf("engine should not be called, got %v", engine.syncCalls)
		}
	})

	t.Run("GET on sync routes is rejected", func(t *testing.T) {
		router, _ := setupServer(t)

		req := httptest.NewRequest("GET", "/api/sync/database", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", w.Code)
		}
	})

	t.Run("push endpoints invoke the engine", func(t *testing.T) {
		router, engine := setupServer(t)

		for _, path := range []string{"/api/sync/master", "/api/sync/unplaylisted"} {
			req := httptest.NewRequest("POST", path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Fatalf("%s: expected 200, got %d", path, w.Code)
			}
		}
		if engine.syncCalls["master"] != 1 || engine.syncCalls["unplaylisted"] != 1 {
			t.Errorf("push calls not recorded: %v", engine.syncCalls)
		}
	})

	t.Run("cache clear", func(t *testing.T) {
		router, engine := setupServer(t)

		req := httptest.NewRequest("POST", "/api/cache/clear", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if !engine.cacheCleared {
			t.Error("cache was not cleared")
		}
	})
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"auth expired", shared.ErrAuthExpired, http.StatusUnauthorized},
		{"rate limited", shared.ErrRateLimited, http.StatusServiceUnavailable},
		{"remote unavailable", shared.ErrRemoteUnavailable, http.StatusBadGateway},
		{"malformed response maps to bad gateway", shared.ErrMalformedResponse, http.StatusBadGateway},
		{"invalid config", shared.ErrInvalidConfig, http.StatusBadRequest},
		{"wrapped sentinel", fmt.Errorf("fetch failed: %w", shared.ErrAuthExpired), http.StatusUnauthorized},
		{"unknown error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusForError(tc.err); got != tc.want {
				t.Errorf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrorResponses(t *testing.T) {
	router, engine := setupServer(t)
	engine.err = fmt.Errorf("fetch playlists: %w", shared.ErrRemoteUnavailable)

	req := httptest.NewRequest("POST", "/api/sync/database", strings.NewReader(`{"action": "tracks"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Error("missing error message in body")
	}
}

func TestPartialSyncFailureResponse(t *testing.T) {
	router, engine := setupServer(t)
	engine.err = fmt.Errorf("fetch tracks: %w", shared.ErrRemoteUnavailable)
	engine.failOutcome = &tasks.Outcome{
		Operation: tasks.OpAll,
		Stage:     "complete",
		Message:   "Sync stopped at tracks",
		Steps: []tasks.StepResult{
			{Operation: tasks.OpPlaylists, Stats: tasks.Stats{Added: 2}, Committed: true},
			{Operation: tasks.OpTracks, Error: "fetch tracks: remote service unavailable"},
		},
	}

	req := httptest.NewRequest("POST", "/api/sync/database", strings.NewReader(`{"action": "all"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}

	var body struct {
		Error   string         `json:"error"`
		Outcome *tasks.Outcome `json:"outcome"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body.Error == "" {
		t.Error("missing error message in body")
	}
	if body.Outcome == nil || len(body.Outcome.Steps) != 2 {
		t.Fatalf("missing per-step record: %+v", body.Outcome)
	}
	if !body.Outcome.Steps[0].Committed || body.Outcome.Steps[1].Error == "" {
		t.Errorf("steps misreported: %+v", body.Outcome.Steps)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected health body: %s", w.Body.String())
	}
}
