package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tagify/spotmirror/internal/shared"
	"github.com/tagify/spotmirror/internal/tasks"
)

// Engine is the subset of sync operations the HTTP surface exposes.
// [tasks.SyncEngine] satisfies it.
type Engine interface {
	SyncPlaylists(ctx context.Context, opts tasks.Options) (*tasks.Outcome, error)
	SyncTracks(ctx context.Context, opts tasks.Options) (*tasks.Outcome, error)
	SyncAssociations(ctx context.Context, opts tasks.Options) (*tasks.Outcome, error)
	SyncAll(ctx context.Context, opts tasks.Options) (*tasks.Outcome, error)
	SyncToMaster(ctx context.Context) (*tasks.PushResult, error)
	SyncUnplaylisted(ctx context.Context) (*tasks.PushResult, error)
	ClearCache() *tasks.Outcome
}

// SyncRequest is the POST body accepted by the database sync endpoint.
type SyncRequest struct {
	Action       string `json:"action"`
	ForceRefresh bool   `json:"force_refresh"`
	Confirmed    bool   `json:"confirmed"`
}

// SyncHandler exposes the sync engine's operations as JSON endpoints.
// Implements the [Handler] interface for registration with a [Router].
type SyncHandler struct {
	engine Engine
	logger *log.Logger
}

// NewSyncHandler creates a handler backed by the given engine.
func NewSyncHandler(engine Engine, logger *log.Logger) *SyncHandler {
	return &SyncHandler{engine: engine, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *SyncHandler) Routes() []string {
	return []string{
		"/api/sync/database",
		"/api/sync/master",
		"/api/sync/unplaylisted",
		"/api/cache/clear",
	}
}

// ServeHTTP dispatches to the sync operation matching the request path.
//
// All endpoints are POST: every route either mutates state or stages a
// mutation for confirmation.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	switch r.URL.Path {
	case "/api/sync/database":
		h.syncDatabase(w, r)
	case "/api/sync/master":
		h.push(w, r, h.engine.SyncToMaster)
	case "/api/sync/unplaylisted":
		h.push(w, r, h.engine.SyncUnplaylisted)
	case "/api/cache/clear":
		writeJSON(w, http.StatusOK, h.engine.ClearCache())
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown path %s", r.URL.Path))
	}
}

func (h *SyncHandler) syncDatabase(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	opts := tasks.Options{ForceRefresh: req.ForceRefresh, Confirm: req.Confirmed}

	var (
		outcome *tasks.Outcome
		err     error
	)
	switch req.Action {
	case "playlists":
		outcome, err = h.engine.SyncPlaylists(r.Context(), opts)
	case "tracks":
		outcome, err = h.engine.SyncTracks(r.Context(), opts)
	case "associations":
		outcome, err = h.engine.SyncAssociations(r.Context(), opts)
	case "all", "":
		outcome, err = h.engine.SyncAll(r.Context(), opts)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", req.Action))
		return
	}
	if err != nil {
		h.logger.Error("sync request failed", "action", req.Action, "error", err)
		// A combined sync that fails mid-run still carries the per-step
		// record of what committed; return it alongside the error.
		if outcome != nil && len(outcome.Steps) > 0 {
			writeJSON(w, statusForError(err), map[string]any{
				"error":   err.Error(),
				"outcome": outcome,
			})
			return
		}
		writeError(w, statusForError(err), err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (h *SyncHandler) push(w http.ResponseWriter, r *http.Request, fn func(context.Context) (*tasks.PushResult, error)) {
	result, err := fn(r.Context())
	if err != nil {
		h.logger.Error("push request failed", "path", r.URL.Path, "error", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HealthHandler reports service liveness.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// LoggingMiddleware logs each request with method, path, status, and duration.
func LoggingMiddleware(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, shared.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrRemoteUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrInvalidConfig), errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
