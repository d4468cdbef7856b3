// Package server provides HTTP routing, middleware, sync endpoints, and OAuth
// handling for the library mirror service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Sync Endpoints
//
// [SyncHandler] exposes the engine's operation table over JSON:
//
//	POST /api/sync/database     {"action": "playlists|tracks|associations|all", "force_refresh": bool, "confirmed": bool}
//	POST /api/sync/master       pushes changed playlists into the master playlist
//	POST /api/sync/unplaylisted reconciles liked songs against the unsorted playlist
//	POST /api/cache/clear       drops all cached remote responses
//	GET  /health                liveness probe
//
// Database sync requests without "confirmed" return an analysis payload when
// the diff is consequential; the client re-posts with "confirmed": true to
// commit. Remote failures map to 502, expired sessions to 401, upstream rate
// limiting to 503.
//
// # OAuth Callback Handler
//
// [CallbackHandler] implements the OAuth2 authorization code callback used by
// the setup command. A temporary server on the configured redirect address
// handles exactly one callback, validates the CSRF state token, exchanges the
// code, and shuts down.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
