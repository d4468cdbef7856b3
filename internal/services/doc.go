// Package services defines the [Library] interface for the remote track library and implements it for Spotify.
//
// # Library Interface
//
// The remote source of truth is consumed through a narrow, typed surface:
// collection reads (playlists, playlist memberships, liked songs) and the two
// membership mutations (add/remove tracks in a playlist). Callers thread a
// [context.Context] into every call; there is no ambient session state.
//
// # Spotify Implementation
//
// [SpotifyService] wraps the Spotify Web API. A pre-obtained session token is
// carried in an [oauth2.Token]; the OAuth dance itself is out of scope.
// Responses are decoded into a fixed set of typed structs at the boundary and
// validated before conversion, so malformed payloads fail closed rather than
// defaulting silently.
//
// # Rate Limits & Retries
//
// Each request passes through a [rate.Limiter] sized for the Spotify API, and
// transient failures are retried with bounded exponential backoff. A 429 reply
// honors the Retry-After hint before the next attempt.
//
// # Error Handling
//
// Failures map onto the shared taxonomy:
//   - [shared.ErrAuthExpired] : 401, surfaced immediately, never retried
//   - [shared.ErrRateLimited] : 429 after retries are exhausted
//   - [shared.ErrRemoteUnavailable] : network errors, timeouts, 5xx, and
//     responses missing required fields
package services
