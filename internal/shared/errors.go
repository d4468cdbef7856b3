package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Remote API errors
	ErrRemoteUnavailable = fmt.Errorf("remote service unavailable")
	ErrAuthExpired       = fmt.Errorf("session token expired")
	ErrRateLimited       = fmt.Errorf("rate limited by remote service")

	// Malformed payloads fail closed as a remote availability problem rather
	// than silently defaulting missing fields.
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrRemoteUnavailable)

	// Storage errors
	ErrStorageFailure   = fmt.Errorf("local storage failure")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrTrackNotFound    = fmt.Errorf("track not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
