// Package tasks implements the sync orchestrator that reconciles the remote
// library with the local mirror.
//
// # Two-phase protocol
//
// Every database-facing sync runs analyze → confirm → commit. The analyze
// phase fetches a complete remote snapshot (through the response cache,
// honoring force-refresh), diffs it against the mirror, and, when the diff is
// consequential and the caller has not confirmed, returns the analysis and
// stops. That first reply is not an error; it is the expected first call of a
// two-call protocol. A confirming call recomputes the diff from scratch rather
// than trusting any client-held analysis, which makes confirmation idempotent
// and immune to stale payloads.
//
// # Commit discipline
//
// Only the orchestrator writes through the local repositories or issues remote
// mutations. Commits for one entity type run under a per-type mutex and inside
// one storage transaction; no transaction is ever held across a network call.
// A failed commit rolls back in full and leaves both sides untouched.
//
// # Pushes
//
// SyncToMaster and SyncUnplaylisted flow the other way, pushing membership
// changes to the remote service in batches. They are always invoked
// pre-confirmed by the caller since they mutate remote state.
package tasks
