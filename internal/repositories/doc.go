// Package repositories implements the persistence layer over the local mirror.
//
// Each repository wraps one table of the sqlite mirror (playlists, tracks,
// track_playlists) with typed CRUD and batch upserts. Writes that belong to
// one sync commit run inside a single transaction, so a failed commit leaves
// the mirror untouched. Repositories never call the network; the orchestrator
// owns the boundary between remote fetches and local transactions.
package repositories
