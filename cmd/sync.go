package main

import (
	"context"

	"github.com/tagify/spotmirror/internal/formatter"
	"github.com/tagify/spotmirror/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SyncPlaylists syncs playlist metadata into the local mirror.
func (r *Runner) SyncPlaylists(ctx context.Context, cmd *cli.Command) error {
	return r.runSync(ctx, cmd, tasks.OpPlaylists, r.engine.SyncPlaylists)
}

// SyncTracks syncs track metadata from the master playlist.
func (r *Runner) SyncTracks(ctx context.Context, cmd *cli.Command) error {
	return r.runSync(ctx, cmd, tasks.OpTracks, r.engine.SyncTracks)
}

// SyncAssociations syncs track-playlist memberships.
func (r *Runner) SyncAssociations(ctx context.Context, cmd *cli.Command) error {
	return r.runSync(ctx, cmd, tasks.OpAssociations, r.engine.SyncAssociations)
}

// SyncAll runs the full playlists, tracks, associations sequence.
func (r *Runner) SyncAll(ctx context.Context, cmd *cli.Command) error {
	return r.runSync(ctx, cmd, tasks.OpAll, r.engine.SyncAll)
}

// runSync drives the two-phase protocol from the terminal: an analysis pass
// first, then a prompt, then a confirmed pass that recomputes the diff before
// committing.
func (r *Runner) runSync(ctx context.Context, cmd *cli.Command, op tasks.Operation, fn func(context.Context, tasks.Options) (*tasks.Outcome, error)) error {
	if err := r.requireEngine(); err != nil {
		return err
	}

	opts := tasks.Options{
		ForceRefresh: cmd.Bool("force-refresh"),
		Confirm:      cmd.Bool("yes"),
	}
	useJSON := cmd.Bool("json")

	r.logger.Info("starting sync", "operation", op, "force_refresh", opts.ForceRefresh)

	outcome, err := fn(ctx, opts)
	if err != nil {
		return r.reportSyncFailure(outcome, err, useJSON)
	}

	if outcome.NeedsConfirmation && !useJSON {
		r.writePlain("%s", formatter.RenderOutcome(outcome))
		if !r.confirm("Apply these changes?") {
			r.writePlainln("Aborted, nothing was changed.")
			return nil
		}

		opts.Confirm = true
		if outcome, err = fn(ctx, opts); err != nil {
			return r.reportSyncFailure(outcome, err, useJSON)
		}
	}

	if useJSON {
		return r.writeJSON(outcome, true)
	}

	return r.writePlain("%s", formatter.RenderOutcome(outcome))
}

// reportSyncFailure renders the partial outcome of a failed run before
// surfacing the error. A combined sync that stops mid-way still returns its
// per-step record, and the operator needs to see which steps committed.
func (r *Runner) reportSyncFailure(outcome *tasks.Outcome, err error, useJSON bool) error {
	if outcome == nil {
		return err
	}
	if useJSON {
		r.writeJSON(outcome, true)
	} else {
		r.writePlain("%s", formatter.RenderOutcome(outcome))
	}
	return err
}
