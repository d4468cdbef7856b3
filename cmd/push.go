package main

import (
	"context"

	"github.com/tagify/spotmirror/internal/formatter"
	"github.com/tagify/spotmirror/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PushMaster adds tracks from changed playlists to the master playlist.
func (r *Runner) PushMaster(ctx context.Context, cmd *cli.Command) error {
	return r.runPush(ctx, cmd, "This will add tracks to the master playlist on Spotify.", r.engine.SyncToMaster)
}

// PushUnplaylisted reconciles liked songs against the unsorted playlist.
func (r *Runner) PushUnplaylisted(ctx context.Context, cmd *cli.Command) error {
	return r.runPush(ctx, cmd, "This will modify the unsorted playlist on Spotify.", r.engine.SyncUnplaylisted)
}

// runPush gates a remote mutation behind a prompt unless --yes was passed.
func (r *Runner) runPush(ctx context.Context, cmd *cli.Command, warning string, fn func(context.Context) (*tasks.PushResult, error)) error {
	if err := r.requireEngine(); err != nil {
		return err
	}

	if !cmd.Bool("yes") {
		r.writePlain("%s\n", warning)
		if !r.confirm("Continue?") {
			r.writePlainln("Aborted, nothing was changed.")
			return nil
		}
	}

	result, err := fn(ctx)
	if err != nil {
		return err
	}

	return r.writePlain("%s", formatter.RenderPushResult(result))
}
