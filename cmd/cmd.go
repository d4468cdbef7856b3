// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func syncFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "force-refresh",
			Aliases: []string{"f"},
			Usage:   "Bypass cached remote responses and refetch",
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "Apply changes without an interactive confirmation prompt",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON instead of formatted text",
		},
	}
}

// syncCommand reconciles the local mirror against the remote library.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync remote library state into the local database",
		Commands: []*cli.Command{
			{
				Name:   "playlists",
				Usage:  "Sync playlist metadata",
				Flags:  syncFlags(),
				Action: r.SyncPlaylists,
			},
			{
				Name:   "tracks",
				Usage:  "Sync track metadata from the master playlist",
				Flags:  syncFlags(),
				Action: r.SyncTracks,
			},
			{
				Name:   "associations",
				Usage:  "Sync track-playlist memberships",
				Flags:  syncFlags(),
				Action: r.SyncAssociations,
			},
			{
				Name:   "all",
				Usage:  "Sync playlists, tracks, and memberships in order",
				Flags:  syncFlags(),
				Action: r.SyncAll,
			},
		},
	}
}

// pushCommand sends membership changes to the remote service.
func pushCommand(r *Runner) *cli.Command {
	yesFlag := &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Push without an interactive confirmation prompt",
	}

	return &cli.Command{
		Name:  "push",
		Usage: "Push membership changes to the remote service",
		Commands: []*cli.Command{
			{
				Name:   "master",
				Usage:  "Add tracks from changed playlists to the master playlist",
				Flags:  []cli.Flag{yesFlag},
				Action: r.PushMaster,
			},
			{
				Name:   "unplaylisted",
				Usage:  "Reconcile liked songs against the unsorted playlist",
				Flags:  []cli.Flag{yesFlag},
				Action: r.PushUnplaylisted,
			},
		},
	}
}

// dbCommand manages the local database lifecycle.
func dbCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Manage the local mirror database",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending schema migrations",
				Action: r.DBMigrate,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.DBRollback,
			},
			{
				Name:  "clear",
				Usage: "Delete all mirrored playlists, tracks, and memberships",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Clear without an interactive confirmation prompt",
					},
				},
				Action: r.DBClear,
			},
		},
	}
}

// cacheCommand manages the in-memory response cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage cached remote responses",
		Commands: []*cli.Command{
			{
				Name:   "clear",
				Usage:  "Drop all cached remote responses",
				Action: r.CacheClear,
			},
		},
	}
}

// setupCommand initializes configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml and initialize the database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// authCommand runs the OAuth2 authorization flow.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "auth",
		Usage:  "Authorize with Spotify and save the session token",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Auth,
	}
}

// serveCommand exposes the sync operations over HTTP.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the sync API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind (overrides config)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to bind (overrides config)",
			},
		},
		Action: r.Serve,
	}
}
