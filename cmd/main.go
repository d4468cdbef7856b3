package main

import (
	"context"
	"database/sql"
	"errors"
	"os"

	"github.com/charmbracelet/log"
	"github.com/tagify/spotmirror/internal/cache"
	"github.com/tagify/spotmirror/internal/repositories"
	"github.com/tagify/spotmirror/internal/services"
	"github.com/tagify/spotmirror/internal/shared"
	"github.com/tagify/spotmirror/internal/tasks"
	"github.com/urfave/cli/v3"
)

const configPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)
	if os.Getenv("SPOTMIRROR_DEBUG") != "" {
		shared.SetLogLevel(logger, log.DebugLevel)
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "error", err)
		}
	}

	opts := RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	}

	if config.Credentials.Spotify.ClientID != "" && config.Credentials.Spotify.ClientSecret != "" {
		spotify, err := services.NewSpotifyService(config.Credentials.Spotify, config.Exclusions)
		if err != nil {
			logger.Warn("spotify service unavailable", "error", err)
		} else {
			opts.Spotify = spotify
			opts.Library = cache.NewLibrary(spotify, cache.NewStore(), ttlsFromConfig(config), logger)
		}
	}

	if db, err := shared.NewDatabase(config.Database.Path); err == nil {
		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
		opts.DB = db
		defer db.Close()
	} else {
		logger.Warn("database unavailable", "error", err)
	}

	if opts.Library != nil && opts.DB != nil {
		engine, err := buildEngine(opts.Library, opts.DB, config, logger)
		if err != nil {
			logger.Warn("sync engine unavailable", "error", err)
		} else {
			opts.Engine = engine
		}
	}

	runner := NewRunner(opts)

	app := &cli.Command{
		Name:     "spotmirror",
		Usage:    "Mirror a Spotify library into a local database",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}

func ttlsFromConfig(config *shared.Config) cache.TTLs {
	return cache.TTLs{
		Playlists:      config.Cache.PlaylistsTTLDuration(),
		Tracks:         config.Cache.TracksTTLDuration(),
		PlaylistTracks: config.Cache.PlaylistTracksTTLDuration(),
	}
}

func buildEngine(library *cache.Library, db *sql.DB, config *shared.Config, logger *log.Logger) (*tasks.SyncEngine, error) {
	likedSince, err := config.Playlists.LikedSinceDate()
	if err != nil {
		return nil, err
	}

	stores := tasks.Stores{
		Playlists:    repositories.NewPlaylistRepository(db),
		Tracks:       repositories.NewTrackRepository(db),
		Associations: repositories.NewAssociationRepository(db),
		Wipe:         func() error { return repositories.ClearAll(db) },
	}

	cfg := tasks.Config{
		MasterID:   config.Playlists.MasterID,
		UnsortedID: config.Playlists.UnsortedID,
		LikedSince: likedSince,
	}

	return tasks.NewSyncEngine(library, stores, cfg, logger), nil
}
