package main

import (
	"context"
	"fmt"

	"github.com/tagify/spotmirror/internal/shared"
	"github.com/urfave/cli/v3"
)

// DBMigrate applies pending schema migrations.
func (r *Runner) DBMigrate(ctx context.Context, cmd *cli.Command) error {
	if r.db == nil {
		return fmt.Errorf("%w: database not initialized", shared.ErrStorageFailure)
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(r.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return r.writePlain("✓ Migrations applied\n")
}

// DBRollback rolls back the most recent migration.
func (r *Runner) DBRollback(ctx context.Context, cmd *cli.Command) error {
	if r.db == nil {
		return fmt.Errorf("%w: database not initialized", shared.ErrStorageFailure)
	}

	r.logger.Info("rolling back last migration")
	if err := shared.RollbackMigration(r.db); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	return r.writePlain("✓ Last migration rolled back\n")
}

// DBClear deletes all mirrored rows after confirmation.
func (r *Runner) DBClear(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireEngine(); err != nil {
		return err
	}

	if !cmd.Bool("yes") {
		r.writePlain("This deletes every mirrored playlist, track, and membership.\n")
		if !r.confirm("Continue?") {
			r.writePlainln("Aborted, nothing was changed.")
			return nil
		}
	}

	outcome, err := r.engine.ClearDatabase(true)
	if err != nil {
		return err
	}

	return r.writePlain("✓ %s\n", outcome.Message)
}

// CacheClear drops all cached remote responses.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireEngine(); err != nil {
		return err
	}

	outcome := r.engine.ClearCache()
	r.logger.Info("cache cleared")
	return r.writePlain("✓ %s\n", outcome.Message)
}
