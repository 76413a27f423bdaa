package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytlink/internal/shared"
)

// SetupConfig writes the embedded config template to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)
	r.writePlain("✓ Config written to %s\n", r.configPath)
	r.writePlain("Set google.client_id and google.client_secret, then run 'ytlink setup check'\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	applied, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s (%d migrations applied)\n", r.config.Database.Path, len(applied))
}

// SetupCheck lists configuration issues and fails when there are any.
func (r *Runner) SetupCheck(ctx context.Context, cmd *cli.Command) error {
	issues := r.config.Check()
	if len(issues) == 0 {
		r.writePlain("✓ Configuration looks good\n")
		r.writePlain("Redirect URI: %s\n", r.config.Google.RedirectURI)
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("%d configuration issue(s)", len(issues)))
	for _, issue := range issues {
		r.writePlain("  ✗ %s\n", issue)
	}
	return fmt.Errorf("%w: %d issue(s) in %s", shared.ErrInvalidConfig, len(issues), r.configPath)
}

// SetupMigrations prints the applied migrations without applying new ones.
func (r *Runner) SetupMigrations(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return r.writePlain("No migrations applied, run 'ytlink setup database'\n")
	}
	for _, m := range applied {
		r.writePlain("%04d  %-24s %s\n", m.Version, m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// SetupRollback reverts the latest migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return err
	}
	r.logger.Warn("rolled back latest migration", "database", r.config.Database.Path)
	return r.writePlain("✓ Rolled back the latest migration\n")
}
