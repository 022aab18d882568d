package commands

import (
	"context"
	"fmt"

	"autograder/internal/config"
	"autograder/internal/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// MigrateCommand handles the migrate command
type MigrateCommand struct {
	config *config.Config
}

// NewMigrateCommand creates a new MigrateCommand
func NewMigrateCommand(cfg *config.Config) *MigrateCommand {
	return &MigrateCommand{config: cfg}
}

// Execute runs the command
func (mc *MigrateCommand) Execute(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	dsn := mc.config.DatabaseDSN()

	created, err := storage.EnsureDatabase(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to prepare database %s: %w", mc.config.Database.Name, err)
	}
	if created {
		color.Green("✓ Created database %s", mc.config.Database.Name)
	}

	db, err := storage.OpenMySQL(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to gradebook: %w", err)
	}
	defer func() {
		err = multierr.Append(err, db.Close())
	}()

	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to create gradebook tables: %w", err)
	}
	color.Green("✓ Gradebook tables are up to date in %s", mc.config.Database.Name)
	return nil
}
