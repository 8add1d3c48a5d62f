package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/cobertura/internal/cli"
	"github.com/Veraticus/cobertura/internal/config"
	"github.com/Veraticus/cobertura/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the run database schema to the latest version.

With --backup the database is first copied to the given file.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")
	cmd.Flags().String("backup", "", "Back up the database to this file before migrating")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	status, _ := cmd.Flags().GetBool("status")
	backup, _ := cmd.Flags().GetString("backup")

	dbPath := dbPathFromConfig()

	slog.Info("Starting database migration",
		"database", dbPath,
		"status_only", status)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeStorage(store)

	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if status {
		fmt.Println(cli.RenderBox("Database Migration Status", fmt.Sprintf(
			"Database: %s\nCurrent version: %d\nLatest version: %d",
			dbPath, current, storage.ExpectedSchemaVersion)))
		return nil
	}

	if backup != "" {
		if err := store.Backup(ctx, config.ExpandPath(backup)); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Println(cli.FormatSuccess("Backed up database to " + backup))
	}

	if current >= storage.ExpectedSchemaVersion {
		fmt.Println(cli.FormatInfo(fmt.Sprintf("Database is already at version %d", current)))
		return nil
	}

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Migrated database from version %d to %d", current, storage.ExpectedSchemaVersion)))
	return nil
}
