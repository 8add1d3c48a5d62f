package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					stack_name TEXT NOT NULL,
					manifest TEXT,
					start_year INTEGER NOT NULL,
					bands INTEGER NOT NULL DEFAULT 0,
					intervals INTEGER NOT NULL DEFAULT 0,
					pixel_area REAL NOT NULL DEFAULT 0,
					nodata INTEGER,
					crs TEXT,
					geotransform TEXT,
					status TEXT NOT NULL,
					started_at DATETIME NOT NULL,
					finished_at DATETIME
				)`,

				`CREATE TABLE IF NOT EXISTS class_bands (
					run_id TEXT NOT NULL,
					year INTEGER NOT NULL,
					width INTEGER NOT NULL,
					height INTEGER NOT NULL,
					pixels BLOB NOT NULL,
					UNIQUE(run_id, year),
					FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS transitions (
					run_id TEXT NOT NULL,
					label TEXT NOT NULL,
					from_year INTEGER NOT NULL,
					to_year INTEGER NOT NULL,
					width INTEGER NOT NULL,
					height INTEGER NOT NULL,
					pixels BLOB NOT NULL,
					UNIQUE(run_id, label),
					FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS zone_stats (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					year INTEGER NOT NULL,
					zone_type TEXT NOT NULL DEFAULT '',
					zone_name TEXT NOT NULL DEFAULT '',
					class_code INTEGER NOT NULL,
					class_label TEXT NOT NULL,
					pixel_count INTEGER NOT NULL,
					area REAL NOT NULL,
					FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS run_failures (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL,
					stage TEXT NOT NULL,
					unit TEXT NOT NULL,
					message TEXT NOT NULL,
					skipped BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add lookup indexes",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
				`CREATE INDEX IF NOT EXISTS idx_zone_stats_run_kind ON zone_stats(run_id, kind)`,
				`CREATE INDEX IF NOT EXISTS idx_run_failures_run_id ON run_failures(run_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies every pending migration in order.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
