// Package testutil provides fixtures shared by package tests: migrated run databases
// and land-cover stacks and zone layers written to temporary directories.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/storage"
)

// TestDB is a migrated run database that is closed when the test ends.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	SkipMigrations bool
}

// SetupTestDB creates a migrated database in a temporary directory.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "cobertura.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{Storage: store, t: t}
}

// CreateRun records a running run for stackName and returns it.
func (db *TestDB) CreateRun(stackName string, startYear int) *model.Run {
	db.t.Helper()

	run := &model.Run{
		StackName: stackName,
		Manifest:  stackName + ".yaml",
		StartYear: startYear,
		PixelArea: 1,
	}
	if err := db.Storage.CreateRun(context.Background(), run); err != nil {
		db.t.Fatalf("failed to create run: %v", err)
	}
	return run
}
