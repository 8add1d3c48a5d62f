package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func createTestRun(t *testing.T, store *SQLiteStorage) *model.Run {
	t.Helper()
	nd := uint8(0)
	run := &model.Run{
		StackName: "caqueta",
		Manifest:  "/data/caqueta.yaml",
		StartYear: 2000,
		PixelArea: 0.09,
		NoData:    &nd,
		Georef:    model.Georef{CRS: "EPSG:9377", Transform: [6]float64{4700000, 30, 0, 2100000, 0, -30}},
	}
	require.NoError(t, store.CreateRun(context.Background(), run))
	return run
}

func TestMigrate_Idempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))
	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	var indexCount int
	err = store.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='index' AND name='idx_zone_stats_run_kind'
	`).Scan(&indexCount)
	require.NoError(t, err)
	assert.Equal(t, 1, indexCount)
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage(" ")
	require.ErrorIs(t, err, ErrEmptyString)
}

func TestRuns_Lifecycle(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	run := createTestRun(t, store)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunRunning, run.Status)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.StackName, got.StackName)
	assert.Equal(t, run.Manifest, got.Manifest)
	assert.Equal(t, run.Georef, got.Georef)
	assert.Equal(t, run.NoData, got.NoData)
	assert.InDelta(t, 0.09, got.PixelArea, 1e-12)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Second)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, store.UpdateRunCounts(ctx, run.ID, 3, 2))
	require.NoError(t, store.FinishRun(ctx, run.ID, model.RunPartial))

	got, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunPartial, got.Status)
	assert.Equal(t, 3, got.Bands)
	assert.Equal(t, 2, got.Intervals)
	require.NotNil(t, got.FinishedAt)
}

func TestRuns_Errors(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		call    func() error
		wantErr error
		name    string
	}{
		{
			name:    "get unknown run",
			call:    func() error { _, err := store.GetRun(ctx, "nope"); return err },
			wantErr: common.ErrNotFound,
		},
		{
			name:    "finish unknown run",
			call:    func() error { return store.FinishRun(ctx, "nope", model.RunCompleted) },
			wantErr: common.ErrNotFound,
		},
		{
			name:    "finish with bad status",
			call:    func() error { return store.FinishRun(ctx, "nope", "done") },
			wantErr: ErrInvalidRun,
		},
		{
			name:    "create without stack name",
			call:    func() error { return store.CreateRun(ctx, &model.Run{}) },
			wantErr: ErrInvalidRun,
		},
		{
			name:    "create nil run",
			call:    func() error { return store.CreateRun(ctx, nil) },
			wantErr: ErrNilParameter,
		},
		{
			name: "duplicate id",
			call: func() error {
				run := createTestRun(t, store)
				return store.CreateRun(ctx, &model.Run{ID: run.ID, StackName: "again"})
			},
			wantErr: common.ErrDuplicateEntry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.call(), tt.wantErr)
		})
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		run := &model.Run{StackName: name, StartYear: 2000, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, store.CreateRun(ctx, run))
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "third", runs[0].StackName)
	assert.Equal(t, "first", runs[2].StackName)

	runs, err = store.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestTransitions_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	run := createTestRun(t, store)

	grids := []model.TransitionGrid{
		{Label: "2001_to_2002", FromYear: 2001, ToYear: 2002, Grid: model.CodeGrid{Width: 2, Height: 1, Pix: []uint8{4, 0}}},
		{Label: "2000_to_2001", FromYear: 2000, ToYear: 2001, Grid: model.CodeGrid{Width: 2, Height: 1, Pix: []uint8{1, 2}}},
	}
	for _, g := range grids {
		require.NoError(t, store.SaveTransition(ctx, run.ID, g))
	}

	err := store.SaveTransition(ctx, run.ID, grids[0])
	require.ErrorIs(t, err, model.ErrDuplicateLabel)
	require.ErrorIs(t, err, common.ErrDuplicateEntry)

	reg, err := store.LoadTransitions(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2000_to_2001", "2001_to_2002"}, reg.Labels())

	g, ok := reg.Get("2000_to_2001")
	require.True(t, ok)
	assert.Equal(t, []uint8{1, 2}, g.Grid.Pix)
	assert.Equal(t, run.Georef, g.Georef)
	assert.Equal(t, run.NoData, g.NoData)

	bad := model.TransitionGrid{Label: "2002_to_2003", Grid: model.CodeGrid{Width: 3, Height: 1, Pix: []uint8{1}}}
	require.Error(t, store.SaveTransition(ctx, run.ID, bad))
}

func TestClassBands_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	run := createTestRun(t, store)

	bands := []model.CodeGrid{
		{Width: 2, Height: 1, Pix: []uint8{1, 3}},
		{Width: 2, Height: 1, Pix: []uint8{3, 3}},
	}
	require.NoError(t, store.SaveClassBand(ctx, run.ID, 2001, bands[1]))
	require.NoError(t, store.SaveClassBand(ctx, run.ID, 2000, bands[0]))
	require.ErrorIs(t, store.SaveClassBand(ctx, run.ID, 2000, bands[0]), common.ErrDuplicateEntry)

	cs, err := store.LoadClassStack(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "caqueta", cs.Name)
	assert.Equal(t, 2000, cs.StartYear)
	assert.Equal(t, bands, cs.Bands)
}

func TestClassBands_GapIsCorruption(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	run := createTestRun(t, store)

	require.NoError(t, store.SaveClassBand(ctx, run.ID, 2000, model.CodeGrid{Width: 1, Height: 1, Pix: []uint8{1}}))
	require.NoError(t, store.SaveClassBand(ctx, run.ID, 2002, model.CodeGrid{Width: 1, Height: 1, Pix: []uint8{1}}))

	_, err := store.LoadClassStack(ctx, run.ID)
	require.ErrorIs(t, err, common.ErrDatabaseCorrupted)
}

func TestZoneStats_ReplaceAndOrder(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	run := createTestRun(t, store)

	stats := []model.ZoneStat{
		{Year: 2001, ClassCode: 1, ClassLabel: "Deforestation", PixelCount: 10, Area: 0.9},
		{Year: 2001, ZoneType: "PNN", ZoneName: "Chiribiquete", ClassCode: 3, ClassLabel: "Degradation", PixelCount: 2, Area: 0.18},
		{Year: 2002, ZoneType: "PNN", ZoneName: "Alto Fragua", ClassCode: 1, ClassLabel: "Deforestation", PixelCount: 1, Area: 0.09},
	}
	require.NoError(t, store.SaveZoneStats(ctx, run.ID, model.KindTransition, stats))
	require.NoError(t, store.SaveZoneStats(ctx, run.ID, model.KindReduced, stats[:1]))

	got, err := store.ListZoneStats(ctx, run.ID, model.KindTransition)
	require.NoError(t, err)
	assert.Equal(t, stats, got)

	require.NoError(t, store.SaveZoneStats(ctx, run.ID, model.KindTransition, stats[1:]))
	got, err = store.ListZoneStats(ctx, run.ID, model.KindTransition)
	require.NoError(t, err)
	assert.Equal(t, stats[1:], got)

	reduced, err := store.ListZoneStats(ctx, run.ID, model.KindReduced)
	require.NoError(t, err)
	assert.Len(t, reduced, 1)

	require.ErrorIs(t, store.SaveZoneStats(ctx, run.ID, "bogus", stats), ErrInvalidKind)
}

func TestFailures_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	run := createTestRun(t, store)

	failures := []model.RunFailure{
		{Stage: "reclass", Unit: "2001", Message: "disk full"},
		{Stage: "zonal", Unit: "Resguardos/#4", Message: "missing name", Skipped: true},
	}
	require.NoError(t, store.RecordFailures(ctx, run.ID, failures))
	require.NoError(t, store.RecordFailures(ctx, run.ID, nil))

	got, err := store.ListFailures(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, failures, got)
}

func TestBackup(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	run := createTestRun(t, store)

	dest := filepath.Join(t.TempDir(), "backups", "copy.db")
	require.NoError(t, store.Backup(ctx, dest))
	require.Error(t, store.Backup(ctx, dest))

	copied, err := NewSQLiteStorage(dest)
	require.NoError(t, err)
	defer func() { _ = copied.Close() }()

	got, err := copied.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.StackName, got.StackName)

	require.Error(t, store.Backup(ctx, "/tmp/it's.db"))
}
