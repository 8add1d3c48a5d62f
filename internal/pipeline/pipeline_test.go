package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/metrics"
	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/raster"
	"github.com/Veraticus/cobertura/internal/testutil"
	"github.com/Veraticus/cobertura/internal/zonal"
	"github.com/Veraticus/cobertura/internal/zones"
)

var errDiskFull = errors.New("disk full")

type fakeSink struct {
	failBand   map[int]bool
	failLabel  map[string]bool
	bands      []int
	labels     []string
	finalized  []Written
	mu         sync.Mutex
	finalizeOK bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{failBand: map[int]bool{}, failLabel: map[string]bool{}, finalizeOK: true}
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) WriteClassBand(_ context.Context, cs model.ClassStack, band int) error {
	if s.failBand[cs.Year(band)] {
		return errDiskFull
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bands = append(s.bands, cs.Year(band))
	return nil
}

func (s *fakeSink) WriteTransition(_ context.Context, g model.TransitionGrid) error {
	if s.failLabel[g.Label] {
		return errDiskFull
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = append(s.labels, g.Label)
	return nil
}

func (s *fakeSink) Finalize(_ context.Context, w Written) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = append(s.finalized, w)
	if !s.finalizeOK {
		return errDiskFull
	}
	return nil
}

type countingProgress struct {
	totals   map[Stage]int
	advanced map[Stage]int
	mu       sync.Mutex
}

func (p *countingProgress) Start(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totals[stage] = total
}

func (p *countingProgress) Advance(stage Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanced[stage]++
}

func (p *countingProgress) Finish(Stage) {}

// testStack reclassifies to
// 2000: 1 1 / 1 1, 2001: 3 1 / 2 0, 2002: 1 1 / 2 3.
func testStack() model.Stack {
	return model.Stack{
		Name:      "test",
		StartYear: 2000,
		Georef:    model.Georef{Transform: [6]float64{0, 1, 0, 2, 0, -1}},
		Bands: []model.Grid{
			{Width: 2, Height: 2, Pix: []uint16{3, 3, 3, 3}},
			{Width: 2, Height: 2, Pix: []uint16{9, 3, 12, 0}},
			{Width: 2, Height: 2, Pix: []uint16{3, 3, 12, 9}},
		},
	}
}

func testConfig() Config {
	cfg := DefaultConfig(1)
	cfg.Layers = []zones.Layer{{
		Type: "PNN",
		Zones: []zones.Zone{
			{Index: 0, Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 2}, {0, 2}, {0, 0}}}, Properties: map[string]any{"NOMBRE": "Left"}},
			{Index: 1, Geometry: orb.Polygon{{{1, 0}, {2, 0}, {2, 2}, {1, 2}, {1, 0}}}, Properties: map[string]any{}},
		},
	}}
	return cfg
}

func TestRun_EndToEnd(t *testing.T) {
	sink := newFakeSink()
	progress := &countingProgress{totals: map[Stage]int{}, advanced: map[Stage]int{}}
	m := metrics.New()

	res, err := New(testConfig(), []Sink{sink}, m, progress).Run(context.Background(), testStack())
	require.NoError(t, err)

	assert.Equal(t, []uint8{3, 1, 2, 0}, res.Classes.Bands[1].Pix)
	assert.Equal(t, []string{"2000_to_2001", "2001_to_2002"}, res.Transitions.Labels())

	g, ok := res.Transitions.Get("2000_to_2001")
	require.True(t, ok)
	assert.Equal(t, []uint8{1, 0, 3, 4}, g.Grid.Pix)
	g, ok = res.Transitions.Get("2001_to_2002")
	require.True(t, ok)
	assert.Equal(t, []uint8{2, 0, 0, 4}, g.Grid.Pix)

	require.Len(t, res.Global.Series.Rows, 2)
	assert.Equal(t, []float64{1, 0, 1}, res.Global.Series.Rows[0].Areas)
	assert.Equal(t, []float64{0, 1, 0}, res.Global.Series.Rows[1].Areas)

	require.Len(t, res.Zonal.Rows, 3)
	assert.Equal(t, "Left", res.Zonal.Rows[0].ZoneName)
	assert.Equal(t, uint8(1), res.Zonal.Rows[0].ClassCode)
	assert.Equal(t, uint8(3), res.Zonal.Rows[1].ClassCode)
	assert.Equal(t, 2002, res.Zonal.Rows[2].Year)

	require.NotNil(t, res.Reduced)
	require.Len(t, res.Reduced.Series.Rows, 3)
	assert.Equal(t, []float64{4, 0, 0}, res.Reduced.Series.Rows[0].Areas)

	assert.Empty(t, res.Report.Failed)
	require.Len(t, res.Report.Skipped, 1)
	assert.ErrorIs(t, res.Report.Skipped[0].Err, zones.ErrMissingName)
	assert.Equal(t, "PNN/#1", res.Report.Skipped[0].Unit)

	sort.Ints(sink.bands)
	assert.Equal(t, []int{2000, 2001, 2002}, sink.bands)
	require.Len(t, sink.finalized, 1)
	assert.True(t, sink.finalized[0].CompleteStack())
	assert.Len(t, sink.finalized[0].Transitions, 2)

	assert.Equal(t, 3, progress.totals[StageReclass])
	assert.Equal(t, 3, progress.advanced[StageReclass])
	assert.Equal(t, 2, progress.advanced[StageTransition])
}

func TestRun_SinkFailuresArePartial(t *testing.T) {
	failing := newFakeSink()
	failing.failBand[2001] = true
	failing.failLabel["2001_to_2002"] = true
	failing.finalizeOK = false
	healthy := newFakeSink()

	res, err := New(testConfig(), []Sink{failing, healthy}, nil, nil).Run(context.Background(), testStack())
	require.NoError(t, err)

	require.Len(t, res.Report.Failed, 3)
	stages := map[Stage]int{}
	for _, f := range res.Report.Failed {
		stages[f.Stage]++
		assert.ErrorIs(t, f.Err, errDiskFull)
	}
	assert.Equal(t, map[Stage]int{StageReclass: 1, StageTransition: 1, StageFinalize: 1}, stages)
	assert.True(t, res.Report.Partial())

	require.Len(t, failing.finalized, 1)
	assert.False(t, failing.finalized[0].CompleteStack())
	require.Len(t, failing.finalized[0].Transitions, 1)
	assert.Equal(t, "2000_to_2001", failing.finalized[0].Transitions[0].Label)

	assert.Len(t, healthy.bands, 3)
	assert.Len(t, healthy.labels, 2)
	assert.Equal(t, 2, res.Transitions.Len())

	records := res.Report.RunFailures()
	assert.Len(t, records, 4)
	assert.True(t, records[3].Skipped)
}

func TestRun_LayerFailuresArePartial(t *testing.T) {
	cfg := testConfig()
	cfg.LayerFailures = []Failure{{Stage: StageZones, Unit: "Resguardos", Err: common.ErrAccess}}

	res, err := New(cfg, nil, nil, nil).Run(context.Background(), testStack())
	require.NoError(t, err)

	assert.True(t, res.Report.Partial())
	require.Len(t, res.Report.Failed, 1)
	assert.Equal(t, StageZones, res.Report.Failed[0].Stage)
	assert.Equal(t, "Resguardos", res.Report.Failed[0].Unit)
	assert.Len(t, res.Zonal.Rows, 3)

	records := res.Report.RunFailures()
	require.NotEmpty(t, records)
	assert.Equal(t, "zones", records[0].Stage)
	assert.False(t, records[0].Skipped)
}

func TestRun_ConfigurationViolations(t *testing.T) {
	badArea := testConfig()
	badArea.Transitions.PixelArea = 0

	badRange := testConfig()
	badRange.Transitions.Range = &zonal.YearRange{Start: 2001, End: 2001}

	mismatched := testStack()
	mismatched.Bands[2] = model.Grid{Width: 1, Height: 4, Pix: []uint16{3, 3, 3, 3}}

	tests := []struct {
		wantErr error
		name    string
		stack   model.Stack
		config  Config
	}{
		{name: "non-positive pixel area", config: badArea, stack: testStack(), wantErr: common.ErrInvalidConfig},
		{name: "empty year range", config: badRange, stack: testStack(), wantErr: common.ErrInvalidConfig},
		{name: "dimension mismatch", config: testConfig(), stack: mismatched, wantErr: model.ErrDimensionMismatch},
		{name: "empty stack", config: testConfig(), stack: model.Stack{Name: "empty"}, wantErr: model.ErrEmptyStack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newFakeSink()
			_, err := New(tt.config, []Sink{sink}, nil, nil).Run(context.Background(), tt.stack)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, sink.bands)
			assert.Empty(t, sink.finalized)
		})
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := newFakeSink()
	_, err := New(testConfig(), []Sink{sink}, nil, nil).Run(ctx, testStack())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.finalized)
}

func TestRun_SingleBandHasNoTransitions(t *testing.T) {
	stack := testStack()
	stack.Bands = stack.Bands[:1]

	res, err := New(testConfig(), nil, nil, nil).Run(context.Background(), stack)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Transitions.Len())
	assert.Empty(t, res.Global.Series.Rows)
	assert.Empty(t, res.Zonal.Rows)
}

func TestRun_TIFFAndStoreSinks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db := testutil.SetupTestDB(t)
	store := db.Storage
	run := db.CreateRun("test", 2000)

	sinks := []Sink{
		TIFFSink{Dir: raster.Dir{Path: filepath.Join(dir, "out")}},
		StoreSink{Store: store, RunID: run.ID},
	}
	res, err := New(testConfig(), sinks, nil, nil).Run(ctx, testStack())
	require.NoError(t, err)
	assert.Empty(t, res.Report.Failed)

	fromFiles, err := raster.ReadTransitions(filepath.Join(dir, "out"), model.Georef{})
	require.NoError(t, err)
	assert.Equal(t, res.Transitions.Grids(), fromFiles)

	classes, err := raster.LoadClassStack(filepath.Join(dir, "out", raster.ReclassManifestName("test")))
	require.NoError(t, err)
	assert.Equal(t, res.Classes.Bands, classes.Bands)

	stored, err := store.LoadTransitions(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Transitions.Labels(), stored.Labels())

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Bands)
	assert.Equal(t, 2, got.Intervals)
}
