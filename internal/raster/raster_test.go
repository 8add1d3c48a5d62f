package raster

import (
	"bytes"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
)

var testRef = model.Georef{CRS: "EPSG:9377", Transform: [6]float64{4700000, 30, 0, 2100000, 0, -30}}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func encode(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, tiff.Encode(f, img, nil))
}

func TestReadBand_Formats(t *testing.T) {
	dir := t.TempDir()

	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	copy(gray.Pix, []uint8{3, 6, 9, 11, 0, 255})

	gray16 := image.NewGray16(image.Rect(0, 0, 2, 1))
	gray16.SetGray16(0, 0, color.Gray16{Y: 999})
	gray16.SetGray16(1, 0, color.Gray16{Y: 68})

	palette := color.Palette{color.Black, color.White, color.Gray{Y: 128}, color.Gray{Y: 64}}
	paletted := image.NewPaletted(image.Rect(0, 0, 2, 2), palette)
	copy(paletted.Pix, []uint8{0, 1, 2, 3})

	tests := []struct {
		img    image.Image
		name   string
		want   []uint16
		width  int
		height int
	}{
		{name: "gray8", img: gray, width: 3, height: 2, want: []uint16{3, 6, 9, 11, 0, 255}},
		{name: "gray16", img: gray16, width: 2, height: 1, want: []uint16{999, 68}},
		{name: "paletted", img: paletted, width: 2, height: 2, want: []uint16{0, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".tif")
			encode(t, path, tt.img)

			grid, err := ReadBand(path)
			require.NoError(t, err)
			assert.Equal(t, tt.width, grid.Width)
			assert.Equal(t, tt.height, grid.Height)
			assert.Equal(t, tt.want, grid.Pix)
		})
	}
}

func TestReadBand_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadBand(filepath.Join(dir, "missing.tif"))
	require.ErrorIs(t, err, common.ErrAccess)

	garbage := filepath.Join(dir, "garbage.tif")
	writeFile(t, garbage, "not a tiff")
	_, err = ReadBand(garbage)
	require.ErrorIs(t, err, common.ErrAccess)

	rgba := filepath.Join(dir, "rgba.tif")
	encode(t, rgba, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	_, err = ReadBand(rgba)
	require.ErrorIs(t, err, common.ErrAccess)
}

func TestWriteGrid_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.tif")
	grid := model.Grid{Width: 2, Height: 2, Pix: []uint16{0, 3, 999, 65535}}

	require.NoError(t, WriteGrid(path, grid))
	got, err := ReadBand(path)
	require.NoError(t, err)
	assert.Equal(t, grid, got)
}

func TestLoadStack(t *testing.T) {
	dir := t.TempDir()
	for i, pix := range [][]uint16{{3, 9, 0, 12}, {21, 3, 0, 999}} {
		name := filepath.Join(dir, []string{"2000.tif", "2001.tif"}[i])
		require.NoError(t, WriteGrid(name, model.Grid{Width: 2, Height: 2, Pix: pix}))
	}
	manifest := filepath.Join(dir, "caqueta.yaml")
	writeFile(t, manifest, `name: caqueta
start_year: 2000
geotransform: [4700000, 30, 0, 2100000, 0, -30]
crs: EPSG:9377
nodata: 0
bands:
  - 2000.tif
  - 2001.tif
`)

	stack, err := LoadStack(manifest)
	require.NoError(t, err)

	assert.Equal(t, "caqueta", stack.Name)
	assert.Equal(t, 2000, stack.StartYear)
	assert.Equal(t, testRef, stack.Georef)
	require.NotNil(t, stack.NoData)
	assert.Equal(t, uint16(0), *stack.NoData)
	require.Len(t, stack.Bands, 2)
	assert.Equal(t, []uint16{21, 3, 0, 999}, stack.Bands[1].Pix)
	assert.Equal(t, 2001, stack.Year(1))
}

func TestLoadStack_Errors(t *testing.T) {
	tests := []struct {
		wantErr  error
		name     string
		manifest string
	}{
		{name: "no bands", manifest: "name: x\nstart_year: 2000\nbands: []\n", wantErr: ErrBadManifest},
		{name: "short geotransform", manifest: "start_year: 2000\ngeotransform: [1, 2]\nbands: [a.tif]\n", wantErr: ErrBadManifest},
		{name: "nodata out of range", manifest: "start_year: 2000\nnodata: 70000\nbands: [a.tif]\n", wantErr: ErrBadManifest},
		{name: "not yaml", manifest: "bands: [a.tif\n", wantErr: ErrBadManifest},
		{name: "missing band", manifest: "start_year: 2000\nbands: [nope.tif]\n", wantErr: common.ErrAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "stack.yaml")
			writeFile(t, path, tt.manifest)
			_, err := LoadStack(path)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := LoadStack(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, common.ErrAccess)
}

func TestCheckAccess(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.yaml")
	writeFile(t, present, "x")

	require.NoError(t, CheckAccess(present, dir))

	err := CheckAccess(present, filepath.Join(dir, "a"), filepath.Join(dir, "b"))
	require.ErrorIs(t, err, common.ErrAccess)
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}

func classStack() model.ClassStack {
	nd := uint8(0)
	return model.ClassStack{
		Name:      "caqueta",
		StartYear: 2000,
		Georef:    testRef,
		NoData:    &nd,
		Bands: []model.CodeGrid{
			{Width: 2, Height: 2, Pix: []uint8{1, 1, 2, 3}},
			{Width: 2, Height: 2, Pix: []uint8{3, 1, 2, 0}},
			{Width: 2, Height: 2, Pix: []uint8{3, 3, 1, 0}},
		},
	}
}

func TestReclassOutputs_RoundTrip(t *testing.T) {
	out := Dir{Path: filepath.Join(t.TempDir(), "out")}
	cs := classStack()

	for i := range cs.Bands {
		path, err := out.WriteReclassBand(cs, i)
		require.NoError(t, err)
		assert.Equal(t, ReclassBandName("caqueta", 2000+i), filepath.Base(path))
	}
	manifest, err := out.WriteReclassManifest(cs)
	require.NoError(t, err)
	assert.Equal(t, "caqueta_reclass.yaml", filepath.Base(manifest))

	got, err := LoadClassStack(manifest)
	require.NoError(t, err)
	assert.Equal(t, "caqueta_reclass", got.Name)
	assert.Equal(t, cs.StartYear, got.StartYear)
	assert.Equal(t, cs.Georef, got.Georef)
	assert.Equal(t, cs.NoData, got.NoData)
	assert.Equal(t, cs.Bands, got.Bands)

	_, err = out.WriteReclassBand(cs, 3)
	require.Error(t, err)
}

func TestLoadClassStack_RejectsWideCodes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteGrid(filepath.Join(dir, "b.tif"), model.Grid{Width: 1, Height: 1, Pix: []uint16{300}}))
	path := filepath.Join(dir, "s.yaml")
	writeFile(t, path, "start_year: 2000\nbands: [b.tif]\n")

	_, err := LoadClassStack(path)
	require.ErrorIs(t, err, ErrBadManifest)
}

func transitionGrids() []model.TransitionGrid {
	nd := uint8(0)
	return []model.TransitionGrid{
		{Label: "2000_to_2001", FromYear: 2000, ToYear: 2001, Georef: testRef, NoData: &nd,
			Grid: model.CodeGrid{Width: 2, Height: 1, Pix: []uint8{1, 0}}},
		{Label: "2001_to_2002", FromYear: 2001, ToYear: 2002, Georef: testRef, NoData: &nd,
			Grid: model.CodeGrid{Width: 2, Height: 1, Pix: []uint8{4, 2}}},
	}
}

func TestTransitions_ManifestRoundTrip(t *testing.T) {
	out := Dir{Path: t.TempDir()}
	grids := transitionGrids()

	for _, g := range grids {
		path, err := out.WriteTransition(g)
		require.NoError(t, err)
		assert.Equal(t, "transition_"+g.Label+".tif", filepath.Base(path))
	}
	_, err := out.WriteTransitionManifest(grids)
	require.NoError(t, err)

	got, err := ReadTransitions(out.Path, model.Georef{})
	require.NoError(t, err)
	assert.Equal(t, grids, got)
}

func TestTransitions_ScanWithoutManifest(t *testing.T) {
	out := Dir{Path: t.TempDir()}
	grids := transitionGrids()
	for i := len(grids) - 1; i >= 0; i-- {
		_, err := out.WriteTransition(grids[i])
		require.NoError(t, err)
	}
	require.NoError(t, WriteCodeGrid(filepath.Join(out.Path, "transition_latest.tif"),
		model.CodeGrid{Width: 1, Height: 1, Pix: []uint8{0}}))

	got, err := ReadTransitions(out.Path, testRef)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2000_to_2001", got[0].Label)
	assert.Equal(t, 2001, got[0].ToYear)
	assert.Equal(t, 2002, got[1].YearGrid().Year)
	assert.Equal(t, testRef, got[1].Georef)
	assert.Nil(t, got[1].NoData)
	assert.Equal(t, grids[1].Grid, got[1].Grid)
}

func TestTransitions_ScanAcceptsOtherPrefixes(t *testing.T) {
	dir := t.TempDir()
	grid := model.CodeGrid{Width: 2, Height: 1, Pix: []uint8{1, 3}}
	require.NoError(t, WriteCodeGrid(filepath.Join(dir, "transicion_2000_to_2001.tif"), grid))
	require.NoError(t, WriteCodeGrid(filepath.Join(dir, "clases_2000.tif"), grid))

	got, err := ReadTransitions(dir, testRef)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2000_to_2001", got[0].Label)
	assert.Equal(t, 2000, got[0].FromYear)
	assert.Equal(t, 2001, got[0].ToYear)
	assert.Equal(t, grid, got[0].Grid)
}

func TestTransitions_ScanWarnsWhenNothingMatches(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	require.NoError(t, WriteCodeGrid(filepath.Join(dir, "clases_2000.tif"),
		model.CodeGrid{Width: 1, Height: 1, Pix: []uint8{1}}))

	got, err := ReadTransitions(dir, testRef)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Contains(t, buf.String(), "No transition grids found")
}

func TestTransitions_MissingDir(t *testing.T) {
	_, err := ReadTransitions(filepath.Join(t.TempDir(), "absent"), model.Georef{})
	require.ErrorIs(t, err, common.ErrAccess)
}
