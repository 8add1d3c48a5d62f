package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/raster"
)

// StackBuilder writes a land-cover stack of 16-bit bands and its manifest.
//
// Example:
//
//	path := testutil.NewStackBuilder(t, 2, 1).
//		WithBand(3, 3).
//		WithBand(3, 24).
//		Write(dir)
type StackBuilder struct {
	t         *testing.T
	nodata    *int
	name      string
	georef    model.Georef
	bands     [][]uint16
	width     int
	height    int
	startYear int
}

// NewStackBuilder starts a stack of width x height bands named "test" beginning in 2000
// with one-unit square pixels anchored at the origin.
func NewStackBuilder(t *testing.T, width, height int) *StackBuilder {
	t.Helper()
	return &StackBuilder{
		t:         t,
		name:      "test",
		width:     width,
		height:    height,
		startYear: 2000,
		georef:    model.Georef{Transform: [6]float64{0, 1, 0, float64(height), 0, -1}},
	}
}

// WithName sets the stack name.
func (b *StackBuilder) WithName(name string) *StackBuilder {
	b.name = name
	return b
}

// WithStartYear sets the year of the first band.
func (b *StackBuilder) WithStartYear(year int) *StackBuilder {
	b.startYear = year
	return b
}

// WithGeoref sets the georeference.
func (b *StackBuilder) WithGeoref(ref model.Georef) *StackBuilder {
	b.georef = ref
	return b
}

// WithNoData sets the manifest nodata value.
func (b *StackBuilder) WithNoData(v int) *StackBuilder {
	b.nodata = &v
	return b
}

// WithBand appends a band given in row-major order.
func (b *StackBuilder) WithBand(pix ...uint16) *StackBuilder {
	b.t.Helper()
	if len(pix) != b.width*b.height {
		b.t.Fatalf("band %d has %d pixels, want %d", len(b.bands)+1, len(pix), b.width*b.height)
	}
	b.bands = append(b.bands, pix)
	return b
}

// Write stores the bands and manifest in dir and returns the manifest path.
func (b *StackBuilder) Write(dir string) string {
	b.t.Helper()

	m := raster.Manifest{
		Name:         b.name,
		StartYear:    b.startYear,
		CRS:          b.georef.CRS,
		Geotransform: b.georef.Transform[:],
		NoData:       b.nodata,
	}
	for i, pix := range b.bands {
		g := model.NewGrid(b.width, b.height)
		copy(g.Pix, pix)
		name := fmt.Sprintf("%s_%d.tif", b.name, b.startYear+i)
		if err := raster.WriteGrid(filepath.Join(dir, name), g); err != nil {
			b.t.Fatalf("failed to write band: %v", err)
		}
		m.Bands = append(m.Bands, name)
	}

	path := filepath.Join(dir, b.name+".yaml")
	if err := raster.WriteManifest(path, m); err != nil {
		b.t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

// Square is a named axis-aligned polygon zone.
type Square struct {
	Name                   string
	MinX, MinY, MaxX, MaxY float64
}

// WriteLayer writes squares as a GeoJSON FeatureCollection with the name under
// the NOMBRE attribute and returns the file path.
func WriteLayer(t *testing.T, dir, file string, squares ...Square) string {
	t.Helper()

	features := make([]string, 0, len(squares))
	for _, s := range squares {
		features = append(features, fmt.Sprintf(
			`{"type":"Feature","properties":{"NOMBRE":%q},"geometry":{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}}`,
			s.Name, s.MinX, s.MinY, s.MaxX, s.MinY, s.MaxX, s.MaxY, s.MinX, s.MaxY, s.MinX, s.MinY))
	}

	path := filepath.Join(dir, file)
	data := `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("failed to write layer: %v", err)
	}
	return path
}
