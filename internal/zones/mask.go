package zones

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/Veraticus/cobertura/internal/model"
)

// Masker selects the cells of a raster that fall inside a zone.
type Masker interface {
	Mask(z Zone, ref model.Georef, width, height int) ([]int, error)
}

// CenterMasker selects cells whose center lies inside the zone's polygon(s).
type CenterMasker struct{}

// Mask returns the row-major indices of the selected cells in ascending order.
func (CenterMasker) Mask(z Zone, ref model.Georef, width, height int) ([]int, error) {
	if ref.IsZero() {
		return nil, ErrNoGeoref
	}

	var contains func(orb.Point) bool
	switch g := z.Geometry.(type) {
	case orb.Polygon:
		contains = func(p orb.Point) bool { return planar.PolygonContains(g, p) }
	case orb.MultiPolygon:
		contains = func(p orb.Point) bool { return planar.MultiPolygonContains(g, p) }
	case nil:
		return nil, fmt.Errorf("%w: zone %d has no geometry", ErrUnsupportedGeometry, z.Index)
	default:
		return nil, fmt.Errorf("%w: zone %d is a %s", ErrUnsupportedGeometry, z.Index, g.GeoJSONType())
	}

	x0, x1, y0, y1 := window(z.Geometry.Bound(), ref, width, height)

	var idx []int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			cx, cy := ref.PixelCenter(x, y)
			if contains(orb.Point{cx, cy}) {
				idx = append(idx, y*width+x)
			}
		}
	}
	return idx, nil
}

// window converts a world bound into a clamped pixel window [x0,x1) x [y0,y1).
// Rotated transforms fall back to the full raster.
func window(b orb.Bound, ref model.Georef, width, height int) (int, int, int, int) {
	t := ref.Transform
	if t[2] != 0 || t[4] != 0 || t[1] == 0 || t[5] == 0 {
		return 0, width, 0, height
	}

	ca := (b.Min.X() - t[0]) / t[1]
	cb := (b.Max.X() - t[0]) / t[1]
	ra := (b.Min.Y() - t[3]) / t[5]
	rb := (b.Max.Y() - t[3]) / t[5]

	x0 := clamp(int(math.Floor(math.Min(ca, cb))), 0, width)
	x1 := clamp(int(math.Ceil(math.Max(ca, cb))), 0, width)
	y0 := clamp(int(math.Floor(math.Min(ra, rb))), 0, height)
	y1 := clamp(int(math.Ceil(math.Max(ra, rb))), 0, height)
	return x0, x1, y0, y1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
