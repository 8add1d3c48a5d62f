// Package zones loads named zone geometries and masks raster cells against them.
package zones

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Veraticus/cobertura/internal/common"
)

// Zone errors.
var (
	ErrMissingName         = errors.New("zone has no name attribute")
	ErrUnsupportedGeometry = errors.New("unsupported zone geometry")
	ErrNoGeoref            = errors.New("raster has no georeferencing")
)

// Default attribute names read for zone names.
const (
	DefaultNameField         = "NOMBRE"
	DefaultFallbackNameField = "ap_nombre"
)

// Zone is one named geographic area.
type Zone struct {
	Geometry   orb.Geometry
	Properties map[string]any
	Index      int
}

// Layer is an ordered collection of zones of one type (protected areas, indigenous reserves).
type Layer struct {
	Type  string
	Zones []Zone
}

// NameFields configures which attributes hold a zone's name.
type NameFields struct {
	Primary  string
	Fallback string
}

// DefaultNameFields returns the attribute names used by the national protected-area
// and indigenous-reserve layers.
func DefaultNameFields() NameFields {
	return NameFields{Primary: DefaultNameField, Fallback: DefaultFallbackNameField}
}

// Resolve returns the zone's name from the primary attribute, falling back to the
// secondary one only when the primary is absent. A blank name is missing.
func (f NameFields) Resolve(z Zone) (string, error) {
	for _, field := range []string{f.Primary, f.Fallback} {
		if field == "" {
			continue
		}
		v, ok := z.Properties[field]
		if !ok || v == nil {
			continue
		}
		if name := strings.TrimSpace(fmt.Sprint(v)); name != "" {
			return name, nil
		}
		return "", fmt.Errorf("%w: zone %d has a blank %q", ErrMissingName, z.Index, field)
	}
	return "", fmt.Errorf("%w: zone %d has neither %q nor %q", ErrMissingName, z.Index, f.Primary, f.Fallback)
}

// LoadLayer reads a GeoJSON FeatureCollection into a layer of the given type.
func LoadLayer(path, zoneType string) (Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layer{}, fmt.Errorf("%w: zone layer %s: %v", common.ErrAccess, path, err)
	}

	layer, err := ParseLayer(data, zoneType)
	if err != nil {
		return Layer{}, fmt.Errorf("zone layer %s: %w", path, err)
	}

	slog.Info("Loaded zone layer",
		"type", zoneType,
		"path", path,
		"zones", len(layer.Zones))

	return layer, nil
}

// ParseLayer decodes GeoJSON FeatureCollection bytes into a layer.
func ParseLayer(data []byte, zoneType string) (Layer, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return Layer{}, fmt.Errorf("%w: invalid GeoJSON: %v", common.ErrAccess, err)
	}

	layer := Layer{Type: zoneType, Zones: make([]Zone, 0, len(fc.Features))}
	for i, f := range fc.Features {
		props := map[string]any(f.Properties)
		if props == nil {
			props = map[string]any{}
		}
		layer.Zones = append(layer.Zones, Zone{
			Index:      i,
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	return layer, nil
}
