// Package raster reads and writes land-cover stacks as per-year TIFF bands described by YAML manifests.
package raster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
)

// ErrBadManifest indicates a manifest that parses but cannot describe a stack.
var ErrBadManifest = errors.New("invalid stack manifest")

// Manifest describes a stack of single-band rasters, one per year in band order.
type Manifest struct {
	NoData       *int      `yaml:"nodata,omitempty"`
	Name         string    `yaml:"name"`
	CRS          string    `yaml:"crs,omitempty"`
	Geotransform []float64 `yaml:"geotransform,omitempty,flow"`
	Bands        []string  `yaml:"bands"`
	StartYear    int       `yaml:"start_year"`
}

// Georef returns the manifest georeferencing.
func (m Manifest) Georef() model.Georef {
	ref := model.Georef{CRS: m.CRS}
	copy(ref.Transform[:], m.Geotransform)
	return ref
}

// Validate checks the manifest fields that do not require touching band files.
func (m Manifest) Validate() error {
	if len(m.Bands) == 0 {
		return fmt.Errorf("%w: no bands listed", ErrBadManifest)
	}
	if len(m.Geotransform) != 0 && len(m.Geotransform) != 6 {
		return fmt.Errorf("%w: geotransform needs 6 coefficients, got %d", ErrBadManifest, len(m.Geotransform))
	}
	if m.NoData != nil && (*m.NoData < 0 || *m.NoData > 0xFFFF) {
		return fmt.Errorf("%w: nodata %d outside 0..65535", ErrBadManifest, *m.NoData)
	}
	return nil
}

// ReadManifest loads and validates a manifest file.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %w", common.ErrAccess, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %s: %w", ErrBadManifest, path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// WriteManifest writes m as YAML to path.
func WriteManifest(path string, m Manifest) error {
	return writeYAML(path, m)
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// CheckAccess verifies that every path exists and can be opened for reading.
// All inaccessible paths are reported together.
func CheckAccess(paths ...string) error {
	var errs []error
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", common.ErrAccess, err))
			continue
		}
		_ = f.Close()
	}
	return errors.Join(errs...)
}

// manifestGeotransform converts a georef into manifest form, omitting an unset transform.
func manifestGeotransform(ref model.Georef) []float64 {
	if ref.IsZero() {
		return nil
	}
	return append([]float64(nil), ref.Transform[:]...)
}

func widenNoData(nd *uint8) *int {
	if nd == nil {
		return nil
	}
	v := int(*nd)
	return &v
}
