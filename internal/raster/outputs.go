package raster

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/transition"
)

// TransitionManifestName is the manifest written next to transition grids.
const TransitionManifestName = "transitions.yaml"

// TransitionManifest lists the transition grids of a directory in interval order.
type TransitionManifest struct {
	NoData       *int            `yaml:"nodata,omitempty"`
	CRS          string          `yaml:"crs,omitempty"`
	Geotransform []float64       `yaml:"geotransform,omitempty,flow"`
	Intervals    []IntervalEntry `yaml:"intervals"`
}

// IntervalEntry names one transition grid file.
type IntervalEntry struct {
	Label    string `yaml:"label"`
	File     string `yaml:"file"`
	FromYear int    `yaml:"from_year"`
	ToYear   int    `yaml:"to_year"`
}

// Dir writes pipeline outputs beneath Path.
type Dir struct {
	Path string
}

// ReclassBandName returns the file name of the reclassified band for year.
func ReclassBandName(name string, year int) string {
	return fmt.Sprintf("%s_reclass_%d.tif", name, year)
}

// ReclassManifestName returns the file name of the reclassified stack manifest.
func ReclassManifestName(name string) string {
	return name + "_reclass.yaml"
}

// TransitionFileName returns the file name of the transition grid for label.
func TransitionFileName(label string) string {
	return transition.FileStem(label) + ".tif"
}

// WriteReclassBand writes band i of cs and returns its path.
func (d Dir) WriteReclassBand(cs model.ClassStack, i int) (string, error) {
	if i < 0 || i >= len(cs.Bands) {
		return "", fmt.Errorf("band index %d out of range", i)
	}
	path := filepath.Join(d.Path, ReclassBandName(cs.Name, cs.Year(i)))
	if err := WriteCodeGrid(path, cs.Bands[i]); err != nil {
		return "", err
	}
	return path, nil
}

// WriteReclassManifest writes the manifest describing every band of cs.
// It assumes the bands were written with WriteReclassBand.
func (d Dir) WriteReclassManifest(cs model.ClassStack) (string, error) {
	m := Manifest{
		Name:         cs.Name + "_reclass",
		StartYear:    cs.StartYear,
		CRS:          cs.Georef.CRS,
		Geotransform: manifestGeotransform(cs.Georef),
		NoData:       widenNoData(cs.NoData),
	}
	for i := range cs.Bands {
		m.Bands = append(m.Bands, ReclassBandName(cs.Name, cs.Year(i)))
	}
	path := filepath.Join(d.Path, ReclassManifestName(cs.Name))
	if err := WriteManifest(path, m); err != nil {
		return "", err
	}
	return path, nil
}

// WriteTransition writes one transition grid and returns its path.
func (d Dir) WriteTransition(g model.TransitionGrid) (string, error) {
	path := filepath.Join(d.Path, TransitionFileName(g.Label))
	if err := WriteCodeGrid(path, g.Grid); err != nil {
		return "", err
	}
	return path, nil
}

// WriteTransitionManifest lists grids in the given order. Georeferencing and
// nodata are taken from the first grid.
func (d Dir) WriteTransitionManifest(grids []model.TransitionGrid) (string, error) {
	var m TransitionManifest
	if len(grids) > 0 {
		m.CRS = grids[0].Georef.CRS
		m.Geotransform = manifestGeotransform(grids[0].Georef)
		m.NoData = widenNoData(grids[0].NoData)
	}
	for _, g := range grids {
		m.Intervals = append(m.Intervals, IntervalEntry{
			Label:    g.Label,
			File:     TransitionFileName(g.Label),
			FromYear: g.FromYear,
			ToYear:   g.ToYear,
		})
	}
	path := filepath.Join(d.Path, TransitionManifestName)
	if err := writeYAML(path, m); err != nil {
		return "", err
	}
	return path, nil
}

// ReadTransitions loads the transition grids stored in dir.
// When dir has a manifest it is authoritative. Otherwise every transition_*.tif is
// read, the interval is taken from the file name and fallback supplies the
// georeferencing; files whose names do not parse are skipped with a warning.
func ReadTransitions(dir string, fallback model.Georef) ([]model.TransitionGrid, error) {
	manifestPath := filepath.Join(dir, TransitionManifestName)
	data, err := os.ReadFile(manifestPath)
	switch {
	case err == nil:
		return readTransitionManifest(dir, manifestPath, data)
	case os.IsNotExist(err):
		return scanTransitions(dir, fallback)
	default:
		return nil, fmt.Errorf("%w: %w", common.ErrAccess, err)
	}
}

func readTransitionManifest(dir, path string, data []byte) ([]model.TransitionGrid, error) {
	var m TransitionManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadManifest, path, err)
	}
	if len(m.Geotransform) != 0 && len(m.Geotransform) != 6 {
		return nil, fmt.Errorf("%w: geotransform needs 6 coefficients, got %d", ErrBadManifest, len(m.Geotransform))
	}
	if m.NoData != nil && (*m.NoData < 0 || *m.NoData > 0xFF) {
		return nil, fmt.Errorf("%w: nodata %d outside 0..255", ErrBadManifest, *m.NoData)
	}

	ref := Manifest{CRS: m.CRS, Geotransform: m.Geotransform}.Georef()
	var nd *uint8
	if m.NoData != nil {
		v := uint8(*m.NoData)
		nd = &v
	}

	grids := make([]model.TransitionGrid, 0, len(m.Intervals))
	for _, entry := range m.Intervals {
		grid, err := readCodeBand(resolve(dir, entry.File))
		if err != nil {
			return nil, fmt.Errorf("interval %s: %w", entry.Label, err)
		}
		grids = append(grids, model.TransitionGrid{
			Label:    entry.Label,
			FromYear: entry.FromYear,
			ToYear:   entry.ToYear,
			Grid:     grid,
			NoData:   nd,
			Georef:   ref,
		})
	}
	return grids, nil
}

func scanTransitions(dir string, fallback model.Georef) ([]model.TransitionGrid, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.tif"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if matches == nil {
		if _, statErr := os.Stat(dir); statErr != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrAccess, statErr)
		}
	}

	var grids []model.TransitionGrid
	for _, path := range matches {
		label, ok := transition.LabelFromStem(strings.TrimSuffix(filepath.Base(path), ".tif"))
		if !ok {
			slog.Debug("Skipping file without an interval label", "file", path)
			continue
		}
		from, to, err := transition.ParseLabel(label)
		if err != nil {
			slog.Warn("Skipping transition file with unrecognized name",
				"file", path,
				"error", err)
			continue
		}
		grid, err := readCodeBand(path)
		if err != nil {
			return nil, err
		}
		grids = append(grids, model.TransitionGrid{
			Label:    label,
			FromYear: from,
			ToYear:   to,
			Grid:     grid,
			Georef:   fallback,
		})
	}
	if len(grids) == 0 && len(matches) > 0 {
		slog.Warn("No transition grids found; file names must end in {from}_to_{to}.tif",
			"dir", dir,
			"tif_files", len(matches))
	}

	sort.SliceStable(grids, func(i, j int) bool {
		if grids[i].ToYear != grids[j].ToYear {
			return grids[i].ToYear < grids[j].ToYear
		}
		return grids[i].FromYear < grids[j].FromYear
	})
	return grids, nil
}

func readCodeBand(path string) (model.CodeGrid, error) {
	band, err := ReadBand(path)
	if err != nil {
		return model.CodeGrid{}, err
	}
	out, err := narrow(band)
	if err != nil {
		return model.CodeGrid{}, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}
