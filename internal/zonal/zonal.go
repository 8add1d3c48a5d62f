package zonal

import (
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/zones"
)

// Issue describes a zone excluded from the output.
type Issue struct {
	Err      error
	ZoneType string
	ZoneName string
	Index    int
}

func (i Issue) String() string {
	name := i.ZoneName
	if name == "" {
		name = fmt.Sprintf("#%d", i.Index)
	}
	return fmt.Sprintf("%s/%s: %v", i.ZoneType, name, i.Err)
}

// ZonalResult holds per-zone aggregation output together with the zones left out.
type ZonalResult struct {
	Rows    []model.ZoneStat
	Skipped []Issue
	Failed  []Issue
}

type zoneUnit struct {
	zone     zones.Zone
	zoneType string
	name     string
	mask     []int
	err      error
}

// Zonal aggregates every grid restricted to each zone of each layer.
// Layers are reported in the order given and zones in insertion order.
func (a Aggregator) Zonal(grids []model.YearGrid, layers []zones.Layer) (ZonalResult, error) {
	if err := a.Validate(); err != nil {
		return ZonalResult{}, err
	}
	if a.Masker == nil {
		return ZonalResult{}, common.InvalidConfig("masker", "is required for zonal aggregation")
	}

	years, byYear := a.selectYears(grids)
	if len(years) == 0 {
		return ZonalResult{}, nil
	}
	ref, err := sharedFrame(years, byYear)
	if err != nil {
		return ZonalResult{}, err
	}
	if ref.Georef.IsZero() {
		return ZonalResult{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, zones.ErrNoGeoref)
	}

	var result ZonalResult
	var units []*zoneUnit
	for _, layer := range layers {
		for _, z := range layer.Zones {
			name, err := a.Names.Resolve(z)
			if err != nil {
				slog.Warn("Skipping zone without a name",
					"zone_type", layer.Type,
					"index", z.Index)
				result.Skipped = append(result.Skipped, Issue{ZoneType: layer.Type, Index: z.Index, Err: err})
				continue
			}
			units = append(units, &zoneUnit{zone: z, zoneType: layer.Type, name: name})
		}
	}

	var g errgroup.Group
	g.SetLimit(a.workers())
	for _, u := range units {
		g.Go(func() error {
			u.mask, u.err = a.Masker.Mask(u.zone, ref.Georef, ref.Grid.Width, ref.Grid.Height)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ZonalResult{}, err
	}

	live := units[:0]
	for _, u := range units {
		if u.err != nil {
			slog.Warn("Failed to mask zone",
				"zone_type", u.zoneType,
				"zone", u.name,
				"error", u.err)
			result.Failed = append(result.Failed, Issue{ZoneType: u.zoneType, ZoneName: u.name, Index: u.zone.Index, Err: u.err})
			continue
		}
		if len(u.mask) == 0 {
			slog.Debug("Zone covers no pixels", "zone_type", u.zoneType, "zone", u.name)
		}
		live = append(live, u)
	}

	// One slot per (year, zone) cell.
	cells := make([][]classCounts, len(years))
	for yi := range cells {
		cells[yi] = make([]classCounts, len(live))
	}

	var cg errgroup.Group
	cg.SetLimit(a.workers())
	for yi, year := range years {
		for zi, u := range live {
			cg.Go(func() error {
				for _, grid := range byYear[year] {
					cells[yi][zi].add(countMasked(grid, u.mask))
				}
				return nil
			})
		}
	}
	if err := cg.Wait(); err != nil {
		return ZonalResult{}, err
	}

	for yi, year := range years {
		for zi, u := range live {
			result.Rows = append(result.Rows, a.rows(year, u.zoneType, u.name, cells[yi][zi])...)
		}
	}

	slog.Debug("Zonal aggregation complete",
		"years", len(years),
		"zones", len(live),
		"rows", len(result.Rows),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed))

	return result, nil
}

// sharedFrame returns a grid describing the common extent and rejects grids that
// do not share dimensions and georeferencing.
func sharedFrame(years []int, byYear map[int][]model.YearGrid) (model.YearGrid, error) {
	first := byYear[years[0]][0]
	for _, y := range years {
		for _, g := range byYear[y] {
			if !g.Grid.SameShape(first.Grid) {
				return model.YearGrid{}, fmt.Errorf("%w: %w: grid %s is %dx%d, grid %s is %dx%d",
					common.ErrInvalidConfig, model.ErrDimensionMismatch,
					g.Label, g.Grid.Width, g.Grid.Height, first.Label, first.Grid.Width, first.Grid.Height)
			}
			if g.Georef.Transform != first.Georef.Transform {
				return model.YearGrid{}, common.InvalidConfig("georeferencing",
					fmt.Sprintf("grid %s does not share the geotransform of grid %s", g.Label, first.Label))
			}
		}
	}
	return first, nil
}

// TopZones returns the n largest rows for a zone type and class, largest first.
func TopZones(rows []model.ZoneStat, zoneType string, class uint8, n int) []model.ZoneStat {
	var out []model.ZoneStat
	for _, r := range rows {
		if r.ZoneType == zoneType && r.ClassCode == class {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Area != out[j].Area {
			return out[i].Area > out[j].Area
		}
		return out[i].ZoneName < out[j].ZoneName
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
