// Package zonal tabulates class areas per year, over the whole raster or per named zone.
package zonal

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/zones"
)

// YearRange restricts aggregation to grids covering [Start, End].
type YearRange struct {
	Start int
	End   int
}

// Validate rejects empty or inverted ranges.
func (r YearRange) Validate() error {
	if r.Start >= r.End {
		return common.InvalidConfig("year range", fmt.Sprintf("start %d must be before end %d", r.Start, r.End))
	}
	return nil
}

// Includes reports whether the grid's interval lies inside the range.
func (r YearRange) Includes(g model.YearGrid) bool {
	return g.FromYear >= r.Start && g.Year <= r.End
}

// Aggregator converts per-class pixel counts into areas.
type Aggregator struct {
	Masker    zones.Masker
	Range     *YearRange
	Names     zones.NameFields
	Classes   model.ClassLabels
	PixelArea float64
	Workers   int
}

// New returns an aggregator with the default center masker and name fields.
func New(pixelArea float64, classes model.ClassLabels) Aggregator {
	return Aggregator{
		PixelArea: pixelArea,
		Classes:   classes,
		Masker:    zones.CenterMasker{},
		Names:     zones.DefaultNameFields(),
	}
}

// Validate checks the aggregation preconditions before any pixel is counted.
func (a Aggregator) Validate() error {
	if !(a.PixelArea > 0) {
		return common.InvalidConfig("pixel area", fmt.Sprintf("must be positive, got %v", a.PixelArea))
	}
	if len(a.Classes) == 0 {
		return common.InvalidConfig("classes", "must name at least one tracked class")
	}
	seen := map[uint8]bool{}
	for _, c := range a.Classes {
		if seen[c.Code] {
			return common.InvalidConfig("classes", fmt.Sprintf("code %d listed twice", c.Code))
		}
		seen[c.Code] = true
	}
	if a.Range != nil {
		if err := a.Range.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (a Aggregator) workers() int {
	if a.Workers > 0 {
		return a.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// selectYears filters grids by range and groups them by year in ascending order.
func (a Aggregator) selectYears(grids []model.YearGrid) ([]int, map[int][]model.YearGrid) {
	byYear := make(map[int][]model.YearGrid)
	for _, g := range grids {
		if a.Range != nil && !a.Range.Includes(g) {
			continue
		}
		byYear[g.Year] = append(byYear[g.Year], g)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, byYear
}

// classCounts holds a pixel count for every possible 8-bit code.
type classCounts [256]int64

func (c *classCounts) add(o classCounts) {
	for i := range c {
		c[i] += o[i]
	}
}

// countAll counts every pixel of g except nodata.
func countAll(g model.YearGrid) classCounts {
	var counts classCounts
	for _, v := range g.Grid.Pix {
		counts[v]++
	}
	if g.NoData != nil {
		counts[*g.NoData] = 0
	}
	return counts
}

// countMasked counts the pixels of g at the given indices except nodata.
func countMasked(g model.YearGrid, idx []int) classCounts {
	var counts classCounts
	for _, i := range idx {
		counts[g.Grid.Pix[i]]++
	}
	if g.NoData != nil {
		counts[*g.NoData] = 0
	}
	return counts
}

// rows emits one row per tracked class with a non-zero count, in ascending code order.
func (a Aggregator) rows(year int, zoneType, zoneName string, counts classCounts) []model.ZoneStat {
	var out []model.ZoneStat
	for _, c := range a.Classes.Sorted() {
		n := counts[c.Code]
		if n == 0 {
			continue
		}
		out = append(out, model.ZoneStat{
			Year:       year,
			ZoneType:   zoneType,
			ZoneName:   zoneName,
			ClassCode:  c.Code,
			ClassLabel: c.Name,
			PixelCount: n,
			Area:       float64(n) * a.PixelArea,
		})
	}
	return out
}
