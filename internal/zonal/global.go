package zonal

import (
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/cobertura/internal/model"
)

// GlobalResult holds whole-raster aggregation output.
type GlobalResult struct {
	Rows   []model.ZoneStat
	Series model.TimeSeries
}

// Global aggregates every grid over its full extent.
// Rows list observed classes only; Series has a row for every selected year and
// a column for every tracked class, zero-filled.
func (a Aggregator) Global(grids []model.YearGrid) (GlobalResult, error) {
	if err := a.Validate(); err != nil {
		return GlobalResult{}, err
	}

	years, byYear := a.selectYears(grids)
	classes := a.Classes.Sorted()

	perYear := make([]classCounts, len(years))

	var g errgroup.Group
	g.SetLimit(a.workers())
	for i, year := range years {
		g.Go(func() error {
			for _, grid := range byYear[year] {
				perYear[i].add(countAll(grid))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GlobalResult{}, err
	}

	result := GlobalResult{Series: model.TimeSeries{Classes: classes}}
	for i, year := range years {
		result.Rows = append(result.Rows, a.rows(year, "", "", perYear[i])...)

		row := model.SeriesRow{Year: year, Areas: make([]float64, len(classes))}
		for j, c := range classes {
			row.Areas[j] = float64(perYear[i][c.Code]) * a.PixelArea
		}
		result.Series.Rows = append(result.Series.Rows, row)
	}

	slog.Debug("Global aggregation complete",
		"years", len(years),
		"rows", len(result.Rows))

	return result, nil
}
