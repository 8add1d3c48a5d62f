package sheets

import (
	"context"

	"github.com/Veraticus/cobertura/internal/model"
)

// Tab titles.
const (
	SeriesTab = "Time Series"
	ZonalTab  = "Zonal"
)

// ReportWriter publishes a report.
type ReportWriter interface {
	Write(ctx context.Context, report Report) error
}

// NamedSeries is a time series with a section title.
type NamedSeries struct {
	Title  string
	Series model.TimeSeries
}

// Report is the content exported to a spreadsheet.
type Report struct {
	Title  string
	Series []NamedSeries
	Zonal  []model.ZoneStat
}

// seriesValues lays out every series one under the other, separated by an empty row.
func seriesValues(r Report) [][]any {
	values := [][]any{{r.Title}, {}}
	for i, ns := range r.Series {
		if i > 0 {
			values = append(values, []any{})
		}
		values = append(values, []any{ns.Title})

		header := []any{"Year"}
		for _, c := range ns.Series.Classes {
			header = append(header, c.Name)
		}
		header = append(header, "Total")
		values = append(values, header)

		for _, row := range ns.Series.Rows {
			line := []any{row.Year}
			total := 0.0
			for _, a := range row.Areas {
				line = append(line, a)
				total += a
			}
			line = append(line, total)
			values = append(values, line)
		}
	}
	return values
}

// zonalValues lays out the zonal statistics as a long table.
func zonalValues(stats []model.ZoneStat) [][]any {
	values := make([][]any, 0, len(stats)+1)
	values = append(values, []any{"Year", "Zone Type", "Zone", "Class", "Pixels", "Area"})
	for _, st := range stats {
		values = append(values, []any{st.Year, st.ZoneType, st.ZoneName, st.ClassLabel, st.PixelCount, st.Area})
	}
	return values
}
