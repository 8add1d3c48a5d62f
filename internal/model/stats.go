package model

import "sort"

// ClassLabel names one tracked class code.
type ClassLabel struct {
	Name string
	Code uint8
}

// ClassLabels is the ordered vocabulary used for column and row naming.
type ClassLabels []ClassLabel

// DefaultTransitionLabels returns the tracked transition classes.
func DefaultTransitionLabels() ClassLabels {
	return ClassLabels{
		{Code: uint8(Deforestation), Name: "Deforestation"},
		{Code: uint8(Regeneration), Name: "Regeneration"},
		{Code: uint8(Degradation), Name: "Degradation"},
	}
}

// DefaultReducedLabels returns the tracked reduced land-cover classes.
func DefaultReducedLabels() ClassLabels {
	return ClassLabels{
		{Code: 1, Name: "Forest"},
		{Code: 2, Name: "Natural non-forest"},
		{Code: 3, Name: "Anthropic use"},
	}
}

// Sorted returns a copy ordered by ascending class code.
func (l ClassLabels) Sorted() ClassLabels {
	out := make(ClassLabels, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Name returns the label for code, or the empty string if the code is not tracked.
func (l ClassLabels) Name(code uint8) string {
	for _, c := range l {
		if c.Code == code {
			return c.Name
		}
	}
	return ""
}

// ZoneStat is one aggregated area value for a (year, zone, class) combination.
// Global rows leave ZoneType and ZoneName empty.
type ZoneStat struct {
	ZoneType   string
	ZoneName   string
	ClassLabel string
	Area       float64
	PixelCount int64
	Year       int
	ClassCode  uint8
}

// SeriesRow holds the area of every tracked class for one year.
type SeriesRow struct {
	Areas []float64
	Year  int
}

// TimeSeries is a dense year-by-class area table.
type TimeSeries struct {
	Classes ClassLabels
	Rows    []SeriesRow
}

// Total returns the summed area across all classes of the row for year.
func (ts TimeSeries) Total(year int) float64 {
	for _, row := range ts.Rows {
		if row.Year != year {
			continue
		}
		var sum float64
		for _, a := range row.Areas {
			sum += a
		}
		return sum
	}
	return 0
}
