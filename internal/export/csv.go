// Package export writes aggregation results as CSV tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Veraticus/cobertura/internal/model"
)

// SummaryFileName returns the dense time series file name for kind.
func SummaryFileName(kind string) string {
	return "summary_" + kind + ".csv"
}

// ZonalFileName returns the zonal long table file name for kind.
func ZonalFileName(kind string) string {
	return "zonal_" + kind + ".csv"
}

// WriteSeries writes ts with a year column followed by one column per class.
func WriteSeries(w io.Writer, ts model.TimeSeries) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(ts.Classes)+1)
	header = append(header, "year")
	for _, c := range ts.Classes {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range ts.Rows {
		if len(row.Areas) != len(ts.Classes) {
			return fmt.Errorf("year %d has %d areas for %d classes", row.Year, len(row.Areas), len(ts.Classes))
		}
		record := make([]string, 0, len(row.Areas)+1)
		record = append(record, strconv.Itoa(row.Year))
		for _, a := range row.Areas {
			record = append(record, formatArea(a))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteZonal writes one row per zone statistic: year, zone_type, zone_name, class, area.
func WriteZonal(w io.Writer, stats []model.ZoneStat) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"year", "zone_type", "zone_name", "class", "area"}); err != nil {
		return err
	}
	for _, st := range stats {
		if err := cw.Write([]string{
			strconv.Itoa(st.Year),
			st.ZoneType,
			st.ZoneName,
			st.ClassLabel,
			formatArea(st.Area),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSeriesFile writes the dense series for kind into dir and returns its path.
func WriteSeriesFile(dir, kind string, ts model.TimeSeries) (string, error) {
	return writeFile(filepath.Join(dir, SummaryFileName(kind)), func(w io.Writer) error {
		return WriteSeries(w, ts)
	})
}

// WriteZonalFile writes the zonal table for kind into dir and returns its path.
func WriteZonalFile(dir, kind string, stats []model.ZoneStat) (string, error) {
	return writeFile(filepath.Join(dir, ZonalFileName(kind)), func(w io.Writer) error {
		return WriteZonal(w, stats)
	})
}

func writeFile(path string, write func(io.Writer) error) (_ string, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if err := write(f); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func formatArea(a float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64)
}
