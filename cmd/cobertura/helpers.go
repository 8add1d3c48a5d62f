package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/cobertura/internal/cli"
	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/config"
	"github.com/Veraticus/cobertura/internal/export"
	"github.com/Veraticus/cobertura/internal/metrics"
	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/pipeline"
	"github.com/Veraticus/cobertura/internal/sheets"
	"github.com/Veraticus/cobertura/internal/storage"
	"github.com/Veraticus/cobertura/internal/zonal"
	"github.com/Veraticus/cobertura/internal/zones"
)

// flagKeys maps command flags onto the configuration keys they override.
var flagKeys = map[string]string{
	"output":          "pipeline.output_dir",
	"start-year":      "pipeline.start_year",
	"workers":         "pipeline.workers",
	"pixel-area":      "pipeline.pixel_area",
	"metrics-file":    "pipeline.metrics_file",
	"preserve-nodata": "reclass.preserve_nodata",
	"from":            "stats.from",
	"to":              "stats.to",
}

// applyFlags copies explicitly set flags into viper so they win over the config file.
func applyFlags(cmd *cobra.Command) {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		viper.Set(key, f.Value.String())
	}
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "output directory (default: current directory)")
	cmd.Flags().Int("workers", 0, "parallel units (default: number of CPUs)")
}

func addStatsFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("pixel-area", 0, "area of one pixel in output units (default: derived from the geotransform in hectares)")
	cmd.Flags().Int("from", 0, "first year of the aggregation range")
	cmd.Flags().Int("to", 0, "last year of the aggregation range")
	cmd.Flags().Bool("sheets", false, "also export the results to Google Sheets")
	cmd.Flags().Int("top", 5, "zones listed per zone type in the ranking")
}

func loadSettings(cmd *cobra.Command) (config.PipelineSettings, error) {
	applyFlags(cmd)
	settings, err := config.LoadPipelineConfig(viper.GetViper())
	if err != nil {
		return settings, common.NewUserError("Invalid configuration", err)
	}
	if settings.OutputDir == "" {
		settings.OutputDir = "."
	}
	if err := os.MkdirAll(settings.OutputDir, 0o750); err != nil {
		return settings, common.NewUserError("Cannot create output directory", fmt.Errorf("%w: %v", common.ErrAccess, err))
	}
	return settings, nil
}

// initStorage opens and migrates the run database.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(dbPathFromConfig())
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func dbPathFromConfig() string {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DefaultPath("cobertura.db")
	}
	return config.ExpandPath(dbPath)
}

func closeStorage(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Error("failed to close storage", "error", err)
	}
}

// zoneSetup holds the readable zone layers and the failures of the unreadable ones.
type zoneSetup struct {
	names    zones.NameFields
	layers   []zones.Layer
	failures []pipeline.Failure
}

// loadLayers reads the configured zone layers. Unreadable layers are left out and
// returned as failures; the run continues with the rest.
func loadLayers() (zoneSetup, error) {
	zs, err := config.LoadZonesConfig(viper.GetViper())
	if err != nil {
		return zoneSetup{}, common.NewUserError("Invalid zones configuration", err)
	}
	layers, failures := zs.LoadLayers("")
	for _, f := range failures {
		fmt.Fprintln(os.Stderr, cli.FormatWarning("Zone layer could not be read: "+f.String()))
	}
	return zoneSetup{names: zs.Names, layers: layers, failures: failures}, nil
}

// tables holds the aggregation outputs written as CSV and exported to Sheets.
type tables struct {
	reduced *model.TimeSeries
	name    string
	series  model.TimeSeries
	zonal   []model.ZoneStat
}

func writeTables(dir string, t tables) error {
	path, err := export.WriteSeriesFile(dir, model.KindTransition, t.series)
	if err != nil {
		return fmt.Errorf("failed to write time series: %w", err)
	}
	slog.Info("Wrote time series", "path", path)

	if len(t.zonal) > 0 {
		path, err = export.WriteZonalFile(dir, model.KindTransition, t.zonal)
		if err != nil {
			return fmt.Errorf("failed to write zonal table: %w", err)
		}
		slog.Info("Wrote zonal table", "path", path)
	}

	if t.reduced != nil {
		path, err = export.WriteSeriesFile(dir, model.KindReduced, *t.reduced)
		if err != nil {
			return fmt.Errorf("failed to write reduced-class series: %w", err)
		}
		slog.Info("Wrote reduced-class series", "path", path)
	}
	return nil
}

func exportSheets(ctx context.Context, t tables) error {
	sheetsConfig, err := config.LoadSheetsConfig(viper.GetViper())
	if err != nil {
		return common.NewUserError("Google Sheets is not configured", err)
	}

	writer, err := sheets.NewWriter(ctx, *sheetsConfig, slog.Default())
	if err != nil {
		return err
	}
	return writer.Write(ctx, sheetsReport(t))
}

func sheetsReport(t tables) sheets.Report {
	report := sheets.Report{
		Title:  t.name,
		Series: []sheets.NamedSeries{{Title: "Transitions", Series: t.series}},
		Zonal:  t.zonal,
	}
	if t.reduced != nil {
		report.Series = append(report.Series, sheets.NamedSeries{Title: "Land cover", Series: *t.reduced})
	}
	return report
}

func writeMetrics(m *metrics.Metrics, path string) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		common.LogError(err, "Failed to write metrics", common.Fields{"path": path})
		return
	}
	common.LogInfo("Wrote metrics", common.Fields{"path": path})
}

// printTables writes the series and the top zones per type and class to stdout.
func printTables(t tables, classes model.ClassLabels, top int) error {
	fmt.Println(cli.FormatTitle("Transition areas"))
	fmt.Print(cli.RenderSeries(t.series))

	if t.reduced != nil {
		fmt.Println()
		fmt.Println(cli.FormatTitle("Land cover areas"))
		fmt.Print(cli.RenderSeries(*t.reduced))
	}

	if len(t.zonal) == 0 || top <= 0 {
		return nil
	}

	fmt.Println()
	fmt.Println(cli.FormatTitle("Top zones"))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "ZONE TYPE\tCLASS\tZONE\tYEAR\tAREA"); err != nil {
		return err
	}
	for _, zoneType := range zoneTypes(t.zonal) {
		for _, c := range classes {
			for _, st := range zonal.TopZones(t.zonal, zoneType, c.Code, top) {
				if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\n",
					st.ZoneType, st.ClassLabel, st.ZoneName, st.Year, st.Area); err != nil {
					return err
				}
			}
		}
	}
	return w.Flush()
}

func zoneTypes(rows []model.ZoneStat) []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range rows {
		if !seen[r.ZoneType] {
			seen[r.ZoneType] = true
			out = append(out, r.ZoneType)
		}
	}
	return out
}
