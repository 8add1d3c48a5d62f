package main

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Veraticus/cobertura/internal/cli"
	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/metrics"
	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/pipeline"
	"github.com/Veraticus/cobertura/internal/raster"
	"github.com/Veraticus/cobertura/internal/storage"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate transition areas globally and per zone",
		Long: `Sum the area of every transition class per year over the whole raster and
inside every zone of the configured layers.

Transitions are read either from a directory written by the transitions command
(--transitions) or from a stored run (--run). Results are written as
summary_transition.csv and zonal_transition.csv in the output directory.`,
		Args: cobra.NoArgs,
		RunE: runStats,
	}

	addOutputFlags(cmd)
	addStatsFlags(cmd)
	cmd.Flags().String("transitions", "", "directory holding transition_*.tif files")
	cmd.Flags().String("stack", "", "stack manifest providing the georeference when the directory has no transitions.yaml")
	cmd.Flags().String("run", "", "ID of a stored run")
	cmd.MarkFlagsMutuallyExclusive("transitions", "run")
	cmd.MarkFlagsOneRequired("transitions", "run")

	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	transitionsDir, _ := cmd.Flags().GetString("transitions")
	runID, _ := cmd.Flags().GetString("run")
	stackPath, _ := cmd.Flags().GetString("stack")
	toSheets, _ := cmd.Flags().GetBool("sheets")
	top, _ := cmd.Flags().GetInt("top")

	var (
		grids   []model.YearGrid
		classes *model.ClassStack
		store   *storage.SQLiteStorage
		name    string
	)

	if runID != "" {
		store, err = initStorage(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer closeStorage(store)

		run, err := store.GetRun(ctx, runID)
		if err != nil {
			return common.NewUserError(fmt.Sprintf("Run %s not found", runID), err)
		}
		reg, err := store.LoadTransitions(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to load transitions: %w", err)
		}
		grids = reg.YearGrids()
		name = run.StackName

		cs, err := store.LoadClassStack(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to load class bands: %w", err)
		}
		if len(cs.Bands) > 0 {
			classes = &cs
		}
	} else {
		var fallback model.Georef
		if stackPath != "" {
			m, err := raster.ReadManifest(stackPath)
			if err != nil {
				return common.NewUserError("Cannot read stack manifest", err)
			}
			fallback = m.Georef()
		}
		tgs, err := raster.ReadTransitions(transitionsDir, fallback)
		if err != nil {
			return common.NewUserError("Cannot read transitions", err)
		}
		for _, g := range tgs {
			grids = append(grids, g.YearGrid())
		}
		name = transitionsDir
	}

	if len(grids) == 0 {
		fmt.Println(cli.FormatWarning("No transitions to aggregate"))
		return nil
	}

	pixelArea, err := settings.ResolvePixelArea(grids[0].Georef)
	if err != nil {
		return common.NewUserError("Cannot determine pixel area", err)
	}

	zs, err := loadLayers()
	if err != nil {
		return err
	}

	m := metrics.New()
	agg := settings.Aggregator(pixelArea, settings.TransitionLabels)
	agg.Names = zs.names

	report := &pipeline.Report{Failed: zs.failures}
	res, err := pipeline.Aggregate(ctx, agg, grids, zs.layers, m, report)
	if err != nil {
		return common.NewUserError("Aggregation failed", err)
	}

	out := tables{name: name, series: res.Global.Series, zonal: res.Zonal.Rows}
	if classes != nil {
		reduced, err := settings.Aggregator(pixelArea, settings.ReducedLabels).Global(classes.YearGrids())
		if err != nil {
			slog.Warn("Failed to aggregate land cover", "error", err)
		} else {
			out.reduced = &reduced.Series
		}
	}

	if store != nil {
		if err := store.SaveZoneStats(ctx, runID, model.KindTransition, slices.Concat(res.Global.Rows, res.Zonal.Rows)); err != nil {
			return fmt.Errorf("failed to save zone stats: %w", err)
		}
	}

	if err := writeTables(settings.OutputDir, out); err != nil {
		return err
	}
	writeMetrics(m, settings.MetricsFile)

	if err := printTables(out, settings.TransitionLabels, top); err != nil {
		return err
	}
	for _, f := range slices.Concat(report.Skipped, report.Failed) {
		fmt.Println(cli.FormatWarning(f.String()))
	}

	if toSheets {
		if err := exportSheets(ctx, out); err != nil {
			return fmt.Errorf("failed to export to Google Sheets: %w", err)
		}
		fmt.Println(cli.FormatSuccess("Exported to Google Sheets"))
	}
	return nil
}
