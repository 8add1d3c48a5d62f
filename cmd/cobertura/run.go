package main

import (
	"context"
	"fmt"
	"os"
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

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <stack.yaml>",
		Short: "Run the full pipeline over a stack",
		Long: `Reclassify a stack, code its transitions and aggregate them globally and per
zone in one pass.

Rasters are written to the output directory and, unless --no-store is given, to
the run database so that later stats calls can use --run. Units that fail are
listed at the end; the rest of the run still completes.`,
		Args: cobra.ExactArgs(1),
		RunE: runPipeline,
	}

	addOutputFlags(cmd)
	addStatsFlags(cmd)
	cmd.Flags().Int("start-year", 0, "year of the first band (default: from the manifest)")
	cmd.Flags().Bool("preserve-nodata", false, "keep nodata pixels as the nodata value instead of mapping them to 0")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics in text format to this file")
	cmd.Flags().Bool("no-store", false, "do not record the run in the database")
	cmd.Flags().Bool("no-progress", false, "disable progress bars")

	return cmd
}

func runPipeline(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	noStore, _ := cmd.Flags().GetBool("no-store")
	noProgress, _ := cmd.Flags().GetBool("no-progress")
	toSheets, _ := cmd.Flags().GetBool("sheets")
	top, _ := cmd.Flags().GetInt("top")

	stack, err := loadStack(args[0], settings.StartYear)
	if err != nil {
		return err
	}

	cfg, err := settings.Config(stack.Georef)
	if err != nil {
		return common.NewUserError("Invalid configuration", err)
	}
	zs, err := loadLayers()
	if err != nil {
		return err
	}
	cfg.Layers = zs.layers
	cfg.LayerFailures = zs.failures
	cfg.Transitions.Names = zs.names

	handler := cli.NewInterruptHandler(os.Stderr)
	ctx := handler.HandleInterrupts(cmd.Context(), settings.OutputDir)

	sinks := []pipeline.Sink{pipeline.TIFFSink{Dir: raster.Dir{Path: settings.OutputDir}}}

	var (
		store *storage.SQLiteStorage
		run   *model.Run
	)
	if !noStore {
		store, err = initStorage(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer closeStorage(store)

		run = &model.Run{
			StackName: stack.Name,
			Manifest:  args[0],
			StartYear: stack.StartYear,
			Bands:     len(stack.Bands),
			PixelArea: cfg.Transitions.PixelArea,
			Georef:    stack.Georef,
			NoData:    runNoData(stack.NoData),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		sinks = append(sinks, pipeline.StoreSink{Store: store, RunID: run.ID})
	}

	var progress pipeline.Progress
	if !noProgress {
		progress = cli.NewProgressBars(os.Stderr)
	}

	m := metrics.New()
	fmt.Println(cli.FormatTitle(fmt.Sprintf("Processing %s (%d bands from %d)", stack.Name, len(stack.Bands), stack.StartYear)))

	result, err := pipeline.New(cfg, sinks, m, progress).Run(ctx, stack)
	if err != nil {
		if store != nil {
			finishRun(ctx, store, run.ID, model.RunFailed)
		}
		if handler.WasInterrupted() {
			return common.NewUserError("Run interrupted", err)
		}
		return err
	}

	out := tables{name: stack.Name, series: result.Global.Series, zonal: result.Zonal.Rows}
	if result.Reduced != nil {
		out.reduced = &result.Reduced.Series
	}

	runID := ""
	if store != nil {
		runID = run.ID
		if err := persistResult(ctx, store, run.ID, result); err != nil {
			finishRun(ctx, store, run.ID, model.RunFailed)
			return err
		}
		status := model.RunCompleted
		if result.Report.Partial() {
			status = model.RunPartial
		}
		finishRun(ctx, store, run.ID, status)
	}

	if err := writeTables(settings.OutputDir, out); err != nil {
		return err
	}
	writeMetrics(m, settings.MetricsFile)

	if err := printTables(out, settings.TransitionLabels, top); err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(cli.RenderRunSummary(runID, result))

	if toSheets {
		if err := exportSheets(ctx, out); err != nil {
			return fmt.Errorf("failed to export to Google Sheets: %w", err)
		}
		fmt.Println(cli.FormatSuccess("Exported to Google Sheets"))
	}
	return nil
}

func persistResult(ctx context.Context, store *storage.SQLiteStorage, runID string, result *pipeline.Result) error {
	if err := store.SaveZoneStats(ctx, runID, model.KindTransition, slices.Concat(result.Global.Rows, result.Zonal.Rows)); err != nil {
		return fmt.Errorf("failed to save zone stats: %w", err)
	}
	if result.Reduced != nil {
		if err := store.SaveZoneStats(ctx, runID, model.KindReduced, result.Reduced.Rows); err != nil {
			return fmt.Errorf("failed to save land cover stats: %w", err)
		}
	}
	if err := store.RecordFailures(ctx, runID, result.Report.RunFailures()); err != nil {
		return fmt.Errorf("failed to record failures: %w", err)
	}
	return nil
}

// finishRun records the final status even when ctx was canceled.
func finishRun(ctx context.Context, store *storage.SQLiteStorage, runID string, status model.RunStatus) {
	if err := store.FinishRun(context.WithoutCancel(ctx), runID, status); err != nil {
		common.LogError(err, "failed to finish run", common.Fields{"run": runID, "status": status})
	}
}

// runNoData narrows the stack nodata for the run record; values above 255 cannot
// survive reclassification and are dropped.
func runNoData(nd *uint16) *uint8 {
	if nd == nil || *nd > 255 {
		return nil
	}
	v := uint8(*nd)
	return &v
}
