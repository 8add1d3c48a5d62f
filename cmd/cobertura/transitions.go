package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/cobertura/internal/cli"
	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/raster"
	"github.com/Veraticus/cobertura/internal/transition"
)

func transitionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transitions <stack_reclass.yaml>",
		Short: "Code the change between consecutive years of a reclassified stack",
		Long: `Compare every pair of consecutive reclassified years pixel by pixel:

  0  no change
  1  forest to anthropic use (deforestation)
  2  anthropic use to forest (regeneration)
  3  forest to natural non-forest (degradation)
  4  any other change

Writes transition_{from}_{to}.tif per interval and a transitions.yaml manifest.`,
		Args: cobra.ExactArgs(1),
		RunE: runTransitions,
	}

	addOutputFlags(cmd)

	return cmd
}

func runTransitions(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	if err := raster.CheckAccess(args[0]); err != nil {
		return common.NewUserError("Cannot read reclassified stack", err)
	}
	cs, err := raster.LoadClassStack(args[0])
	if err != nil {
		return common.NewUserError("Cannot load reclassified stack", err)
	}

	reg, err := transition.Compute(cs, transition.Options{Workers: settings.Workers})
	if err != nil {
		return common.NewUserError("Transition coding failed", err)
	}
	if reg.Len() == 0 {
		fmt.Println(cli.FormatWarning("The stack has a single band; no transitions to code"))
	}

	dir := raster.Dir{Path: settings.OutputDir}
	grids := reg.Grids()
	for _, g := range grids {
		path, err := dir.WriteTransition(g)
		if err != nil {
			return fmt.Errorf("failed to write transition %s: %w", g.Label, err)
		}
		slog.Debug("Wrote transition", "label", g.Label, "path", path)
	}
	manifest, err := dir.WriteTransitionManifest(grids)
	if err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Coded %d intervals into %s", len(grids), manifest)))
	return nil
}
