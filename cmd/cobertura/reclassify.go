package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/cobertura/internal/cli"
	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/raster"
	"github.com/Veraticus/cobertura/internal/reclass"
)

func reclassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reclassify <stack.yaml>",
		Short: "Reclassify a land-cover stack into reduced classes",
		Long: `Map every raw land-cover code of a stack to forest (1), natural non-forest (2)
or anthropic use (3); codes absent from the table become 0.

Writes one {name}_reclass_{year}.tif per band and a {name}_reclass.yaml manifest
that the transitions command reads.`,
		Args: cobra.ExactArgs(1),
		RunE: runReclassify,
	}

	addOutputFlags(cmd)
	cmd.Flags().Int("start-year", 0, "year of the first band (default: from the manifest)")
	cmd.Flags().Bool("preserve-nodata", false, "keep nodata pixels as the nodata value instead of mapping them to 0")

	return cmd
}

func runReclassify(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	stack, err := loadStack(args[0], settings.StartYear)
	if err != nil {
		return err
	}

	cs, err := reclass.Apply(stack, settings.Table, reclass.Options{
		PreserveNoData: settings.PreserveNoData,
		Workers:        settings.Workers,
	})
	if err != nil {
		return common.NewUserError("Reclassification failed", err)
	}

	dir := raster.Dir{Path: settings.OutputDir}
	for i := range cs.Bands {
		path, err := dir.WriteReclassBand(cs, i)
		if err != nil {
			return fmt.Errorf("failed to write band %d: %w", cs.Year(i), err)
		}
		common.LogDebug("Wrote reclassified band", common.Fields{"path": path, "year": cs.Year(i)})
	}
	manifest, err := dir.WriteReclassManifest(cs)
	if err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Reclassified %d bands (%d-%d) into %s",
		len(cs.Bands), cs.StartYear, cs.Year(len(cs.Bands)-1), manifest)))
	return nil
}

// loadStack checks that the manifest is readable and loads it, applying a start year override.
func loadStack(path string, startYear int) (stack model.Stack, err error) {
	if err := raster.CheckAccess(path); err != nil {
		return stack, common.NewUserError("Cannot read stack manifest", err)
	}
	stack, err = raster.LoadStack(path)
	if err != nil {
		return stack, common.NewUserError("Cannot load stack", err)
	}
	if startYear != 0 {
		stack.StartYear = startYear
	}
	return stack, nil
}
