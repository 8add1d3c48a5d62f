package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Veraticus/cobertura/internal/cli"
	"github.com/Veraticus/cobertura/internal/common"
	"github.com/Veraticus/cobertura/internal/model"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded pipeline runs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  runRunsList,
	}
	list.Flags().Int("limit", 20, "maximum number of runs to list (0 for all)")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its failed and skipped units",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsShow,
	}

	cmd.AddCommand(list, show)
	return cmd
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println(cli.InfoStyle.Render("No runs recorded yet. Use 'cobertura run' to start one."))
		return nil
	}

	fmt.Println(cli.FormatTitle("Runs"))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil {
			slog.Error("failed to flush table writer", "error", flushErr)
		}
	}()

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("ID"),
		headerStyle.Render("Stack"),
		headerStyle.Render("Years"),
		headerStyle.Render("Intervals"),
		headerStyle.Render("Status"),
		headerStyle.Render("Started")); err != nil {
		return err
	}

	for _, r := range runs {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(r.ID),
			r.StackName,
			yearSpan(r),
			r.Intervals,
			statusText(r.Status),
			r.StartedAt.Local().Format(time.DateTime)); err != nil {
			return err
		}
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return common.NewUserError(fmt.Sprintf("Run %s not found", args[0]), err)
	}
	failures, err := store.ListFailures(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to list failures: %w", err)
	}

	details := fmt.Sprintf("Stack: %s\nManifest: %s\nYears: %s\nIntervals: %d\nPixel area: %g\nStatus: %s\nStarted: %s",
		run.StackName, run.Manifest, yearSpan(*run), run.Intervals, run.PixelArea,
		statusText(run.Status), run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		details += "\nDuration: " + run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
	}
	fmt.Println(cli.RenderBox("Run "+run.ID, details))

	for _, f := range failures {
		line := fmt.Sprintf("%s %s: %s", f.Stage, f.Unit, f.Message)
		if f.Skipped {
			fmt.Println(cli.StyleSubtle("skipped " + line))
		} else {
			fmt.Println(cli.FormatError(line))
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func yearSpan(r model.Run) string {
	if r.Bands == 0 {
		return "-"
	}
	return fmt.Sprintf("%d-%d", r.StartYear, r.StartYear+r.Bands-1)
}

func statusText(s model.RunStatus) string {
	switch s {
	case model.RunCompleted:
		return cli.SuccessStyle.Render(string(s))
	case model.RunPartial:
		return cli.WarningStyle.Render(string(s))
	case model.RunFailed:
		return cli.ErrorStyle.Render(string(s))
	default:
		return string(s)
	}
}
