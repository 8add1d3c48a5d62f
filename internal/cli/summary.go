package cli

import (
	"fmt"
	"strings"

	"github.com/Veraticus/cobertura/internal/model"
	"github.com/Veraticus/cobertura/internal/pipeline"
)

// maxListedFailures bounds the failures printed in a summary.
const maxListedFailures = 10

// RenderRunSummary renders the outcome of a pipeline run as a box.
func RenderRunSummary(runID string, result *pipeline.Result) string {
	var b strings.Builder

	if runID != "" {
		fmt.Fprintf(&b, "Run: %s\n", runID)
	}
	fmt.Fprintf(&b, "%s Bands reclassified: %d\n", ChartIcon, len(result.Classes.Bands))
	if result.Transitions != nil {
		fmt.Fprintf(&b, "%s Transition intervals: %d\n", ChartIcon, result.Transitions.Len())
	}
	fmt.Fprintf(&b, "%s Zonal rows: %d\n", ChartIcon, len(result.Zonal.Rows))

	if result.Report != nil && result.Report.Partial() {
		b.WriteString("\n")
		b.WriteString(FormatWarning(fmt.Sprintf("%d failed, %d skipped", len(result.Report.Failed), len(result.Report.Skipped))))
		for i, f := range append(append([]pipeline.Failure{}, result.Report.Failed...), result.Report.Skipped...) {
			if i == maxListedFailures {
				b.WriteString("\n" + StyleSubtle("..."))
				break
			}
			b.WriteString("\n  • " + f.String())
		}
	} else {
		b.WriteString("\n")
		b.WriteString(FormatSuccess("All units completed"))
	}

	title := "Run Complete"
	if result.Report != nil && result.Report.Partial() {
		title = "Run Completed With Failures"
	}
	return RenderBox(title, b.String())
}

// RenderSeries renders a time series as aligned text rows.
func RenderSeries(ts model.TimeSeries) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%-6s", "Year"))
	for _, c := range ts.Classes {
		b.WriteString(fmt.Sprintf(" %18s", c.Name))
	}
	b.WriteString("\n")

	for _, row := range ts.Rows {
		b.WriteString(fmt.Sprintf("%-6d", row.Year))
		for _, a := range row.Areas {
			b.WriteString(fmt.Sprintf(" %18.2f", a))
		}
		b.WriteString("\n")
	}
	return b.String()
}
