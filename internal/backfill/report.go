package backfill

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"example.com/training/internal/scoring"
)

// Report is the outcome of one Run.
type Report struct {
	Found     int
	Updated   int
	Errors    int
	Skipped   int
	DryRun    bool
	FailedIDs []string
	Duration  time.Duration
	Summary   []scoring.CategoryTotal
}

// Print writes the operator summary.
func (r Report) Print(w io.Writer) error {
	mode := "apply"
	if r.DryRun {
		mode = "dry-run"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Workout points backfill (%s)\n", mode)
	fmt.Fprintf(tw, "found:\t%d\n", r.Found)
	fmt.Fprintf(tw, "updated:\t%d\n", r.Updated)
	fmt.Fprintf(tw, "errors:\t%d\n", r.Errors)
	if r.Skipped > 0 {
		fmt.Fprintf(tw, "skipped:\t%d\n", r.Skipped)
	}
	fmt.Fprintf(tw, "duration:\t%s\n", r.Duration.Round(time.Millisecond))
	if len(r.FailedIDs) > 0 {
		fmt.Fprintf(tw, "failed ids:\t%s\n", strings.Join(r.FailedIDs, ", "))
	}

	if len(r.Summary) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "category\tworkouts\tpoints")
		for _, total := range r.Summary {
			fmt.Fprintf(tw, "%s\t%d\t%g\n", total.Category, total.Count, total.Points)
		}
	}
	return tw.Flush()
}
