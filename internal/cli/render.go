package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bizmatters/cad-copilot/internal/models"
)

// RenderGeneration prints a generation result for a terminal
func RenderGeneration(w io.Writer, r models.GenerationResult) {
	if r.Error != nil {
		fmt.Fprintf(w, "Error: %s\n", *r.Error)
		return
	}
	fmt.Fprintf(w, "%s [%s]\n", r.Title, r.ParseMode)
	if len(r.Plan) > 0 {
		fmt.Fprintln(w, "\nPlan:")
		for i, step := range r.Plan {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step)
		}
	}
	if r.Code != "" {
		fmt.Fprintln(w, "\nCode:")
		fmt.Fprintln(w, strings.TrimRight(r.Code, "\n"))
	}
	if r.Notes != "" {
		fmt.Fprintf(w, "\nNotes: %s\n", r.Notes)
	}
}

// RenderOutcome prints an execution outcome for a terminal
func RenderOutcome(w io.Writer, o models.ExecutionOutcome) {
	status := "succeeded"
	if !o.Result.Success {
		status = "failed"
	}
	fmt.Fprintf(w, "Execution %s after %d attempt(s) in %s\n", status, o.Attempts, o.Result.ExecutionTime.Round(time.Millisecond))
	if o.Result.Output != "" {
		fmt.Fprintf(w, "\nOutput:\n%s", o.Result.Output)
		if !strings.HasSuffix(o.Result.Output, "\n") {
			fmt.Fprintln(w)
		}
	}
	if o.Result.Error != nil {
		fmt.Fprintf(w, "\nError: %s\n", *o.Result.Error)
	}
	if d := o.Diagnosis; d != nil {
		fmt.Fprintf(w, "\nDiagnosis: %s\n  %s\n", d.Category, d.Summary)
		for _, fix := range d.LikelyFixes {
			fmt.Fprintf(w, "  - %s\n", fix)
		}
	}
}

// RenderRuns prints one line per run, newest first
func RenderRuns(w io.Writer, runs []models.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		label := r.Title
		if r.Kind == models.RunKindExecution {
			label = fmt.Sprintf("%d attempt(s)", r.Attempts)
			if r.Category != nil {
				label += ", " + *r.Category
			}
		}
		fmt.Fprintf(w, "%s  %-10s %-6s %s\n", r.CreatedAt.Format(time.RFC3339), r.Kind, status, label)
	}
}
