package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rewired-gh/polyscribe/internal/models"
)

// printSummary writes the stage results and artifact sizes of a run.
func printSummary(w io.Writer, r *models.Report) {
	fmt.Fprintf(w, "\nPipeline run %s\n\n", r.RunID)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range r.Stages {
		mark := "OK"
		note := s.Detail
		if !s.Success {
			mark = "FAILED"
			note = s.Error
		}
		fmt.Fprintf(tw, "  stage %d\t%s\t%s\t%s\t%s\n", s.Stage, s.Name, mark, s.Duration.Round(time.Millisecond), note)
	}
	tw.Flush()

	if len(r.Artifacts) > 0 {
		fmt.Fprintln(w, "\nGenerated files:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		var total int64
		for _, a := range r.Artifacts {
			total += a.Bytes
			fmt.Fprintf(tw, "  %s\t%s\n", a.Name, humanize.Bytes(uint64(a.Bytes)))
		}
		tw.Flush()
		fmt.Fprintf(w, "  total: %s in %d files\n", humanize.Bytes(uint64(total)), len(r.Artifacts))
	}

	if r.PreviousDate != "" {
		fmt.Fprintf(w, "\nOdds changes since %s: %d\n", r.PreviousDate, len(r.Changes))
	}

	status := "completed"
	if !r.Succeeded() {
		status = "completed with failures"
	}
	fmt.Fprintf(w, "\nPipeline %s in %s\n", status, r.Duration.Round(time.Millisecond))
}
