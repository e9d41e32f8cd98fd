package ui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/casesync/casesync/internal/tracker"
)

// WriteResult prints a pass summary.
func WriteResult(w io.Writer, r *tracker.SyncResult) {
	title := "Sync pass"
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(w, "%s  %s  %s\n", RenderCategory(title), RenderStatus(r.Status.String()), RenderMuted(r.Duration))
	fmt.Fprintln(w, RenderSeparator())

	st := r.Stats
	rows := []struct {
		key string
		n   int
	}{
		{"projects", st.Projects},
		{"projects skipped", st.ProjectsSkipped},
		{"cases created", st.Pushed},
		{"incidents created/updated", st.Pulled},
		{"comments added", st.Comments},
		{"milestones created", st.Milestones},
		{"releases created", st.Releases},
		{"records skipped", st.Skipped},
		{"records failed", st.Errors},
	}
	for _, row := range rows {
		value := strconv.Itoa(row.n)
		if row.n > 0 && (row.key == "records failed" || row.key == "projects skipped") {
			value = RenderWarn(value)
		}
		fmt.Fprintln(w, RenderKeyValue(row.key, value))
	}

	if r.Error != "" {
		fmt.Fprintf(w, "\n%s %s\n", RenderFail(IconFail), r.Error)
	}
	for _, msg := range r.Warnings {
		fmt.Fprintf(w, "%s %s\n", RenderWarn(IconWarn), msg)
	}
}
