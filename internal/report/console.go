package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	bestValue   = color.New(color.FgGreen, color.Bold).SprintFunc()
	skippedPath = color.New(color.FgRed).SprintFunc()
)

// WriteConsole prints a fixed-width table of every entry, highlighting the
// best value of each metric.
func WriteConsole(w io.Writer, r Report) {
	metrics := r.MetricNames()
	if len(r.Entries) == 0 {
		fmt.Fprintf(w, "No records found under %s\n", r.Root)
	} else {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Merge results under %s", r.Root)))

		header := []string{"DATASET", "METHOD", "SPLIT", "TIME(s)"}
		for _, m := range metrics {
			header = append(header, strings.ToUpper(m))
		}
		fmt.Fprintf(w, "%-10s %-10s %-12s %10s", header[0], header[1], header[2], header[3])
		for _, h := range header[4:] {
			fmt.Fprintf(w, " %12s", h)
		}
		fmt.Fprintln(w)

		best := make(map[string]string, len(metrics))
		for _, m := range metrics {
			if e, ok := r.Best(m); ok {
				best[m] = e.Path
			}
		}

		for _, e := range r.Entries {
			rec := e.Record
			fmt.Fprintf(w, "%-10s %-10s %-12s %10.2f", rec.Dataset, rec.Method, rec.Split, rec.Time)
			for _, m := range metrics {
				v, ok := rec.Metrics[m]
				cell := fmt.Sprintf("%12s", "-")
				if ok {
					cell = fmt.Sprintf("%12.4f", v)
					if best[m] == e.Path && len(r.Entries) > 1 {
						cell = bestValue(cell)
					}
				}
				fmt.Fprint(w, " "+cell)
			}
			fmt.Fprintln(w)
		}
	}

	for _, s := range r.Skipped {
		fmt.Fprintf(w, "skipped %s: %s\n", skippedPath(s.Path), s.Reason)
	}
}
