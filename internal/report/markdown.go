package report

import (
	"fmt"
	"os"
	"strings"
)

// BuildMarkdown renders the report as a Markdown document.
func BuildMarkdown(r Report) string {
	metrics := r.MetricNames()

	var b strings.Builder
	b.WriteString("# Merge Evaluation Report\n\n")
	b.WriteString(fmt.Sprintf("- Root: `%s`\n", r.Root))
	b.WriteString(fmt.Sprintf("- Records: `%d`\n", len(r.Entries)))
	b.WriteString(fmt.Sprintf("- Skipped: `%d`\n\n", len(r.Skipped)))

	b.WriteString("## Results\n\n")
	b.WriteString("| Dataset | Method | Split | Time (s) |")
	for _, m := range metrics {
		b.WriteString(" " + escape(m) + " |")
	}
	b.WriteString("\n|---|---|---|---:|")
	for range metrics {
		b.WriteString("---:|")
	}
	b.WriteString("\n")
	for _, e := range r.Entries {
		rec := e.Record
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %.2f |", escape(rec.Dataset), escape(rec.Method), escape(rec.Split), rec.Time))
		for _, m := range metrics {
			if v, ok := rec.Metrics[m]; ok {
				b.WriteString(fmt.Sprintf(" %.4f |", v))
			} else {
				b.WriteString(" - |")
			}
		}
		b.WriteString("\n")
	}

	if len(metrics) > 0 && len(r.Entries) > 0 {
		b.WriteString("\n## Best\n\n")
		for _, m := range metrics {
			if e, ok := r.Best(m); ok {
				b.WriteString(fmt.Sprintf("- %s: **%.4f** (%s, %s/%s)\n", escape(m), e.Record.Metrics[m], escape(e.Record.Method), escape(e.Record.Dataset), escape(e.Record.Split)))
			}
		}
	}

	if len(r.Skipped) > 0 {
		b.WriteString("\n## Skipped\n\n")
		for _, s := range r.Skipped {
			b.WriteString(fmt.Sprintf("- `%s`: %s\n", s.Path, escape(s.Reason)))
		}
	}

	return b.String()
}

// WriteMarkdown writes BuildMarkdown(r) to path.
func WriteMarkdown(path string, r Report) error {
	return os.WriteFile(path, []byte(BuildMarkdown(r)), 0o644)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
