package report

import (
	"bytes"
	"encoding/json"
	"html/template"
	"os"
)

type htmlData struct {
	Title       string
	Root        string
	Metrics     []string
	Entries     []htmlEntry
	Skipped     []Skipped
	RecordsJSON template.JS
}

type htmlEntry struct {
	Dataset string
	Method  string
	Split   string
	Time    float64
	Values  []string
}

// BuildHTML renders a standalone HTML page for the report.
func BuildHTML(r Report) (string, error) {
	metrics := r.MetricNames()
	data := htmlData{
		Title:   "mergeval: Merge Evaluation Report",
		Root:    r.Root,
		Metrics: metrics,
		Skipped: r.Skipped,
	}
	flat := make([]map[string]any, 0, len(r.Entries))
	for _, e := range r.Entries {
		row := htmlEntry{Dataset: e.Record.Dataset, Method: e.Record.Method, Split: e.Record.Split, Time: e.Record.Time}
		for _, m := range metrics {
			if v, ok := e.Record.Metrics[m]; ok {
				row.Values = append(row.Values, formatMetric(v))
			} else {
				row.Values = append(row.Values, "-")
			}
		}
		data.Entries = append(data.Entries, row)
		flat = append(flat, e.Record.Flatten())
	}

	payload, err := json.Marshal(flat)
	if err != nil {
		return "", err
	}
	data.RecordsJSON = template.JS(payload)

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteHTML writes BuildHTML(r) to path.
func WriteHTML(path string, r Report) error {
	page, err := BuildHTML(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(page), 0o644)
}

func formatMetric(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

var reportTemplate = template.Must(template.New("merge-report").Parse(reportTemplateHTML))

const reportTemplateHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{ .Title }}</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css">
  <style>
    body { background-color: #F1F5F9; color: #0F172A; }
    .card { border: 1px solid #E2E8F0; }
    .table thead th { background-color: #F1F5F9; }
  </style>
</head>
<body>
  <nav class="navbar navbar-dark bg-dark mb-4">
    <div class="container"><span class="navbar-brand">{{ .Title }}</span></div>
  </nav>
  <main class="container">
    <div class="card mb-4">
      <div class="card-body">
        <p class="text-muted mb-3">Records under <code>{{ .Root }}</code></p>
        <table class="table table-striped table-bordered" id="recordsTable">
          <thead>
            <tr>
              <th>Dataset</th><th>Method</th><th>Split</th><th>Time (s)</th>
              {{- range .Metrics }}<th>{{ . }}</th>{{ end }}
            </tr>
          </thead>
          <tbody>
            {{- range .Entries }}
            <tr>
              <td>{{ .Dataset }}</td><td>{{ .Method }}</td><td>{{ .Split }}</td><td>{{ printf "%.2f" .Time }}</td>
              {{- range .Values }}<td>{{ . }}</td>{{ end }}
            </tr>
            {{- end }}
          </tbody>
        </table>
      </div>
    </div>
    {{- if .Skipped }}
    <div class="card mb-4">
      <div class="card-body">
        <h5>Skipped records</h5>
        <ul>{{ range .Skipped }}<li><code>{{ .Path }}</code>: {{ .Reason }}</li>{{ end }}</ul>
      </div>
    </div>
    {{- end }}
  </main>
  <script>
    const records = {{ .RecordsJSON }};
  </script>
</body>
</html>
`
