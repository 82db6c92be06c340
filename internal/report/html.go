package report

import (
	"bytes"
	"fmt"
	"html/template"
)

// Page is the metadata and body of one HTML report page.
type Page struct {
	Title     string
	Org       string
	Iteration string
	StartDate string
	EndDate   string
	Body      string
}

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 1200px; margin: 0 auto; padding: 1rem; }
.metadata { background-color: #f5f5f5; padding: 1rem; margin-bottom: 2rem; border-radius: 4px; }
pre { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 0.85rem; overflow-x: auto; }
</style>
</head>
<body>
<div class="metadata">
<h1>{{.Title}}</h1>
<p>Organization: {{.Org}}</p>
{{- if .Iteration}}
<p>Iteration: {{.Iteration}}{{if .StartDate}} ({{.StartDate}} to {{.EndDate}}){{end}}</p>
{{- end}}
<p><a href="index.html">All reports</a></p>
</div>
<pre>{{.Body}}</pre>
</body>
</html>
`))

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.}}</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 1200px; margin: 0 auto; padding: 1rem; }
.report-list { list-style: none; padding: 0; }
.report-item { margin: 1rem 0; padding: 1rem; border: 1px solid #ddd; border-radius: 4px; }
.report-date, .report-meta { color: #666; font-size: 0.9rem; }
</style>
</head>
<body>
<h1>{{.}}</h1>
<ul id="reports" class="report-list"></ul>
<script>
fetch('reports.json')
  .then((response) => response.json())
  .then((reports) => {
    const list = document.getElementById('reports');
    reports.sort((a, b) => new Date(b.date) - new Date(a.date));
    for (const report of reports) {
      const item = document.createElement('li');
      item.className = 'report-item';
      const date = document.createElement('div');
      date.className = 'report-date';
      date.textContent = new Date(report.date).toLocaleDateString();
      const link = document.createElement('a');
      link.href = report.path;
      link.textContent = report.title;
      const meta = document.createElement('div');
      meta.className = 'report-meta';
      meta.textContent = 'Iteration: ' + (report.iteration_name || 'N/A') + ' | Organization: ' + report.org_name;
      item.append(date, link, meta);
      list.appendChild(item);
    }
  });
</script>
</body>
</html>
`))

// HTML wraps a rendered report in a standalone page. The report text is
// escaped, not interpreted.
func HTML(page Page) (string, error) {
	buffer := bytes.Buffer{}
	if err := pageTemplate.Execute(&buffer, page); err != nil {
		return "", fmt.Errorf("render html report: %w", err)
	}
	return buffer.String(), nil
}

// IndexHTML renders the report listing page that reads reports.json.
func IndexHTML(title string) (string, error) {
	buffer := bytes.Buffer{}
	if err := indexTemplate.Execute(&buffer, title); err != nil {
		return "", fmt.Errorf("render html index: %w", err)
	}
	return buffer.String(), nil
}
