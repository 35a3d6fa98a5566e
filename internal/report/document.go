package report

import (
	"bytes"
	"html/template"
	"time"

	"github.com/rflorenc/mailbox-move-workbench/internal/models"
)

var documentTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Mailbox Migration Report</title>
<style>
body{font-family:system-ui,sans-serif;margin:2rem;color:#222;background:#fafafa}
h1{font-size:1.4rem;border-bottom:2px solid #e0e0e0;padding-bottom:.5rem}
.meta{font-size:.85rem;color:#666}
.counters{display:flex;gap:1rem;margin:1.5rem 0}
.counter{background:#fff;border:1px solid #e0e0e0;border-radius:6px;padding:.75rem 1.25rem;min-width:8rem}
.counter strong{display:block;font-size:1.6rem}
table{border-collapse:collapse;width:100%;background:#fff;font-size:.85rem}
th,td{border:1px solid #e0e0e0;padding:.4rem .6rem;text-align:left}
th{background:#f0f0f0}
.completed{color:#1b7a2f}
.failed{color:#b3261e}
.in_progress{color:#8a6d00}
</style></head><body>
<h1>Mailbox Migration Report</h1>
<p class="meta">Session {{.SessionID}} &middot; Generated at {{.GeneratedAt}}</p>
<div class="counters">
<div class="counter"><strong>{{.Stats.Total}}</strong>Total</div>
<div class="counter"><strong>{{.Stats.Successful}}</strong>Successful</div>
<div class="counter"><strong>{{.Stats.Failed}}</strong>Failed</div>
<div class="counter"><strong>{{.Stats.InProgress}}</strong>In Progress</div>
</div>
<table>
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr><td>{{.DisplayName}}</td><td>{{.Source}}</td><td>{{.Target}}</td><td class="{{.StatusClass}}">{{.Status}}</td><td>{{.Start}}</td><td>{{.End}}</td><td>{{.Duration}}</td><td>{{.Items}}</td><td>{{.Data}}</td><td>{{.Error}}</td></tr>
{{- end}}
</tbody>
</table>
</body></html>
`))

func renderDocument(s *models.MigrationSession, generatedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	err := documentTmpl.Execute(&buf, struct {
		SessionID   string
		GeneratedAt string
		Stats       models.SessionStats
		Columns     []string
		Rows        []row
	}{
		SessionID:   s.ID,
		GeneratedAt: generatedAt.UTC().Format(time.DateTime) + " UTC",
		Stats:       s.Stats,
		Columns:     columns,
		Rows:        rowsOf(s),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
