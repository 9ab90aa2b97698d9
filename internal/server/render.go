package server

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sitemetrics/perfhub/internal/advice"
	"github.com/sitemetrics/perfhub/internal/payload"
	"github.com/sitemetrics/perfhub/internal/report"
)

// errorPanel is the uniform error body: a reader-facing message plus the
// raw error as collapsible technical detail.
type errorPanel struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func panel(w http.ResponseWriter, status int, message, detail string) {
	respondJSON(w, status, errorPanel{Error: message, Detail: detail})
}

// buildView guards the render dispatch: a panic on a malformed stored
// payload becomes an error for the panel rather than a dead request.
func buildView(p payload.Payload, meta report.Meta, catalog *advice.Catalog) (view report.View, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("server: render %s report: %v", p.Kind, rec)
		}
	}()
	return report.Build(p, meta, catalog), nil
}

var fragmentTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(reportFragment))

// renderFragment writes the report as a self-contained HTML section, for
// pages that swap it in directly. Rendered to a buffer first so a template
// error never emits half a page.
func renderFragment(w http.ResponseWriter, view *report.View) {
	var buf bytes.Buffer
	if err := fragmentTmpl.Execute(&buf, view); err != nil {
		zap.L().Error("server: render html fragment", zap.String("report_id", view.ReportID), zap.Error(err))
		panel(w, http.StatusInternalServerError, "the report could not be rendered", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

const reportFragment = `<section class="report" data-report-id="{{.ReportID}}">
<header>
<h2>{{.Title}}</h2>
<p class="report-url">{{.URL}} &middot; {{.GeneratedAt.Format "Jan 2, 2006 15:04 MST"}}</p>
<div class="dial" style="color: {{.OverallTier.Hex}}">{{if .Overall}}{{.Overall}}{{else}}&mdash;{{end}}</div>
{{if .Risk}}<p class="risk">At risk: {{join .Risk ", "}}</p>{{end}}
</header>
{{range .Sections}}
{{if and .Premium $.Locked}}<section class="card locked" id="{{.ID}}">
<h3>{{.Title}}</h3>
<p>Unlock the full report to view this section.</p>
</section>
{{else}}<section class="card" id="{{.ID}}">
<h3>{{.Title}}</h3>
{{if .Note}}<p class="note">{{.Note}}</p>{{end}}
{{if .Scores}}<div class="scores">{{range .Scores}}<div class="score"><span>{{.Label}}</span><strong style="color: {{.Tier.Hex}}">{{.Value}}</strong></div>{{end}}</div>{{end}}
{{if .Rows}}<table>
<thead><tr><th>Device</th><th>Metric</th><th>Value</th><th>Rating</th></tr></thead>
<tbody>{{range .Rows}}
<tr><td>{{.Device}}</td><td>{{.Label}}</td><td>{{.Value}}</td><td style="color: {{.Tier.Hex}}">{{.Tier.Label}}</td></tr>{{end}}
</tbody>
</table>{{end}}
{{range .Items}}<details><summary>{{.Title}}{{if .Value}} <em>{{.Value}}</em>{{end}}</summary>{{if .Detail}}<p>{{.Detail}}</p>{{end}}</details>
{{end}}</section>
{{end}}{{end}}</section>
`
