// Package report renders pipeline results for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"sort"
	"text/template"
	"time"

	"github.com/FranksOps/grounder/internal/model"
)

// Summary contains aggregated figures about one pipeline run.
type Summary struct {
	ID          string
	Query       string
	State       string
	IsValid     bool
	Score       float64
	Sources     int
	Citations   []model.Citation
	TotalErrors int
	// ErrorsByCode counts failures as "phase/CODE".
	ErrorsByCode     map[string]int
	SearchResults    int
	LinksFound       int
	ValidLinks       int
	SourcesProcessed int
	CacheHits        int
	Retries          int
	Duration         time.Duration
	Timings          model.PhaseTimings
}

// GenerateSummary aggregates res. Counters stay zero when res carries no
// metadata.
func GenerateSummary(res *model.PipelineResult) Summary {
	s := Summary{ErrorsByCode: make(map[string]int)}
	if res == nil {
		return s
	}

	s.ID = res.ID
	s.Query = res.Query
	s.State = res.State
	s.IsValid = res.IsValid
	s.Score = res.Score
	s.Sources = len(res.Sources)
	s.Citations = res.Citations
	s.TotalErrors = len(res.Errors)
	for _, e := range res.Errors {
		s.ErrorsByCode[string(e.Phase)+"/"+e.Code]++
	}

	if m := res.Metadata; m != nil {
		s.SearchResults = m.SearchResults
		s.LinksFound = m.LinksFound
		s.ValidLinks = m.ValidLinks
		s.SourcesProcessed = m.SourcesProcessed
		s.CacheHits = m.CacheHits
		s.Retries = m.Retries
		s.Duration = m.Timings.Total
		s.Timings = m.Timings
	}
	return s
}

// ErrorCodes returns the ErrorsByCode keys in sorted order.
func (s Summary) ErrorCodes() []string {
	keys := make([]string, 0, len(s.ErrorsByCode))
	for k := range s.ErrorsByCode {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteJSON writes the full result to w.
func WriteJSON(w io.Writer, res *model.PipelineResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

const textTmpl = `Grounding Summary
-----------------
Query:         {{.Query}}
Run:           {{.ID}}
State:         {{.State}}
Valid:         {{.IsValid}}
Score:         {{printf "%.3f" .Score}}
Duration:      {{.Duration}}
Search:        {{.SearchResults}} results, {{.LinksFound}} links
Validated:     {{.ValidLinks}} links, {{.SourcesProcessed}} pages, {{.Sources}} grounded
Cache Hits:    {{.CacheHits}}
Retries:       {{.Retries}}

Citations:
{{- range .Citations}}
  [{{.Index}}] {{.Title}}
      {{.URL}}
{{- if .Snippet}}
      {{.Snippet}}
{{- end}}
{{- else}}
  None
{{- end}}

Errors: {{.TotalErrors}}
{{- $s := .}}
{{- range .ErrorCodes}}
  {{.}}: {{index $s.ErrorsByCode .}}
{{- end}}
`

var textReport = template.Must(template.New("textReport").Parse(textTmpl))

// WriteText writes a human-readable summary to w.
func WriteText(w io.Writer, summary Summary) error {
	if err := textReport.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Grounding Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Grounding Report</h1>
  <p><strong>Query:</strong> {{.Query}} ({{.State}}, {{.Duration}})</p>

  <div class="stat-card">
    <div>Grounded Sources</div>
    <div class="stat-val" style="color: {{if .IsValid}}green{{else}}red{{end}};">{{.Sources}}</div>
  </div>
  <div class="stat-card">
    <div>Score</div>
    <div class="stat-val">{{printf "%.3f" .Score}}</div>
  </div>
  <div class="stat-card">
    <div>Errors</div>
    <div class="stat-val">{{.TotalErrors}}</div>
  </div>
  <div class="stat-card">
    <div>Cache Hits</div>
    <div class="stat-val">{{.CacheHits}}</div>
  </div>

  <h3>Citations</h3>
  <table>
    <tr><th>#</th><th>Title</th><th>Snippet</th></tr>
    {{- range .Citations}}
    <tr><td>{{.Index}}</td><td><a href="{{.URL}}">{{.Title}}</a></td><td>{{.Snippet}}</td></tr>
    {{- else}}
    <tr><td colspan="3">None</td></tr>
    {{- end}}
  </table>

  <h3>Errors</h3>
  <table>
    <tr><th>Phase/Code</th><th>Count</th></tr>
    {{- $s := .}}
    {{- range .ErrorCodes}}
    <tr><td>{{.}}</td><td>{{index $s.ErrorsByCode .}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

var htmlReport = htmltemplate.Must(htmltemplate.New("htmlReport").Parse(htmlTmpl))

// WriteHTML writes a basic HTML report to w.
func WriteHTML(w io.Writer, summary Summary) error {
	if err := htmlReport.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
