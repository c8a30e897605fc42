package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/grounder/internal/model"
)

func sampleResult() *model.PipelineResult {
	return &model.PipelineResult{
		ID:      "run-1",
		Query:   "rust ownership",
		State:   "completed",
		IsValid: true,
		Score:   0.625,
		Sources: []model.Source{{URL: "https://example.com/a", Title: "Ownership"}},
		Citations: []model.Citation{
			{Index: 1, URL: "https://example.com/a", Title: "Ownership", Snippet: "Rust ownership rules."},
		},
		Errors: []model.PipelineError{
			{URL: "x", Phase: model.PhaseLink, Code: model.CodeMalformedURL},
			{URL: "y", Phase: model.PhaseLink, Code: model.CodeMalformedURL},
			{URL: "z", Phase: model.PhaseWeb, Code: model.CodeHTTPStatus},
		},
		Metadata: &model.PipelineMetrics{
			Timings:          model.PhaseTimings{Total: 2 * time.Second},
			SearchResults:    6,
			LinksFound:       5,
			ValidLinks:       3,
			SourcesProcessed: 2,
			GroundedSources:  1,
			CacheHits:        1,
			Retries:          2,
		},
	}
}

func TestGenerateSummary(t *testing.T) {
	summary := GenerateSummary(sampleResult())

	if summary.Sources != 1 {
		t.Errorf("expected 1 source, got %d", summary.Sources)
	}
	if summary.TotalErrors != 3 {
		t.Errorf("expected 3 errors, got %d", summary.TotalErrors)
	}
	if summary.ErrorsByCode["link/MALFORMED_URL"] != 2 {
		t.Errorf("expected 2 malformed url errors, got %d", summary.ErrorsByCode["link/MALFORMED_URL"])
	}
	if summary.LinksFound != 5 || summary.ValidLinks != 3 || summary.CacheHits != 1 {
		t.Errorf("unexpected counters %+v", summary)
	}
	if summary.Duration != 2*time.Second {
		t.Errorf("expected 2s duration, got %v", summary.Duration)
	}
	if got := summary.ErrorCodes(); len(got) != 2 || got[0] != "link/MALFORMED_URL" {
		t.Errorf("unexpected error codes %v", got)
	}
}

func TestGenerateSummary_NoMetadata(t *testing.T) {
	res := sampleResult()
	res.Metadata = nil
	summary := GenerateSummary(res)
	if summary.LinksFound != 0 || summary.Duration != 0 {
		t.Errorf("expected zero counters without metadata")
	}
	if GenerateSummary(nil).ErrorsByCode == nil {
		t.Errorf("expected initialized map for nil result")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"query": "rust ownership"`) {
		t.Errorf("expected JSON to contain the query, got %s", out)
	}
	if !strings.Contains(out, `"links_found": 5`) {
		t.Errorf("expected JSON to contain metadata")
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, GenerateSummary(sampleResult())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Query:         rust ownership",
		"Score:         0.625",
		"[1] Ownership",
		"link/MALFORMED_URL: 2",
		"web/HTTP_STATUS: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected text to contain %q\n%s", want, out)
		}
	}
}

func TestWriteText_NoCitations(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, GenerateSummary(&model.PipelineResult{Query: "q"})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "None") {
		t.Errorf("expected None placeholder")
	}
}

func TestWriteHTML(t *testing.T) {
	res := sampleResult()
	res.Citations[0].Title = "<script>alert(1)</script>"
	var buf bytes.Buffer
	if err := WriteHTML(&buf, GenerateSummary(res)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Grounding Report</title>") {
		t.Errorf("expected HTML title")
	}
	if !strings.Contains(out, "web/HTTP_STATUS") {
		t.Errorf("expected HTML to contain error codes")
	}
	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Errorf("citation titles must be escaped")
	}
}
