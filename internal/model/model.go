package model

import (
	"time"
)

// Candidate is an unvalidated URL discovered by a search provider.
type Candidate struct {
	URL       string     `json:"url"`
	Title     string     `json:"title,omitempty"`
	Snippet   string     `json:"snippet,omitempty"`
	Published *time.Time `json:"published,omitempty"`
	Provider  string     `json:"provider,omitempty"`
	// Index is the discovery order; scoring uses it as the stable tie-break.
	Index int `json:"index"`
}

// Phase names the pipeline stage an outcome or error belongs to.
type Phase string

const (
	PhaseLink       Phase = "link"
	PhaseWeb        Phase = "web"
	PhaseContent    Phase = "content"
	PhaseProcessing Phase = "processing"
)

// ValidationOutcome is the result of one validation stage for one candidate.
type ValidationOutcome struct {
	Passed    bool      `json:"passed"`
	Reason    string    `json:"reason,omitempty"`
	Code      string    `json:"code,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Attempt   int       `json:"attempt"`

	// Web stage only.
	FinalURL    string `json:"final_url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
}

// Validations holds the per-stage outcomes of a Source. Content is only set
// when Link and Web both passed.
type Validations struct {
	Link    *ValidationOutcome `json:"link,omitempty"`
	Web     *ValidationOutcome `json:"web,omitempty"`
	Content *ValidationOutcome `json:"content,omitempty"`
}

// Metadata describes the extracted content of a Source.
type Metadata struct {
	Author      string     `json:"author,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Language    string     `json:"language,omitempty"`
	WordCount   int        `json:"word_count"`
	ReadingTime int        `json:"reading_time"` // minutes
}

// Source is a Candidate that passed every validation stage.
type Source struct {
	URL              string      `json:"url"`
	Title            string      `json:"title"`
	Description      string      `json:"description,omitempty"`
	ExtractedContent string      `json:"extracted_content"`
	Score            float64     `json:"score"`
	Relevance        float64     `json:"relevance"`
	Date             *time.Time  `json:"date,omitempty"`
	Validations      Validations `json:"validations"`
	Metadata         Metadata    `json:"metadata"`
	// Retries is the number of retries consumed across all stages.
	Retries int `json:"retries"`
	Index   int `json:"index"`
}

// Citation is the caller-facing reference derived from a Source.
type Citation struct {
	Index   int    `json:"index"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// PipelineError records one candidate failure, or a run-level failure when
// Phase is PhaseProcessing.
type PipelineError struct {
	URL        string `json:"url,omitempty"`
	Phase      Phase  `json:"phase"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	RetryCount int    `json:"retry_count"`
}

// PhaseTimings are wall-clock durations of each pipeline phase.
type PhaseTimings struct {
	Search            time.Duration `json:"search"`
	LinkValidation    time.Duration `json:"link_validation"`
	WebValidation     time.Duration `json:"web_validation"`
	ContentValidation time.Duration `json:"content_validation"`
	Scoring           time.Duration `json:"scoring"`
	Total             time.Duration `json:"total"`
}

// PipelineMetrics is the accounting of one pipeline run.
type PipelineMetrics struct {
	Timings          PhaseTimings `json:"timings"`
	SearchResults    int          `json:"search_results"`
	LinksFound       int          `json:"links_found"`
	ValidLinks       int          `json:"valid_links"`
	SourcesProcessed int          `json:"sources_processed"`
	GroundedSources  int          `json:"grounded_sources"`
	CacheHits        int          `json:"cache_hits"`
	Retries          int          `json:"retries"`
	Steps            []string     `json:"steps,omitempty"`
}

// PipelineResult is everything a run produces.
type PipelineResult struct {
	ID        string           `json:"id"`
	Query     string           `json:"query"`
	State     string           `json:"state"`
	IsValid   bool             `json:"is_valid"`
	Score     float64          `json:"score"`
	Sources   []Source         `json:"sources"`
	Metadata  *PipelineMetrics `json:"metadata,omitempty"`
	Citations []Citation       `json:"citations"`
	Errors    []PipelineError  `json:"errors"`
}
