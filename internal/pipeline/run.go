package pipeline

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/FranksOps/grounder/internal/metrics"
	"github.com/FranksOps/grounder/internal/model"
	"github.com/FranksOps/grounder/internal/retry"
	"github.com/FranksOps/grounder/internal/score"
)

const citationSnippetLen = 240

// run holds the state of one RunPipeline call.
type run struct {
	o         *Orchestrator
	id        string
	query     string
	opts      Options
	collector *metrics.Collector
	executor  *retry.Executor
	logger    *slog.Logger

	mu     sync.Mutex
	state  State
	errors []model.PipelineError
}

func newRun(o *Orchestrator, query string, opts Options) *run {
	id := uuid.NewString()
	r := &run{
		o:         o,
		id:        id,
		query:     query,
		opts:      opts,
		collector: metrics.NewCollector(opts.LogProgress),
		logger:    o.logger.With("run_id", id, "query", query),
		state:     StateIdle,
	}
	r.executor = retry.NewExecutor(opts.retryPolicy(), func(attempt int, err error) {
		r.collector.IncRetries()
		r.logger.Debug("retrying", "attempt", attempt, "err", err)
	})
	return r
}

func (r *run) transition(s State) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()
	r.collector.Step(string(s))
	r.logger.Debug("state transition", "from", prev, "to", s)
}

func (r *run) currentState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *run) hasTimeoutError() bool {
	for _, e := range r.errors {
		if e.Code == model.CodeTimeout {
			return true
		}
	}
	return false
}

// result assembles the PipelineResult from the final source list.
func (r *run) result(final []*model.Source, searchOK bool) *model.PipelineResult {
	r.collector.Finish()
	state := r.currentState()

	res := &model.PipelineResult{
		ID:        r.id,
		Query:     r.query,
		State:     string(state),
		Sources:   make([]model.Source, 0, len(final)),
		Citations: make([]model.Citation, 0, len(final)),
		Errors:    r.errors,
	}
	if res.Errors == nil {
		res.Errors = []model.PipelineError{}
	}

	terms := score.Tokens(r.query)
	total := 0.0
	for i, s := range final {
		res.Sources = append(res.Sources, *s)
		res.Citations = append(res.Citations, model.Citation{
			Index:   i + 1,
			URL:     s.URL,
			Title:   s.Title,
			Snippet: citationSnippet(s, terms, citationSnippetLen),
		})
		total += s.Score
	}
	res.IsValid = searchOK && len(res.Sources) > 0
	if len(res.Sources) > 0 {
		res.Score = total / float64(len(res.Sources))
	}

	snap := r.collector.Snapshot()
	if r.opts.IncludeMetadata {
		res.Metadata = snap
	}
	for _, e := range res.Errors {
		metrics.CandidateFailures.WithLabelValues(string(e.Phase), e.Code).Inc()
	}
	metrics.RecordRun(res.State, res.IsValid, snap.Timings.Total)

	r.logger.Info("pipeline finished",
		"state", res.State,
		"valid", res.IsValid,
		"sources", len(res.Sources),
		"errors", len(res.Errors),
		"cache_hits", snap.CacheHits,
		"retries", snap.Retries,
		"duration", snap.Timings.Total,
	)
	return res
}
