// Package pipeline orchestrates a grounding run: search, per-candidate
// link/web/content validation under bounded concurrency, scoring and
// deduplication, and caching of validated outcomes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/grounder/internal/cache"
	"github.com/FranksOps/grounder/internal/fetch"
	"github.com/FranksOps/grounder/internal/model"
	"github.com/FranksOps/grounder/internal/scheduler"
	"github.com/FranksOps/grounder/internal/score"
	"github.com/FranksOps/grounder/internal/search"
	"github.com/FranksOps/grounder/internal/validate"
)

// LinkStage is the link validation stage. *validate.LinkValidator
// satisfies it.
type LinkStage interface {
	Validate(ctx context.Context, c model.Candidate) (model.ValidationOutcome, error)
}

// WebStage is the web validation stage. *validate.WebValidator satisfies it.
type WebStage interface {
	Validate(ctx context.Context, c model.Candidate) (model.ValidationOutcome, *fetch.Page, error)
}

// ContentStage is the content validation stage. *validate.ContentValidator
// satisfies it.
type ContentStage interface {
	Validate(page *fetch.Page) (model.ValidationOutcome, *validate.ContentResult, error)
}

// Config wires an Orchestrator's collaborators.
type Config struct {
	Search  search.Provider
	Link    LinkStage
	Web     WebStage
	Content ContentStage
	// Cache may be nil, which disables caching regardless of options.
	Cache    cache.Cache
	CacheTTL time.Duration
	Score    score.Config
	Logger   *slog.Logger
}

// Orchestrator runs grounding pipelines. It is safe for concurrent use; all
// per-run state lives in the run.
type Orchestrator struct {
	search   search.Provider
	link     LinkStage
	web      WebStage
	content  ContentStage
	cache    cache.Cache
	cacheTTL time.Duration
	scorer   *score.Scorer
	logger   *slog.Logger
}

// New validates cfg and builds an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Search == nil {
		return nil, errors.New("search provider is nil")
	}
	if cfg.Link == nil || cfg.Web == nil || cfg.Content == nil {
		return nil, errors.New("link, web and content validators are required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		search:   cfg.Search,
		link:     cfg.Link,
		web:      cfg.Web,
		content:  cfg.Content,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		scorer:   score.New(cfg.Score),
		logger:   cfg.Logger,
	}, nil
}

// RunPipeline grounds query. It never fails: search failures, deadline
// expiry and candidate failures are all reported inside the result.
func (o *Orchestrator) RunPipeline(ctx context.Context, query string, opts Options) *model.PipelineResult {
	opts = opts.normalized()
	r := newRun(o, query, opts)
	r.logger.Info("pipeline started", "timeout", opts.Timeout, "max_concurrent", opts.MaxConcurrentRequests)

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	r.transition(StateSearching)
	candidates, err := r.discover(runCtx)
	if err != nil {
		return r.abortSearch(runCtx, err)
	}

	r.transition(StateValidating)
	results := make([]*candidateResult, len(candidates))
	rep := scheduler.Run(runCtx, opts.MaxConcurrentRequests, len(candidates), func(ctx context.Context, i int) {
		results[i] = r.process(ctx, candidates[i])
	})
	for i, perr := range rep.Panics {
		r.logger.Error("candidate pipeline panicked", "url", candidates[i].URL, "err", perr)
		results[i] = &candidateResult{err: &model.PipelineError{
			URL:     candidates[i].URL,
			Phase:   model.PhaseProcessing,
			Message: "internal error",
			Code:    model.CodeInternal,
		}}
	}
	for _, i := range rep.Skipped {
		results[i] = &candidateResult{timedOut: true, err: timeoutError(candidates[i].URL, "deadline exceeded before processing", 0)}
	}
	aborted := runCtx.Err() != nil

	r.transition(StateScoring)
	scoreStart := time.Now()
	var sources []*model.Source
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.err != nil {
			r.errors = append(r.errors, *res.err)
			continue
		}
		if res.source != nil {
			o.scorer.Score(query, res.source)
			sources = append(sources, res.source)
		}
	}
	final := score.Finalize(sources, opts.finalize())
	r.collector.SetScoringTime(time.Since(scoreStart))
	r.collector.SetGroundedSources(len(final))

	if aborted {
		r.transition(StateAborted)
		if !r.hasTimeoutError() {
			r.errors = append(r.errors, model.PipelineError{
				Phase:   model.PhaseProcessing,
				Message: fmt.Sprintf("run aborted: %v", runCtx.Err()),
				Code:    model.CodeAborted,
			})
		}
		return r.result(final, true)
	}

	if opts.CacheResults && o.cache != nil {
		r.transition(StateCaching)
		r.store(ctx, candidates, results)
	}

	r.transition(StateCompleted)
	return r.result(final, true)
}

// discover calls the search provider and drops duplicate URLs, assigning
// discovery indices.
func (r *run) discover(ctx context.Context) ([]model.Candidate, error) {
	start := time.Now()
	found, err := r.o.search.Search(ctx, r.query)
	r.collector.SetSearchTime(time.Since(start))
	if err != nil {
		return nil, err
	}
	r.collector.SetSearchResults(len(found))

	seen := make(map[string]struct{}, len(found))
	candidates := make([]model.Candidate, 0, len(found))
	for _, c := range found {
		key := cache.NormalizeURL(c.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		c.Index = len(candidates)
		candidates = append(candidates, c)
	}
	r.collector.SetLinksFound(len(candidates))
	r.logger.Debug("search finished", "results", len(found), "candidates", len(candidates))
	return candidates, nil
}

func (r *run) abortSearch(ctx context.Context, err error) *model.PipelineResult {
	code, msg := model.CodeSearchFailed, fmt.Sprintf("search failed: %v", err)
	if ctx.Err() != nil {
		code, msg = model.CodeTimeout, fmt.Sprintf("deadline exceeded during search: %v", err)
	}
	r.logger.Error("search failed, aborting run", "err", err)
	r.errors = append(r.errors, model.PipelineError{
		Phase:   model.PhaseProcessing,
		Message: msg,
		Code:    code,
	})
	r.transition(StateAborted)
	return r.result(nil, false)
}

// store writes every freshly computed, deterministic outcome. Cache writes
// use the caller's context so a nearly expired run deadline does not drop
// them.
func (r *run) store(ctx context.Context, candidates []model.Candidate, results []*candidateResult) {
	for i, res := range results {
		if res == nil || res.entry == nil || res.fromCache {
			continue
		}
		if err := r.o.cache.Put(ctx, r.query, candidates[i].URL, res.entry, r.o.cacheTTL); err != nil {
			r.logger.Error("cache write failed", "url", candidates[i].URL, "err", err)
		}
	}
}
