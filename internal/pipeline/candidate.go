package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/grounder/internal/cache"
	"github.com/FranksOps/grounder/internal/fetch"
	"github.com/FranksOps/grounder/internal/model"
	"github.com/FranksOps/grounder/internal/retry"
)

// candidateResult is the outcome of one candidate pipeline. Exactly one of
// source and err is set.
type candidateResult struct {
	source *model.Source
	err    *model.PipelineError
	// entry is the cacheable state; nil for transient and timeout failures.
	entry     *cache.Entry
	fromCache bool
	timedOut  bool
}

// process runs Link, Web and Content validation for c, stopping at the
// first failed stage. All stages draw on one retry budget.
func (r *run) process(ctx context.Context, c model.Candidate) *candidateResult {
	if r.opts.CacheResults && r.o.cache != nil {
		entry, err := r.o.cache.Get(ctx, r.query, c.URL)
		if err != nil {
			r.logger.Error("cache read failed", "url", c.URL, "err", err)
		} else if entry != nil {
			r.collector.IncCacheHits()
			return r.fromEntry(c, entry)
		}
	}

	budget := retry.NewBudget(r.opts.RetryCount)
	entry := &cache.Entry{}

	// Link.
	var link model.ValidationOutcome
	start := time.Now()
	_, err := r.executor.Run(ctx, budget, func(ctx context.Context, attempt int) error {
		opCtx, cancel := context.WithTimeout(ctx, r.opts.OperationTimeout)
		defer cancel()
		var verr error
		link, verr = r.o.link.Validate(opCtx, c)
		link.Attempt = attempt
		return verr
	})
	r.collector.ObserveStage(model.PhaseLink, time.Since(start))
	if err != nil {
		return r.fail(ctx, c, model.PhaseLink, link, err, budget, entry)
	}
	entry.Link = &link
	r.collector.IncValidLinks()

	// Web.
	var (
		web  model.ValidationOutcome
		page *fetch.Page
	)
	start = time.Now()
	_, err = r.executor.Run(ctx, budget, func(ctx context.Context, attempt int) error {
		opCtx, cancel := context.WithTimeout(ctx, r.opts.OperationTimeout)
		defer cancel()
		var verr error
		web, page, verr = r.o.web.Validate(opCtx, c)
		web.Attempt = attempt
		return verr
	})
	r.collector.ObserveStage(model.PhaseWeb, time.Since(start))
	if err != nil {
		return r.fail(ctx, c, model.PhaseWeb, web, err, budget, entry)
	}
	entry.Web = &web

	// Content does no I/O and is never retried.
	if err := ctx.Err(); err != nil {
		return r.fail(ctx, c, model.PhaseContent, model.ValidationOutcome{}, model.Timeout("deadline exceeded", err), budget, entry)
	}
	start = time.Now()
	content, extracted, err := r.o.content.Validate(page)
	content.Attempt = 1
	r.collector.ObserveStage(model.PhaseContent, time.Since(start))
	if err != nil {
		return r.fail(ctx, c, model.PhaseContent, content, err, budget, entry)
	}
	entry.Content = &content
	r.collector.IncSourcesProcessed()

	doc := extracted.Doc
	snap := &cache.Snapshot{
		FinalURL:    web.FinalURL,
		Title:       firstNonEmpty(doc.Title, c.Title, c.URL),
		Description: firstNonEmpty(doc.Description, c.Snippet),
		Content:     doc.Text,
		Metadata:    extracted.Metadata,
		Retries:     budget.Used(),
	}
	if snap.Metadata.Date == nil && c.Published != nil {
		d := *c.Published
		snap.Metadata.Date = &d
	}
	entry.Snapshot = snap
	r.logger.Debug("candidate validated", "url", c.URL, "words", snap.Metadata.WordCount, "retries", snap.Retries)

	return &candidateResult{source: newSource(c, entry), entry: entry}
}

// fail records a stage failure. Deadline expiry becomes a processing-phase
// timeout error; other failures are reported against their stage and, when
// deterministic, cached.
func (r *run) fail(ctx context.Context, c model.Candidate, phase model.Phase, out model.ValidationOutcome, err error, budget *retry.Budget, entry *cache.Entry) *candidateResult {
	if ctx.Err() != nil {
		r.logger.Debug("candidate timed out", "url", c.URL, "phase", phase)
		return &candidateResult{
			timedOut: true,
			err:      timeoutError(c.URL, fmt.Sprintf("deadline exceeded during %s validation", phase), budget.Used()),
		}
	}

	kind := model.KindOf(err)
	if out.Code == "" {
		out.Code = model.CodeOf(err, model.CodeNetwork)
	}
	if out.Reason == "" {
		out.Reason = model.ReasonOf(err)
	}
	if out.CheckedAt.IsZero() {
		out.CheckedAt = time.Now().UTC()
	}
	out.Passed = false

	r.logger.Warn("candidate failed", "url", c.URL, "phase", phase, "code", out.Code, "reason", out.Reason, "kind", kind)
	res := &candidateResult{err: &model.PipelineError{
		URL:        c.URL,
		Phase:      phase,
		Message:    out.Reason,
		Code:       out.Code,
		RetryCount: budget.Used(),
	}}

	if kind == model.KindRejection {
		switch phase {
		case model.PhaseLink:
			entry.Link = &out
		case model.PhaseWeb:
			entry.Web = &out
		case model.PhaseContent:
			entry.Content = &out
		}
		res.entry = entry
	}
	return res
}

// fromEntry rebuilds a candidate result from a cached entry without any
// network work.
func (r *run) fromEntry(c model.Candidate, e *cache.Entry) *candidateResult {
	res := &candidateResult{fromCache: true}
	if e.Link != nil && e.Link.Passed {
		r.collector.IncValidLinks()
	}
	if e.Passed() {
		r.collector.IncSourcesProcessed()
		res.source = newSource(c, e)
		return res
	}

	phase, out := model.PhaseLink, e.Link
	switch {
	case e.Link == nil || !e.Link.Passed:
	case e.Web == nil || !e.Web.Passed:
		phase, out = model.PhaseWeb, e.Web
	default:
		phase, out = model.PhaseContent, e.Content
	}
	pe := &model.PipelineError{URL: c.URL, Phase: phase, Message: "cached entry incomplete", Code: model.CodeInternal}
	if out != nil {
		pe.Message, pe.Code = out.Reason, out.Code
	}
	pe.RetryCount = cachedRetries(e)
	res.err = pe
	return res
}

// newSource builds a Source that shares no pointers with e.
func newSource(c model.Candidate, e *cache.Entry) *model.Source {
	e = e.Clone()
	snap := e.Snapshot
	var date *time.Time
	if snap.Metadata.Date != nil {
		d := *snap.Metadata.Date
		date = &d
	}
	s := &model.Source{
		URL:              c.URL,
		Title:            snap.Title,
		Description:      snap.Description,
		ExtractedContent: snap.Content,
		Date:             date,
		Validations: model.Validations{
			Link:    e.Link,
			Web:     e.Web,
			Content: e.Content,
		},
		Metadata: snap.Metadata,
		Retries:  snap.Retries,
		Index:    c.Index,
	}
	return s
}

// cachedRetries derives the retries consumed from the recorded attempts.
func cachedRetries(e *cache.Entry) int {
	n := 0
	for _, o := range []*model.ValidationOutcome{e.Link, e.Web, e.Content} {
		if o != nil && o.Attempt > 1 {
			n += o.Attempt - 1
		}
	}
	return n
}

func timeoutError(url, msg string, retries int) *model.PipelineError {
	return &model.PipelineError{
		URL:        url,
		Phase:      model.PhaseProcessing,
		Message:    msg,
		Code:       model.CodeTimeout,
		RetryCount: retries,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
