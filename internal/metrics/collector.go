package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/FranksOps/grounder/internal/model"
)

// Collector accumulates the PipelineMetrics of a single run. Counters are
// updated concurrently by candidate pipelines.
type Collector struct {
	searchResults    atomic.Int64
	linksFound       atomic.Int64
	validLinks       atomic.Int64
	sourcesProcessed atomic.Int64
	groundedSources  atomic.Int64
	cacheHits        atomic.Int64
	retries          atomic.Int64

	// Stage timings are summed across candidates, in nanoseconds.
	linkNanos    atomic.Int64
	webNanos     atomic.Int64
	contentNanos atomic.Int64

	mu          sync.Mutex
	logSteps    bool
	steps       []string
	searchTime  time.Duration
	scoringTime time.Duration
	start       time.Time
	total       time.Duration
}

// NewCollector starts a collector. When logSteps is false Step is a no-op.
func NewCollector(logSteps bool) *Collector {
	return &Collector{logSteps: logSteps, start: time.Now()}
}

func (c *Collector) SetSearchResults(n int) { c.searchResults.Store(int64(n)) }
func (c *Collector) SetLinksFound(n int)    { c.linksFound.Store(int64(n)) }
func (c *Collector) IncValidLinks()         { c.validLinks.Add(1) }
func (c *Collector) IncSourcesProcessed()   { c.sourcesProcessed.Add(1) }
func (c *Collector) SetGroundedSources(n int) {
	c.groundedSources.Store(int64(n))
}

// IncCacheHits records one candidate served from the cache.
func (c *Collector) IncCacheHits() {
	c.cacheHits.Add(1)
	CacheHitsTotal.Inc()
}

// IncRetries records one retry attempt.
func (c *Collector) IncRetries() {
	c.retries.Add(1)
	RetriesTotal.Inc()
}

// CacheHits returns the current cache hit count.
func (c *Collector) CacheHits() int { return int(c.cacheHits.Load()) }

// Retries returns the current retry count.
func (c *Collector) Retries() int { return int(c.retries.Load()) }

// ObserveStage adds d to the cumulative timing of a validation phase.
func (c *Collector) ObserveStage(p model.Phase, d time.Duration) {
	switch p {
	case model.PhaseLink:
		c.linkNanos.Add(int64(d))
	case model.PhaseWeb:
		c.webNanos.Add(int64(d))
	case model.PhaseContent:
		c.contentNanos.Add(int64(d))
	}
}

func (c *Collector) SetSearchTime(d time.Duration) {
	c.mu.Lock()
	c.searchTime = d
	c.mu.Unlock()
}

func (c *Collector) SetScoringTime(d time.Duration) {
	c.mu.Lock()
	c.scoringTime = d
	c.mu.Unlock()
}

// Step appends a processing-step label.
func (c *Collector) Step(label string) {
	if !c.logSteps {
		return
	}
	c.mu.Lock()
	c.steps = append(c.steps, label)
	c.mu.Unlock()
}

// Finish freezes the total duration.
func (c *Collector) Finish() {
	c.mu.Lock()
	if c.total == 0 {
		c.total = time.Since(c.start)
	}
	c.mu.Unlock()
}

// Elapsed returns the time since the collector started.
func (c *Collector) Elapsed() time.Duration { return time.Since(c.start) }

// Snapshot returns an immutable copy of the collected metrics.
func (c *Collector) Snapshot() *model.PipelineMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.total
	if total == 0 {
		total = time.Since(c.start)
	}
	var steps []string
	if len(c.steps) > 0 {
		steps = make([]string, len(c.steps))
		copy(steps, c.steps)
	}

	return &model.PipelineMetrics{
		Timings: model.PhaseTimings{
			Search:            c.searchTime,
			LinkValidation:    time.Duration(c.linkNanos.Load()),
			WebValidation:     time.Duration(c.webNanos.Load()),
			ContentValidation: time.Duration(c.contentNanos.Load()),
			Scoring:           c.scoringTime,
			Total:             total,
		},
		SearchResults:    int(c.searchResults.Load()),
		LinksFound:       int(c.linksFound.Load()),
		ValidLinks:       int(c.validLinks.Load()),
		SourcesProcessed: int(c.sourcesProcessed.Load()),
		GroundedSources:  int(c.groundedSources.Load()),
		CacheHits:        int(c.cacheHits.Load()),
		Retries:          int(c.retries.Load()),
		Steps:            steps,
	}
}
