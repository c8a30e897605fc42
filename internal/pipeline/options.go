package pipeline

import (
	"time"

	"github.com/FranksOps/grounder/internal/retry"
	"github.com/FranksOps/grounder/internal/score"
)

// State is a step of the run state machine.
type State string

const (
	StateIdle       State = "idle"
	StateSearching  State = "searching"
	StateValidating State = "validating"
	StateScoring    State = "scoring"
	StateCaching    State = "caching"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
)

// Options are the per-run knobs. Start from DefaultOptions: boolean fields
// are taken as given, while non-positive numeric fields fall back to their
// defaults.
type Options struct {
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests"`
	Timeout               time.Duration `mapstructure:"timeout"`
	// OperationTimeout bounds each single validation attempt.
	OperationTimeout    time.Duration `mapstructure:"operation_timeout"`
	RetryCount          int           `mapstructure:"retry_count"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay       time.Duration `mapstructure:"max_retry_delay"`
	CacheResults        bool          `mapstructure:"cache_results"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	MaxResults          int           `mapstructure:"max_results"`
	SortResults         bool          `mapstructure:"sort_results"`
	FilterDuplicates    bool          `mapstructure:"filter_duplicates"`
	IncludeMetadata     bool          `mapstructure:"include_metadata"`
	LogProgress         bool          `mapstructure:"log_progress"`
}

// DefaultOptions returns the standard run options.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentRequests: 5,
		Timeout:               30 * time.Second,
		OperationTimeout:      10 * time.Second,
		RetryCount:            2,
		RetryDelay:            250 * time.Millisecond,
		MaxRetryDelay:         5 * time.Second,
		CacheResults:          true,
		SimilarityThreshold:   0.8,
		MaxResults:            10,
		SortResults:           true,
		FilterDuplicates:      true,
		IncludeMetadata:       true,
		LogProgress:           true,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.MaxConcurrentRequests <= 0 {
		o.MaxConcurrentRequests = def.MaxConcurrentRequests
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = def.OperationTimeout
	}
	if o.RetryCount < 0 {
		o.RetryCount = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = def.RetryDelay
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = def.MaxRetryDelay
	}
	if o.SimilarityThreshold < 0 || o.SimilarityThreshold > 1 {
		o.SimilarityThreshold = def.SimilarityThreshold
	}
	if o.MaxResults < 0 {
		o.MaxResults = 0
	}
	return o
}

func (o Options) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: o.RetryCount + 1,
		BaseDelay:   o.RetryDelay,
		MaxDelay:    o.MaxRetryDelay,
		Jitter:      0.2,
	}
}

func (o Options) finalize() score.Options {
	return score.Options{
		FilterDuplicates:    o.FilterDuplicates,
		SimilarityThreshold: o.SimilarityThreshold,
		SortResults:         o.SortResults,
		MaxResults:          o.MaxResults,
	}
}
