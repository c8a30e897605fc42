// Package retry runs operations with exponential backoff, retrying only
// transient failures and never past a per-candidate retry budget.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/FranksOps/grounder/internal/model"
)

// Policy configures backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the maximum fraction of a delay added or subtracted at random.
	Jitter float64
}

// DefaultPolicy mirrors the pipeline defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns the un-jittered wait before retry number n (1-based).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p Policy) jittered(n int) time.Duration {
	d := p.Delay(n)
	if d <= 0 || p.Jitter <= 0 {
		return d
	}
	span := float64(d) * p.Jitter
	return time.Duration(float64(d) + (rand.Float64()*2-1)*span)
}

// Budget is a retry allowance shared by every stage of one candidate.
type Budget struct {
	mu        sync.Mutex
	remaining int
	used      int
}

// NewBudget allows n retries in total.
func NewBudget(n int) *Budget {
	if n < 0 {
		n = 0
	}
	return &Budget{remaining: n}
}

func (b *Budget) take() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining == 0 {
		return false
	}
	b.remaining--
	b.used++
	return true
}

// Used reports how many retries have been consumed.
func (b *Budget) Used() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Op is one attempt of a retryable operation. attempt starts at 1.
type Op func(ctx context.Context, attempt int) error

// Executor runs Ops under a Policy.
type Executor struct {
	Policy Policy
	// OnRetry is called before every retry.
	OnRetry func(attempt int, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor returns an Executor for p. onRetry may be nil.
func NewExecutor(p Policy, onRetry func(attempt int, err error)) *Executor {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return &Executor{Policy: p, OnRetry: onRetry, sleep: sleepCtx}
}

// Run calls op until it succeeds, fails with a non-transient error, exhausts
// MaxAttempts or budget, or ctx ends. It returns the attempts made and the
// last error. When ctx is done the error is a KindTimeout *model.Error.
//
// A KindTimeout error from op while ctx is still live comes from a
// per-operation deadline and is retried like any transient failure.
func (e *Executor) Run(ctx context.Context, budget *Budget, op Op) (int, error) {
	sleep := e.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return attempt, model.Timeout("deadline exceeded", err)
		}
		attempt++

		err := op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, model.Timeout("deadline exceeded", err)
		}

		switch model.KindOf(err) {
		case model.KindTransient, model.KindTimeout:
		default:
			return attempt, err
		}
		if attempt >= e.Policy.MaxAttempts || !budget.take() {
			return attempt, err
		}

		if e.OnRetry != nil {
			e.OnRetry(attempt, err)
		}
		if serr := sleep(ctx, e.Policy.jittered(attempt)); serr != nil {
			return attempt, model.Timeout("deadline exceeded during backoff", serr)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
