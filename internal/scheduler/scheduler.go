// Package scheduler runs indexed work items under a concurrency limit,
// admitting them in FIFO order until the context ends.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Report describes what Run did with each index.
type Report struct {
	// Admitted lists indices whose fn was started, in admission order.
	Admitted []int
	// Skipped lists indices never started because ctx ended first.
	Skipped []int
	// Panics maps an index to the recovered panic of its fn.
	Panics map[int]error
}

// Run calls fn(ctx, i) for i in [0, n) with at most limit calls in flight.
// Admission is FIFO. Once ctx is done, no further index is admitted and Run
// waits for in-flight calls before returning. A panic in fn is recovered and
// recorded without affecting other calls.
func Run(ctx context.Context, limit, n int, fn func(ctx context.Context, i int)) Report {
	if limit < 1 {
		limit = 1
	}
	rep := Report{Admitted: make([]int, 0, n)}

	sem := semaphore.NewWeighted(int64(limit))
	var g errgroup.Group
	var mu sync.Mutex

	for i := 0; i < n; i++ {
		if ctx.Err() != nil || sem.Acquire(ctx, 1) != nil {
			for j := i; j < n; j++ {
				rep.Skipped = append(rep.Skipped, j)
			}
			break
		}
		rep.Admitted = append(rep.Admitted, i)

		g.Go(func() error {
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if rep.Panics == nil {
						rep.Panics = make(map[int]error)
					}
					rep.Panics[i] = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
					mu.Unlock()
				}
			}()
			fn(ctx, i)
			return nil
		})
	}

	_ = g.Wait()
	return rep
}
