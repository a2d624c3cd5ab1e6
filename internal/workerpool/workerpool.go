// Package workerpool provides the bounded parallel-for used by both the
// experiment-level and shot-level parallel regions, plus the process-wide
// nesting toggle the spec treats as shared state.
package workerpool

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Run executes fn(0), fn(1), ..., fn(n-1), with at most `concurrency`
// invocations in flight at once. It blocks until every invocation has
// returned (the parallel region's implicit barrier) and returns a slice
// of length n holding fn(i)'s error at index i (nil where fn succeeded).
// Every invocation still runs to completion regardless of sibling
// errors, matching the "a back-end error terminates only its own
// experiment" propagation policy.
func Run(concurrency, n int, fn func(i int) error) []error {
	if concurrency < 1 {
		concurrency = 1
	}
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			errs[i] = fn(i)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// NestingToggle models the platform thread pool's process-wide nesting
// flag. It is set under the controller's lock before each experiment-level
// parallel region and restored after; only BatchController writes it.
// The shot-level regions inside the CircuitRunner do not touch it.
type NestingToggle struct {
	mu     sync.Mutex
	nested bool
}

// Set updates the toggle and returns the previous value so the caller
// can restore it after the parallel region ends.
func (t *NestingToggle) Set(nested bool) (previous bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	previous = t.nested
	t.nested = nested
	return previous
}

// Get reads the current value.
func (t *NestingToggle) Get() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nested
}
