// Package workerpool provides bounded-concurrency fan-out for independent
// units of work, built on golang.org/x/sync/errgroup and
// golang.org/x/sync/semaphore. Callers submit tasks; the pool runs at most
// N at a time and drains everything already in flight before Wait returns,
// even when the caller's context is cancelled.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool runs submitted tasks with bounded concurrency. The zero value is not
// usable; construct with New.
type Pool struct {
	sem *semaphore.Weighted
	g   *errgroup.Group
	ctx context.Context
}

// New constructs a Pool bound to ctx with at most workers concurrent tasks.
// Cancelling ctx stops dispatch of not-yet-started tasks; tasks already
// running are expected to observe ctx themselves if they want to stop early.
func New(ctx context.Context, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), g: g, ctx: gctx}
}

// Submit schedules fn to run once a worker slot is free. fn receives the
// pool's (possibly already-cancelled) context. Submit blocks only long
// enough to acquire a slot or observe cancellation; it never blocks on fn's
// execution.
func (p *Pool) Submit(fn func(ctx context.Context) error) {
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		p.g.Go(func() error { return err })
		return
	}
	p.g.Go(func() error {
		defer p.sem.Release(1)
		return fn(p.ctx)
	})
}

// Wait blocks until every submitted task has returned, then returns the
// first non-nil error encountered (if any). Tasks already running when the
// pool's context is cancelled are allowed to finish rather than abandoned.
func (p *Pool) Wait() error {
	return p.g.Wait()
}

// Run is a convenience wrapper for the common case: submit every item in
// items through fn with bounded concurrency and collect results in the same
// order as items, even though completion order is unspecified. A panic
// inside fn is recovered and reported as the corresponding result's error.
func Run[T, R any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	pool := New(ctx, workers)
	for i, item := range items {
		i, item := i, item
		pool.Submit(func(ctx context.Context) error {
			defer func() {
				if r := recover(); r != nil {
					var zero R
					results[i] = zero
					errs[i] = &PanicError{Value: r}
				}
			}()
			res, err := fn(ctx, item)
			results[i] = res
			errs[i] = err
			return nil // individual item errors are reported per-result, not aggregated by Wait
		})
	}
	_ = pool.Wait()
	return results, errs
}

// PanicError wraps a recovered panic value from a worker task.
type PanicError struct{ Value any }

func (e *PanicError) Error() string {
	return "workerpool: task panicked"
}
