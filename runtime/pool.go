package runtime

import (
	"context"
	"fmt"
	goruntime "runtime"
	"sync/atomic"

	"doc-classifier/errors"

	"golang.org/x/sync/errgroup"
)

// Workers returns n when positive, the number of CPUs otherwise.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return goruntime.NumCPU()
}

// ParallelFor runs fn for every index in [0, n) on a bounded pool of workers.
// Each worker owns the scratch value built by newScratch (a tokenizer, a
// buffer...), so fn never shares mutable helpers. Indices are dispatched one
// at a time and dispatch stops as soon as ctx is done or fn fails; the first
// error is returned. Callers write results into index-addressed slots, so
// completion order carries no meaning.
func ParallelFor[S any](
	ctx context.Context,
	n, workers int,
	newScratch func() (S, error),
	fn func(ctx context.Context, i int, scratch S) error,
) error {
	if n == 0 {
		return ctx.Err()
	}
	workers = min(Workers(workers), n)
	g, gctx := errgroup.WithContext(ctx)
	var next atomic.Int64

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			scratch, err := newScratch()
			if err != nil {
				return err
			}
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(next.Add(1) - 1)
				if i >= n {
					return nil
				}
				if err := call(gctx, fn, i, scratch); err != nil {
					return err
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		// Prefer the caller's cancellation over the derived context error.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return ctx.Err()
}

// call turns a panic of fn into ErrWorkerPanic so that one bad item fails
// the batch instead of the process.
func call[S any](ctx context.Context, fn func(ctx context.Context, i int, scratch S) error, i int, scratch S) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: item %d: %v", errors.ErrWorkerPanic, i, r)
		}
	}()
	return fn(ctx, i, scratch)
}

// NoScratch is used by ParallelFor callers that need no per-worker state.
func NoScratch() (struct{}, error) {
	return struct{}{}, nil
}
