package gptbatch

import (
	"context"
	"fmt"
	"runtime/debug"
)

// pool bounds how many submitted tasks run at once. Submitting never blocks;
// tasks wait for a slot on their own goroutine.
type pool struct {
	slots chan struct{}
}

func newPool(concurrency int) *pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &pool{slots: make(chan struct{}, concurrency)}
}

// future is the handle for one submitted task.
type future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Wait blocks until the task finishes or ctx is done.
func (f *future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// submit schedules fn on p. A panic in fn resolves the future with an error
// wrapping ErrTaskPanicked; if ctx ends before a slot frees up the future
// resolves with ctx.Err().
func submit[T any](ctx context.Context, p *pool, fn func(context.Context) (T, error)) *future[T] {
	f := &future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)

		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			f.err = ctx.Err()
			return
		}
		defer func() { <-p.slots }()

		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("%w: %v\n%s", ErrTaskPanicked, r, debug.Stack())
			}
		}()
		f.value, f.err = fn(ctx)
	}()
	return f
}
