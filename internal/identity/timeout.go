package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPanicked wraps a panic recovered from an operation run by WithTimeout
var ErrPanicked = errors.New("operation panicked")

// WithTimeout runs op with a context bounded by d and returns whichever comes
// first: op's result or the deadline. A d of zero or less applies no bound.
// op keeps running after a timeout but its result is discarded; the result
// channel is buffered so it never blocks.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("%w: %v", ErrPanicked, r)}
			}
		}()
		v, err := op(ctx)
		ch <- result{value: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
