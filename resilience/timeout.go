package resilience

import (
	"context"
	"time"

	"github.com/coderun/orchestrator/domain/orcherrors"
)

// WithTimeout runs fn with a per-call deadline independent of the caller's
// own deadline; whichever fires first wins. On expiry it
// returns a KindTimeout error.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		ch <- outcome{v, err}
	}()

	select {
	case o := <-ch:
		return o.val, o.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return zero, orcherrors.Wrap(orcherrors.KindTimeout, "call timed out", ctx.Err())
		}
		return zero, orcherrors.Wrap(orcherrors.KindCancelled, "call cancelled", ctx.Err())
	}
}
