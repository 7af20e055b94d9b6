package checkout

import (
	"context"
	"errors"
)

// RetryOnConflict re-runs fn while it fails with ErrCounterConflict, at most
// attempts times in total. fn must perform the whole commit again so stock
// is re-checked against fresh snapshots. Any other error stops the loop.
func RetryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrCounterConflict) {
			return err
		}
	}
	return err
}
