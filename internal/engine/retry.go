package engine

import (
	"context"
	"errors"

	"github.com/dispatchlab/llmengine/internal/apierr"
)

// withRetry implements the Retry Controller (C10): retry only on
// RateLimited, up to retries additional attempts beyond the first; every
// other error surfaces immediately (spec §4.9/§7).
func withRetry[T any](ctx context.Context, retries int, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastRL *apierr.RateLimitedError
	for attempt := 0; attempt <= retries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		var rl *apierr.RateLimitedError
		if !errors.As(err, &rl) {
			return zero, err
		}
		lastRL = rl
		if ctx.Err() != nil {
			return zero, &apierr.CancelledError{Cause: ctx.Err()}
		}
	}
	return zero, apierr.TooManyRequests(lastRL.Provider, lastRL)
}
