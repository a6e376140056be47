// Package retryable retries transient store failures exactly once.
package retryable

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/samandr77/microservices/identity/internal/entity"
)

const backoff = 50 * time.Millisecond

// Once runs fn and runs it a second time if the first error is neither a
// domain error nor a context error.
func Once(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, retry.WithMaxRetries(1, retry.NewConstant(backoff)), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || !isTransient(err) {
			return err
		}

		return retry.RetryableError(err)
	})
}

// Value is Once for calls that return a result.
func Value[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T

	err := Once(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}

		out = v

		return nil
	})

	return out, err
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return !entity.IsDomain(err)
}
