package misc

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	errFlaky := errors.New("flaky")
	errFatal := errors.New("fatal")
	policy := RetryPolicy{
		MaxTries:  5,
		BaseDelay: time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
		Retryable: func(err error) bool { return errors.Is(err, errFlaky) },
	}

	t.Run("succeeds after retries", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), slog.Default(), "test", policy, func() error {
			calls++
			if calls < 3 {
				return errFlaky
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non-retryable", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), slog.Default(), "test", policy, func() error {
			calls++
			return errFatal
		})
		assert.ErrorIs(t, err, errFatal)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), slog.Default(), "test", policy, func() error {
			calls++
			return errFlaky
		})
		assert.ErrorIs(t, err, errFlaky)
		assert.Greater(t, calls, 1)
		assert.LessOrEqual(t, calls, 5)
	})
}
