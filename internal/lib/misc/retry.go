package misc

import (
	"context"
	"log/slog"
	"time"

	"github.com/ssgreg/repeat"
)

// RetryPolicy controls Retry.
type RetryPolicy struct {
	MaxTries  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Retryable decides whether an error is worth another attempt.  nil means every error is.
	Retryable func(error) bool
}

// Retry calls fn until it succeeds, returns a non-retryable error, the tries are exhausted or ctx is done.  The
// last error returned by fn is returned.
func Retry(ctx context.Context, logger *slog.Logger, what string, policy RetryPolicy, fn func() error) error {
	var lastErr error
	maxTries := policy.MaxTries
	if maxTries <= 0 {
		maxTries = 1
	}
	err := repeat.Repeat(
		repeat.Fn(func() error {
			lastErr = fn()
			if lastErr == nil {
				return nil
			}
			if policy.Retryable != nil && !policy.Retryable(lastErr) {
				return repeat.HintStop(lastErr)
			}
			return repeat.HintTemporary(lastErr)
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(maxTries),
		repeat.FnOnError(func(err error) error {
			Debugf(logger, "retrying %s, error:%v", what, err)
			return err
		}),
		repeat.WithDelay(
			repeat.SetContext(ctx),
			repeat.SetContextHintStop(),
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: policy.BaseDelay,
				MaxDelay:  policy.MaxDelay,
			}).Set(),
		),
	)
	if lastErr != nil {
		return lastErr
	}
	return err
}
