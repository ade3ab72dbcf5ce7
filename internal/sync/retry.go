package sync

import (
	"context"
	"math"
	"time"

	"github.com/driftwatch/deltasync/internal/domain"

	"github.com/sethvargo/go-retry"
)

// PullWithRetry runs Pull, retrying transport-class failures on an
// exponential backoff schedule. Business outcomes inside a successful
// response are never retried.
func (s *service) PullWithRetry(ctx context.Context, req *domain.SyncPullRequest) (*domain.SyncPullResponse, error) {
	var resp *domain.SyncPullResponse
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		var err error
		resp, err = s.Pull(ctx, req)
		return s.retryable(err, "pull")
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PushWithRetry runs Push with the same schedule. Safe because a failed
// commit rolls the whole batch back, so the retried push replays cleanly.
func (s *service) PushWithRetry(ctx context.Context, req *domain.SyncPushRequest) (*domain.SyncPushResponse, error) {
	var resp *domain.SyncPushResponse
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		var err error
		resp, err = s.Push(ctx, req)
		return s.retryable(err, "push")
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// retryable marks transient errors for another attempt and lets everything
// else fail immediately.
func (s *service) retryable(err error, op string) error {
	if err == nil {
		return nil
	}
	if domain.IsTransient(err) {
		s.log.Warn().Err(err).Str("operation", op).Msg("transient failure, will retry")
		return retry.RetryableError(err)
	}
	return err
}

// backoff builds a fresh schedule per call: base * multiplier^attempt,
// capped at the configured maximum, with optional jitter.
func (s *service) backoff() retry.Backoff {
	cfg := s.cfg.Retry

	base := cfg.BaseDelay()
	max := cfg.MaxDelay()
	attempt := 0

	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		d := time.Duration(float64(base) * math.Pow(cfg.Multiplier, float64(attempt)))
		attempt++
		if d > max {
			d = max
		}
		return d, false
	})

	if cfg.Jitter {
		b = retry.WithJitterPercent(10, b)
	}

	return retry.WithMaxRetries(uint64(cfg.MaxRetries), b)
}
