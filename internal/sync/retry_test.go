package sync

import (
	"context"
	"testing"
	"time"

	"github.com/driftwatch/deltasync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffScheduleDoubles(t *testing.T) {
	svc := newTestService(newMemStore())
	svc.cfg.Retry = domain.RetryConfig{
		MaxRetries:  5,
		BaseDelayMs: 1000,
		MaxDelaySec: 30,
		Multiplier:  2.0,
	}

	b := svc.backoff()

	var delays []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			break
		}
		delays = append(delays, d)
	}

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}, delays)
}

func TestBackoffScheduleCapped(t *testing.T) {
	svc := newTestService(newMemStore())
	svc.cfg.Retry = domain.RetryConfig{
		MaxRetries:  7,
		BaseDelayMs: 1000,
		MaxDelaySec: 10,
		Multiplier:  2.0,
	}

	b := svc.backoff()

	var delays []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			break
		}
		delays = append(delays, d)
	}

	require.Len(t, delays, 7)
	assert.Equal(t, 10*time.Second, delays[4])
	assert.Equal(t, 10*time.Second, delays[5])
	assert.Equal(t, 10*time.Second, delays[6])
}

func TestBackoffJitterStaysNearSchedule(t *testing.T) {
	svc := newTestService(newMemStore())
	svc.cfg.Retry = domain.RetryConfig{
		MaxRetries:  1,
		BaseDelayMs: 1000,
		MaxDelaySec: 30,
		Multiplier:  2.0,
		Jitter:      true,
	}

	b := svc.backoff()
	d, stop := b.Next()
	require.False(t, stop)
	assert.InDelta(t, float64(time.Second), float64(d), float64(100*time.Millisecond))
}

func TestPullWithRetryRecoversFromTransientFailures(t *testing.T) {
	store := newMemStore()
	seedEntity(store, "gate", "g1", map[string]any{"name": "north"}, 1, testEpoch.Add(time.Minute))
	store.findFailures = 2

	svc := newTestService(store)
	since := testEpoch

	resp, err := svc.PullWithRetry(context.Background(), &domain.SyncPullRequest{
		ClientID:          "client-a",
		LastSyncTimestamp: &since,
		EntityTypes:       []string{"gate"},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Deltas, 1)
	assert.Equal(t, 3, store.findCalls)
}

func TestPullWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	store := newMemStore()
	store.findFailures = 100

	svc := newTestService(store)
	since := testEpoch

	_, err := svc.PullWithRetry(context.Background(), &domain.SyncPullRequest{
		ClientID:          "client-a",
		LastSyncTimestamp: &since,
		EntityTypes:       []string{"gate"},
	})
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	// the first attempt plus five retries
	assert.Equal(t, 6, store.findCalls)
}

func TestPullWithRetryDoesNotRetryClientErrors(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.PullWithRetry(context.Background(), &domain.SyncPullRequest{
		ClientID: "client-a",
		Cursor:   "garbage",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidCursor)
	assert.Zero(t, store.findCalls)
}

func TestPushWithRetryDoesNotRetryBusinessOutcomes(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	// rejections are payload, not errors, so a single attempt settles them
	resp, err := svc.PushWithRetry(context.Background(), &domain.SyncPushRequest{
		ClientID: "client-a",
		Deltas: []domain.SyncDelta{{
			EntityType: "ticket",
			EntityID:   "nope",
			Operation:  domain.OperationUpdate,
			ETag:       "uuid=x",
			Data:       map[string]any{"state": "closed"},
		}},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Rejected, 1)
	assert.Equal(t, 1, store.commitCalls)
}

func TestPushWithRetryRecoversFromBeginFailure(t *testing.T) {
	store := newMemStore()
	store.beginFailures = 1
	svc := newTestService(store)

	resp, err := svc.PushWithRetry(context.Background(), &domain.SyncPushRequest{
		ClientID: "client-a",
		Deltas: []domain.SyncDelta{{
			EntityType: "gate",
			EntityID:   "g1",
			Operation:  domain.OperationCreate,
			Data:       map[string]any{"name": "north"},
		}},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Accepted, 1)
	assert.NotNil(t, store.get("gate", "g1"))
}
