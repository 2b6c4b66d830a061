package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls   atomic.Int32
	expired int
	err     error
}

func (e *countingExpirer) ExpireStale(ctx context.Context) (int, error) {
	e.calls.Add(1)
	return e.expired, e.err
}

func TestSweepRecordsStats(t *testing.T) {
	expirer := &countingExpirer{expired: 2}
	worker := NewExpiryWorker(expirer, nil, ExpiryWorkerConfig{})

	worker.Sweep(context.Background())
	worker.Sweep(context.Background())

	stats := worker.GetStats()
	assert.Equal(t, int64(2), stats.SweepsRun)
	assert.Equal(t, int64(4), stats.AlertsExpired)
	assert.Zero(t, stats.SweepsFailed)
	assert.False(t, stats.LastSweepAt.IsZero())
}

func TestSweepCountsFailures(t *testing.T) {
	expirer := &countingExpirer{expired: 1, err: errors.New("mongo down")}
	worker := NewExpiryWorker(expirer, nil, ExpiryWorkerConfig{})

	worker.Sweep(context.Background())

	stats := worker.GetStats()
	assert.Equal(t, int64(1), stats.SweepsFailed)
	assert.Equal(t, int64(1), stats.AlertsExpired)
}

func TestWorkerSweepsOnTicker(t *testing.T) {
	expirer := &countingExpirer{}
	worker := NewExpiryWorker(expirer, nil, ExpiryWorkerConfig{Interval: 10 * time.Millisecond})

	require.NoError(t, worker.Start())
	require.NoError(t, worker.Start(), "starting twice is a no-op")

	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, worker.Stop())
	calls := expirer.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, expirer.calls.Load(), "no sweeps after Stop")
	require.NoError(t, worker.Stop())
}
