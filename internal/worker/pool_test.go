package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewPool_MinimumOneWorker verifies tiny fractions still get a
// worker.
func TestNewPool_MinimumOneWorker(t *testing.T) {
	assert.Equal(t, 1, NewPool(0).Workers())
	assert.GreaterOrEqual(t, NewPool(0.75).Workers(), 1)
}

// TestForEach_RunsEveryIndex verifies each index runs exactly once.
func TestForEach_RunsEveryIndex(t *testing.T) {
	const n = 100
	pool := NewPool(0.5)
	var hits [n]atomic.Int32

	started := pool.ForEach(context.Background(), n, nil, func(i int) {
		hits[i].Add(1)
	})

	assert.Equal(t, n, started)
	for i := range hits {
		assert.Equal(t, int32(1), hits[i].Load(), "index %d", i)
	}
}

// TestForEach_StopsOnExpiredGuard verifies an already-expired guard
// admits nothing.
func TestForEach_StopsOnExpiredGuard(t *testing.T) {
	pool := NewPool(0.5)
	guard := NewGuard(time.Nanosecond)
	time.Sleep(time.Millisecond)
	require.True(t, guard.Expired())

	var ran atomic.Int32
	started := pool.ForEach(context.Background(), 50, guard, func(i int) {
		ran.Add(1)
	})

	assert.Zero(t, started)
	assert.Zero(t, ran.Load())
}

// TestForEach_StopsOnCancelledContext verifies cancellation halts
// admission.
func TestForEach_StopsOnCancelledContext(t *testing.T) {
	pool := NewPool(0.5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := pool.ForEach(ctx, 50, nil, func(i int) {})
	assert.Zero(t, started)
}

// TestGuard_ZeroBudgetNeverExpires verifies the unlimited guard.
func TestGuard_ZeroBudgetNeverExpires(t *testing.T) {
	g := NewGuard(0)
	assert.False(t, g.Expired())
	assert.Greater(t, g.Remaining(), time.Hour)
}

// TestGuard_RemainingCountsDown verifies Remaining tracks the deadline
// and floors at zero.
func TestGuard_RemainingCountsDown(t *testing.T) {
	g := NewGuard(time.Hour)
	rem := g.Remaining()
	assert.Greater(t, rem, 59*time.Minute)
	assert.LessOrEqual(t, rem, time.Hour)

	expired := NewGuard(time.Nanosecond)
	time.Sleep(time.Millisecond)
	assert.Equal(t, time.Duration(0), expired.Remaining())
}
