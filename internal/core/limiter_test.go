package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationLimiter_AcquireRelease(t *testing.T) {
	l := NewOperationLimiter(2, time.Second)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, LimiterStatus{Active: 2, Available: 0, MaxConcurrent: 2}, l.Status())

	l.Release()
	assert.Equal(t, LimiterStatus{Active: 1, Available: 1, MaxConcurrent: 2}, l.Status())
	l.Release()
	assert.Equal(t, 0, l.Status().Active)
}

func TestOperationLimiter_TimesOutWhenFull(t *testing.T) {
	l := NewOperationLimiter(1, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	defer l.Release()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, ErrTooManyOperations)
	assert.Equal(t, 1, l.Status().Active)
}

func TestOperationLimiter_ContextCancelled(t *testing.T) {
	l := NewOperationLimiter(1, time.Minute)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestOperationLimiter_Defaults(t *testing.T) {
	l := NewOperationLimiter(0, 0)
	assert.Equal(t, DefaultMaxConcurrentOperations, l.Status().MaxConcurrent)
	assert.Equal(t, DefaultMaxWaitTime, l.maxWait)
}

func TestOperationLimiter_WaitForDrain(t *testing.T) {
	l := NewOperationLimiter(3, time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(20 * time.Millisecond)
			l.Release()
		}()
	}

	drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, l.WaitForDrain(drainCtx))
	wg.Wait()
	assert.Equal(t, 0, l.Status().Active)
}

func TestOperationLimiter_WaitForDrainDeadline(t *testing.T) {
	l := NewOperationLimiter(1, time.Second)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.WaitForDrain(ctx), context.DeadlineExceeded)
}
