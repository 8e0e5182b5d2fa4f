package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowAdmitsUpToCapacity(t *testing.T) {
	l := NewSlidingWindow(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Equal(t, 3, l.Pending())
}

func TestSlidingWindowDelaysOverCapacity(t *testing.T) {
	now := time.Unix(1000, 0)
	var slept time.Duration
	l := NewSlidingWindow(2, time.Minute)
	l.nowFn = func() time.Time { return now }
	l.sleepFn = func(ctx context.Context, d time.Duration) error {
		slept += d
		now = now.Add(d)
		return nil
	}
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))

	// 第三个调用要等最早的一次滑出窗口
	require.NoError(t, l.Wait(ctx))
	assert.Equal(t, time.Minute, slept)
	assert.Equal(t, 1, l.Pending())
}

func TestSlidingWindowEvictsOldCalls(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewSlidingWindow(5, time.Minute)
	l.nowFn = func() time.Time { return now }

	require.NoError(t, l.Wait(context.Background()))
	assert.Equal(t, 1, l.Pending())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, l.Pending())
}

func TestSlidingWindowCancelledContext(t *testing.T) {
	l := NewSlidingWindow(1, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}
