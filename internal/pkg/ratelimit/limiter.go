package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow 滑动窗口限速器：窗口内调用数达到上限时延迟放行，
// 从不丢弃请求。Wait 在最早一次调用滑出窗口后返回。
type SlidingWindow struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	calls    []time.Time
	nowFn    func() time.Time
	sleepFn  func(ctx context.Context, d time.Duration) error
}

func NewSlidingWindow(capacity int, window time.Duration) *SlidingWindow {
	if capacity <= 0 {
		capacity = 100
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &SlidingWindow{
		capacity: capacity,
		window:   window,
		nowFn:    time.Now,
		sleepFn:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait blocks until the call is admitted or ctx is cancelled. The admitted
// call's timestamp is recorded before returning.
func (l *SlidingWindow) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.nowFn()
		l.evict(now)
		if len(l.calls) < l.capacity {
			l.calls = append(l.calls, now)
			l.mu.Unlock()
			return nil
		}
		// 等到最早的一次调用滑出窗口再重试
		wait := l.window - now.Sub(l.calls[0])
		l.mu.Unlock()
		if wait <= 0 {
			continue
		}
		if err := l.sleepFn(ctx, wait); err != nil {
			return err
		}
	}
}

// Pending returns how many calls are currently counted in the window.
func (l *SlidingWindow) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.nowFn())
	return len(l.calls)
}

func (l *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
