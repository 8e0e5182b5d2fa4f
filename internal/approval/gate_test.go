package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/internal/signal"
)

type archiveRecorder struct {
	mu   sync.Mutex
	reqs []Request
}

func (a *archiveRecorder) ArchiveApproval(req Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reqs = append(a.reqs, req)
}

func (a *archiveRecorder) all() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Request, len(a.reqs))
	copy(out, a.reqs)
	return out
}

func TestAutoApproveAboveThreshold(t *testing.T) {
	g := NewGate(0.75, time.Second, nil)

	ok, feedback := g.RequestApproval(context.Background(), "BTCUSDT", signal.ActionBuy, 0.9, "strong signal")
	assert.True(t, ok)
	assert.Equal(t, "auto-approved", feedback)

	// 阈值本身也自动通过
	ok, _ = g.RequestApproval(context.Background(), "BTCUSDT", signal.ActionBuy, 0.75, "at threshold")
	assert.True(t, ok)
}

func TestApprovalTimeout(t *testing.T) {
	g := NewGate(0.75, 30*time.Millisecond, nil)

	start := time.Now()
	ok, feedback := g.RequestApproval(context.Background(), "BTCUSDT", signal.ActionBuy, 0.5, "weak signal")
	assert.False(t, ok)
	assert.Equal(t, TimeoutFeedback, feedback)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Empty(t, g.Pending())
}

func TestApprovalResolvedBySubscriber(t *testing.T) {
	archive := &archiveRecorder{}
	g := NewGate(0.75, 5*time.Second, archive)

	notes, cancel := g.Subscribe(4)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		note := <-notes
		err := g.Resolve(Message{Action: "approve", TradeID: note.Request.ID, Feedback: "looks good"})
		done <- err == nil
	}()

	ok, feedback := g.RequestApproval(context.Background(), "BTCUSDT", signal.ActionBuy, 0.5, "needs review")
	assert.True(t, ok)
	assert.Equal(t, "looks good", feedback)
	assert.True(t, <-done)

	reqs := archive.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, StatusApproved, reqs[0].Status)
}

func TestApprovalRejection(t *testing.T) {
	g := NewGate(0.75, 5*time.Second, nil)
	notes, cancel := g.Subscribe(4)
	defer cancel()

	go func() {
		note := <-notes
		_ = g.Resolve(Message{Action: "reject", TradeID: note.Request.ID})
	}()

	ok, feedback := g.RequestApproval(context.Background(), "BTCUSDT", signal.ActionSell, 0.5, "needs review")
	assert.False(t, ok)
	assert.Equal(t, string(StatusRejected), feedback)
}

func TestResolveUnknownRequest(t *testing.T) {
	g := NewGate(0.75, time.Second, nil)
	assert.Error(t, g.Resolve(Message{Action: "approve", TradeID: "missing"}))
	assert.Error(t, g.Resolve(Message{Action: "dance", TradeID: "x"}))
	assert.NoError(t, g.Resolve(Message{Action: "ping"}))
}

func TestPendingListsUnresolved(t *testing.T) {
	g := NewGate(0.75, 200*time.Millisecond, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.RequestApproval(context.Background(), "BTCUSDT", signal.ActionBuy, 0.5, "pending test")
	}()

	assert.Eventually(t, func() bool {
		return len(g.Pending()) == 1
	}, time.Second, 10*time.Millisecond)

	wg.Wait()
	assert.Empty(t, g.Pending())
}

func TestApprovalCancelledContext(t *testing.T) {
	g := NewGate(0.75, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	ok, feedback := g.RequestApproval(ctx, "BTCUSDT", signal.ActionBuy, 0.5, "cancel test")
	assert.False(t, ok)
	assert.Contains(t, feedback, "cancelled")
}
