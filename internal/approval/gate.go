package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradecouncil/internal/logger"
	"tradecouncil/internal/signal"
)

// 中文说明：
// 人工审批闸：低置信度决策挂起等待订阅方批复，超时一律拒绝。
// 每个请求一个 promise（resolved channel），由批复或定时器二选一落定，
// 不做忙轮询。多个工作流实例的请求按 id 隔离，互不干扰。

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusTimedOut Status = "TIMED_OUT"
)

const TimeoutFeedback = "Timeout - trade rejected"

// Request 是一次待审批的交易决策。
type Request struct {
	ID         string        `json:"id"`
	Symbol     string        `json:"symbol"`
	Action     signal.Action `json:"action"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
	Status     Status        `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt time.Time     `json:"resolved_at,omitempty"`
	Feedback   string        `json:"feedback,omitempty"`
}

type resolution struct {
	approved bool
	feedback string
	status   Status
}

type pendingRequest struct {
	req  Request
	done chan resolution
	once sync.Once
}

// Message 是订阅方发回的批复消息。
type Message struct {
	Action   string `json:"action"` // approve | reject | ping
	TradeID  string `json:"trade_id"`
	Feedback string `json:"feedback,omitempty"`
}

// Notification 推送给订阅方的待审批事件。
type Notification struct {
	Request Request `json:"request"`
}

// ArchiveSink 在请求落定时收尾（通常写决策日志）。
type ArchiveSink interface {
	ArchiveApproval(req Request)
}

// Gate 实现置信度门控的异步审批。
type Gate struct {
	threshold float64
	timeout   time.Duration
	sink      ArchiveSink

	mu          sync.Mutex
	pending     map[string]*pendingRequest
	subscribers map[int]chan Notification
	nextSubID   int
	nowFn       func() time.Time
}

func NewGate(threshold float64, timeout time.Duration, sink ArchiveSink) *Gate {
	if threshold <= 0 {
		threshold = 0.75
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Gate{
		threshold:   threshold,
		timeout:     timeout,
		sink:        sink,
		pending:     make(map[string]*pendingRequest),
		subscribers: make(map[int]chan Notification),
		nowFn:       time.Now,
	}
}

// Subscribe 注册一个通知通道，返回取消函数。通道满时丢弃该订阅方的
// 本条通知（at-least-once 面向活跃、跟得上的订阅方）。
func (g *Gate) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Notification, buffer)
	g.mu.Lock()
	id := g.nextSubID
	g.nextSubID++
	g.subscribers[id] = ch
	g.mu.Unlock()
	cancel := func() {
		g.mu.Lock()
		if sub, ok := g.subscribers[id]; ok {
			delete(g.subscribers, id)
			close(sub)
		}
		g.mu.Unlock()
	}
	return ch, cancel
}

// RequestApproval 按置信度决定自动通过或挂起等待。
// 返回 (approved, feedback)；超时是安全缺省的拒绝，不是错误。
func (g *Gate) RequestApproval(ctx context.Context, symbol string, action signal.Action, confidence float64, reasoning string) (bool, string) {
	if confidence >= g.threshold {
		return true, "auto-approved"
	}
	pr := &pendingRequest{
		req: Request{
			ID:         uuid.NewString(),
			Symbol:     symbol,
			Action:     action,
			Confidence: confidence,
			Reasoning:  reasoning,
			Status:     StatusPending,
			CreatedAt:  g.nowFn(),
		},
		done: make(chan resolution, 1),
	}
	g.mu.Lock()
	g.pending[pr.req.ID] = pr
	subs := make([]chan Notification, 0, len(g.subscribers))
	for _, ch := range g.subscribers {
		subs = append(subs, ch)
	}
	g.mu.Unlock()

	note := Notification{Request: pr.req}
	for _, ch := range subs {
		select {
		case ch <- note:
		default:
			logger.Warnf("approval subscriber backlogged, notification dropped (request %s)", pr.req.ID)
		}
	}
	logger.Infof("approval requested %s: %s %s conf=%.2f (timeout %s)", pr.req.ID, symbol, action, confidence, g.timeout)

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()
	var res resolution
	select {
	case res = <-pr.done:
	case <-timer.C:
		res = resolution{approved: false, feedback: TimeoutFeedback, status: StatusTimedOut}
	case <-ctx.Done():
		res = resolution{approved: false, feedback: fmt.Sprintf("cancelled: %v", ctx.Err()), status: StatusRejected}
	}
	g.finalize(pr, res)
	return res.approved, res.feedback
}

// Resolve 处理一条批复消息。未知 id 或已落定的请求返回错误。
func (g *Gate) Resolve(msg Message) error {
	switch msg.Action {
	case "approve", "reject":
	case "ping":
		return nil
	default:
		return fmt.Errorf("unknown approval action %q", msg.Action)
	}
	g.mu.Lock()
	pr, ok := g.pending[msg.TradeID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("approval request %s not found or already resolved", msg.TradeID)
	}
	res := resolution{approved: msg.Action == "approve", feedback: msg.Feedback, status: StatusRejected}
	if res.approved {
		res.status = StatusApproved
	}
	if res.feedback == "" {
		res.feedback = string(res.status)
	}
	delivered := false
	pr.once.Do(func() {
		pr.done <- res
		delivered = true
	})
	if !delivered {
		return fmt.Errorf("approval request %s already resolved", msg.TradeID)
	}
	return nil
}

// Pending 列出所有未落定请求（HTTP 层使用）。
func (g *Gate) Pending() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Request, 0, len(g.pending))
	for _, pr := range g.pending {
		out = append(out, pr.req)
	}
	return out
}

func (g *Gate) finalize(pr *pendingRequest, res resolution) {
	g.mu.Lock()
	delete(g.pending, pr.req.ID)
	g.mu.Unlock()
	pr.req.Status = res.status
	pr.req.Feedback = res.feedback
	pr.req.ResolvedAt = g.nowFn()
	logger.Auditf("approval", "request %s resolved: %s (%s)", pr.req.ID, res.status, res.feedback)
	if g.sink != nil {
		g.sink.ArchiveApproval(pr.req)
	}
}
