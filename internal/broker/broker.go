package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradecouncil/internal/logger"
	"tradecouncil/internal/signal"
)

// OrderRequest 下单请求。Quantity 为股数；市价单为主。
type OrderRequest struct {
	Symbol   string        `json:"symbol"`
	Action   signal.Action `json:"action"`
	Quantity int64         `json:"quantity"`
	Type     string        `json:"type"` // "market"
	Price    float64       `json:"price,omitempty"`
}

// OrderResult 券商回执。
type OrderResult struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"` // FILLED | REJECTED
	FillPrice float64   `json:"fill_price,omitempty"`
	FilledAt  time.Time `json:"filled_at,omitempty"`
}

// Trade 是已执行交易的记录，进入决策日志。
type Trade struct {
	OrderID   string        `json:"order_id"`
	Symbol    string        `json:"symbol"`
	Action    signal.Action `json:"action"`
	Quantity  int64         `json:"quantity"`
	Price     float64       `json:"price"`
	Status    string        `json:"status"`
	Cause     string        `json:"cause,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Broker 抽象下单接口。幂等与重试由执行步骤负责，不假设券商端提供。
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// Paper 是纸面撮合：按请求价直接成交，留存全部订单供查询。
type Paper struct {
	mu     sync.Mutex
	orders []Trade
	nowFn  func() time.Time
	// FailNext 仅测试用：>0 时接下来 N 次下单返回错误。
	FailNext int
}

func NewPaper() *Paper {
	return &Paper{nowFn: time.Now}
}

func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := validateRequest(req); err != nil {
		return OrderResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailNext > 0 {
		p.FailNext--
		return OrderResult{}, fmt.Errorf("paper broker: simulated outage")
	}
	now := p.nowFn()
	result := OrderResult{
		OrderID:   uuid.NewString(),
		Status:    "FILLED",
		FillPrice: req.Price,
		FilledAt:  now,
	}
	p.orders = append(p.orders, Trade{
		OrderID:   result.OrderID,
		Symbol:    req.Symbol,
		Action:    req.Action,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Status:    result.Status,
		CreatedAt: now,
	})
	logger.Auditf("order", "paper fill %s %s x%d @ %.4f (order %s)", req.Action, req.Symbol, req.Quantity, req.Price, result.OrderID)
	return result, nil
}

// Orders 返回全部纸面成交记录的副本。
func (p *Paper) Orders() []Trade {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Trade, len(p.orders))
	copy(out, p.orders)
	return out
}

func validateRequest(req OrderRequest) error {
	if strings.TrimSpace(req.Symbol) == "" {
		return fmt.Errorf("order: symbol is required")
	}
	switch req.Action {
	case signal.ActionBuy, signal.ActionSell:
	default:
		return fmt.Errorf("order: action must be BUY or SELL, got %q", req.Action)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("order: quantity must be > 0")
	}
	return nil
}

// Execute 以有限次重试下单。全部失败返回最后一次错误，
// 由执行步骤转成 FAILED 状态，绝不静默续试。
func Execute(ctx context.Context, b Broker, req OrderRequest, maxAttempts int) (OrderResult, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := b.PlaceOrder(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		logger.Warnf("order attempt %d/%d failed for %s: %v", attempt, maxAttempts, req.Symbol, err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return OrderResult{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	return OrderResult{}, lastErr
}
