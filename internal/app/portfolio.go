package app

import (
	"context"
	"sync"
	"time"

	"tradecouncil/internal/signal"
	"tradecouncil/internal/types"
	"tradecouncil/internal/workflow"
)

// paperPortfolio 是纸面账户：初始只有现金，成交回执驱动持仓变化。
// 每个 UTC 交易日的第一次快照记为当日起始净值，供日亏损限额使用。
type paperPortfolio struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]types.Position
	sectorOf  func(symbol string) string

	day      string
	dayStart float64
}

func newPaperPortfolio(cash float64, sectorOf func(string) string) *paperPortfolio {
	if cash <= 0 {
		cash = 100_000
	}
	if sectorOf == nil {
		sectorOf = func(string) string { return "crypto" }
	}
	return &paperPortfolio{
		cash:      cash,
		positions: make(map[string]types.Position),
		sectorOf:  sectorOf,
	}
}

func (p *paperPortfolio) Snapshot(ctx context.Context) (types.PortfolioSnapshot, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	value := p.cash
	positions := make(map[string]types.Position, len(p.positions))
	for sym, pos := range p.positions {
		positions[sym] = pos
		value += pos.MarketValue()
	}
	today := time.Now().UTC().Format("2006-01-02")
	if p.day != today {
		p.day = today
		p.dayStart = value
	}
	return types.PortfolioSnapshot{
		Value:     value,
		Cash:      p.cash,
		Positions: positions,
	}, p.dayStart, nil
}

// RecordDecision 实现 workflow.Recorder：把成交回执落到账户上。
func (p *paperPortfolio) RecordDecision(st *workflow.State) {
	trade := st.ExecutedTrade
	if trade == nil || trade.Status != "FILLED" || trade.Quantity <= 0 || trade.Price <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	qty := float64(trade.Quantity)
	switch trade.Action {
	case signal.ActionBuy:
		cost := qty * trade.Price
		if cost > p.cash {
			return
		}
		p.cash -= cost
		pos := p.positions[trade.Symbol]
		total := pos.Quantity + qty
		if total > 0 {
			pos.EntryPrice = (pos.EntryPrice*pos.Quantity + trade.Price*qty) / total
		}
		pos.Symbol = trade.Symbol
		pos.Quantity = total
		pos.CurrentPrice = trade.Price
		pos.Sector = p.sectorOf(trade.Symbol)
		p.positions[trade.Symbol] = pos
	case signal.ActionSell:
		pos, ok := p.positions[trade.Symbol]
		if !ok {
			return
		}
		sold := qty
		if sold > pos.Quantity {
			sold = pos.Quantity
		}
		p.cash += sold * trade.Price
		pos.Quantity -= sold
		pos.CurrentPrice = trade.Price
		if pos.Quantity <= 0 {
			delete(p.positions, trade.Symbol)
		} else {
			p.positions[trade.Symbol] = pos
		}
	}
}

// multiRecorder 把终态广播给多个接收方（持久层、纸面账户）。
type multiRecorder []workflow.Recorder

func (m multiRecorder) RecordDecision(st *workflow.State) {
	for _, r := range m {
		if r != nil {
			r.RecordDecision(st)
		}
	}
}
