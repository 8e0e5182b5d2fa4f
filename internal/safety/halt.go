package safety

import (
	"fmt"
	"sync"
	"time"

	"tradecouncil/internal/logger"
)

// HaltEvent 记录一次熔断触发或复位，用于审计。
type HaltEvent struct {
	At     time.Time
	Kind   string // "halt" | "reset"
	Reason string
	By     string
}

// AuditSink 接收安全层的审计事件（通常落库）。
type AuditSink interface {
	RecordSafetyEvent(event HaltEvent)
}

// TradingHalt 是交易级熔断器：当日亏损、回撤或连亏越限后挂起所有交易。
// 与 pkg/circuit 的 API 熔断器是两回事——这里一旦触发，只能人工带理由复位。
// 进程内唯一的全局可变状态，所有读写都走加锁的方法。
type TradingHalt struct {
	mu sync.Mutex

	halted     bool
	haltReason string
	haltedAt   time.Time

	dailyPnLPct       float64
	peakValue         float64
	drawdownPct       float64
	consecutiveLosses int

	dailyLossLimitPct    float64
	maxDrawdownPct       float64
	maxConsecutiveLosses int

	sink  AuditSink
	nowFn func() time.Time
}

type TradingHaltConfig struct {
	DailyLossLimitPct    float64
	MaxDrawdownPct       float64
	MaxConsecutiveLosses int
}

func NewTradingHalt(cfg TradingHaltConfig, sink AuditSink) *TradingHalt {
	return &TradingHalt{
		dailyLossLimitPct:    cfg.DailyLossLimitPct,
		maxDrawdownPct:       cfg.MaxDrawdownPct,
		maxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		sink:                 sink,
		nowFn:                time.Now,
	}
}

// Allowed reports whether trading may proceed, with the halt reason if not.
func (h *TradingHalt) Allowed() (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.halted {
		return false, h.haltReason
	}
	return true, ""
}

// ObservePortfolio 更新日内盈亏与回撤，必要时触发熔断。
func (h *TradingHalt) ObservePortfolio(value, dayStartValue float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if value <= 0 {
		return
	}
	if dayStartValue > 0 {
		h.dailyPnLPct = (value - dayStartValue) / dayStartValue
	}
	if value > h.peakValue {
		h.peakValue = value
	}
	if h.peakValue > 0 {
		h.drawdownPct = (value - h.peakValue) / h.peakValue
	}
	h.checkLimitsLocked()
}

// RecordTradeResult 记录一笔平仓结果，维护连亏计数。
func (h *TradingHalt) RecordTradeResult(pnl float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pnl < 0 {
		h.consecutiveLosses++
	} else if pnl > 0 {
		h.consecutiveLosses = 0
	}
	h.checkLimitsLocked()
}

func (h *TradingHalt) checkLimitsLocked() {
	if h.halted {
		return
	}
	switch {
	case h.dailyLossLimitPct > 0 && h.dailyPnLPct <= -h.dailyLossLimitPct:
		h.haltLocked(fmt.Sprintf("daily loss %.2f%% breached limit %.2f%%", h.dailyPnLPct*100, h.dailyLossLimitPct*100))
	case h.maxDrawdownPct > 0 && h.drawdownPct <= -h.maxDrawdownPct:
		h.haltLocked(fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%", h.drawdownPct*100, h.maxDrawdownPct*100))
	case h.maxConsecutiveLosses > 0 && h.consecutiveLosses >= h.maxConsecutiveLosses:
		h.haltLocked(fmt.Sprintf("%d consecutive losses reached limit %d", h.consecutiveLosses, h.maxConsecutiveLosses))
	}
}

func (h *TradingHalt) haltLocked(reason string) {
	h.halted = true
	h.haltReason = reason
	h.haltedAt = h.nowFn()
	logger.Auditf("trading_halt", "trading halted: %s", reason)
	if h.sink != nil {
		h.sink.RecordSafetyEvent(HaltEvent{At: h.haltedAt, Kind: "halt", Reason: reason})
	}
}

// Reset 人工复位。必须记录操作者与理由，绝不静默。
func (h *TradingHalt) Reset(by, why string) error {
	if by == "" || why == "" {
		return fmt.Errorf("halt reset requires operator and reason")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.halted {
		return fmt.Errorf("trading is not halted")
	}
	h.halted = false
	h.haltReason = ""
	h.consecutiveLosses = 0
	logger.Auditf("halt_reset", "trading halt reset by %s: %s", by, why)
	if h.sink != nil {
		h.sink.RecordSafetyEvent(HaltEvent{At: h.nowFn(), Kind: "reset", Reason: why, By: by})
	}
	return nil
}

// Snapshot 返回当前指标，供 HTTP 层与风险信号展示。
func (h *TradingHalt) Snapshot() (halted bool, reason string, dailyPnLPct, drawdownPct float64, losses int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.halted, h.haltReason, h.dailyPnLPct, h.drawdownPct, h.consecutiveLosses
}
