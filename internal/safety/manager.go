package safety

import (
	"fmt"
	"time"

	"tradecouncil/internal/config"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/market"
	"tradecouncil/internal/types"
)

// Manager 在任何交易被允许或定仓之前充当有状态的守门人。
// 所有检查返回 (allowed, reason)，reason 原样进入最终决策的说明，不得吞掉。
type Manager struct {
	halt    *TradingHalt
	sizer   PositionSizer
	filters *TradeFilters

	maxPortfolioHeatPct float64
	maxPositionPct      float64
	maxSectorAllocPct   float64

	tradingHoursOnly bool
	openHourUTC      int
	closeHourUTC     int

	nowFn func() time.Time
}

func NewManager(cfg config.SafetyConfig, sink AuditSink, cal EarningsCalendar) *Manager {
	return &Manager{
		halt: NewTradingHalt(TradingHaltConfig{
			DailyLossLimitPct:    cfg.DailyLossLimitPct,
			MaxDrawdownPct:       cfg.MaxDrawdownPct,
			MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		}, sink),
		sizer: PositionSizer{
			RiskBudgetPct:  cfg.RiskBudgetPct,
			RiskMultiplier: cfg.ATRRiskMultiplier,
			MaxPositionPct: cfg.MaxPositionPct,
		},
		filters:             NewTradeFilters(cfg.MinDollarVolume, cfg.MinPrice, cfg.MinMarketCap, cfg.EarningsWindowDays, cal),
		maxPortfolioHeatPct: cfg.MaxPortfolioHeatPct,
		maxPositionPct:      cfg.MaxPositionPct,
		maxSectorAllocPct:   cfg.MaxSectorAllocPct,
		tradingHoursOnly:    cfg.TradingHoursOnly,
		openHourUTC:         cfg.TradingOpenHourUTC,
		closeHourUTC:        cfg.TradingCloseHourUTC,
		nowFn:               time.Now,
	}
}

// Halt 暴露交易熔断器（HTTP 复位入口使用）。
func (m *Manager) Halt() *TradingHalt { return m.halt }

// TradePermitted 是进入投票前的总闸：熔断、交易时段、组合热度。
func (m *Manager) TradePermitted(snapshot types.PortfolioSnapshot) (bool, string) {
	if ok, reason := m.halt.Allowed(); !ok {
		return false, fmt.Sprintf("trading halted: %s", reason)
	}
	if m.tradingHoursOnly {
		hour := m.nowFn().UTC().Hour()
		if hour < m.openHourUTC || hour >= m.closeHourUTC {
			return false, fmt.Sprintf("outside trading hours (%02d-%02d UTC)", m.openHourUTC, m.closeHourUTC)
		}
	}
	if m.maxPortfolioHeatPct > 0 {
		heat := PortfolioHeat(snapshot)
		if heat >= m.maxPortfolioHeatPct {
			return false, fmt.Sprintf("portfolio heat %.2f%% at or above limit %.2f%%", heat*100, m.maxPortfolioHeatPct*100)
		}
	}
	return true, ""
}

// CheckBuy 针对 BUY 的逐项检查：过滤器、单仓上限、板块集中度。
func (m *Manager) CheckBuy(symbol, sector string, candles []market.Candle, quantity int64, snapshot types.PortfolioSnapshot) (bool, string) {
	if ok, reason := m.filters.Check(symbol, candles); !ok {
		return false, reason
	}
	price := market.LastClose(candles)
	if price <= 0 || snapshot.Value <= 0 {
		return true, ""
	}
	orderValue := price * float64(quantity)
	if m.maxPositionPct > 0 {
		existing := 0.0
		if p, ok := snapshot.Positions[symbol]; ok {
			existing = p.MarketValue()
		}
		if (existing+orderValue)/snapshot.Value > m.maxPositionPct {
			return false, fmt.Sprintf("position value %.0f would exceed %.0f%% of portfolio", existing+orderValue, m.maxPositionPct*100)
		}
	}
	if m.maxSectorAllocPct > 0 && sector != "" {
		sectorValue := snapshot.SectorValue(sector) + orderValue
		if sectorValue/snapshot.Value > m.maxSectorAllocPct {
			return false, fmt.Sprintf("sector %s allocation %.1f%% would exceed limit %.1f%%",
				sector, sectorValue/snapshot.Value*100, m.maxSectorAllocPct*100)
		}
	}
	return true, ""
}

// Size 按波动率计算股数。
func (m *Manager) Size(entryPrice, atr, portfolioValue float64) (int64, error) {
	return m.sizer.Size(entryPrice, atr, portfolioValue)
}

// Observe 喂入最新账户画像，驱动日亏/回撤检查。
func (m *Manager) Observe(snapshot types.PortfolioSnapshot, dayStartValue float64) {
	m.halt.ObservePortfolio(snapshot.Value, dayStartValue)
	heat := PortfolioHeat(snapshot)
	if m.maxPortfolioHeatPct > 0 && heat >= m.maxPortfolioHeatPct {
		logger.Auditf("portfolio_heat", "portfolio heat %.2f%% at or above limit %.2f%%", heat*100, m.maxPortfolioHeatPct*100)
	}
}

// RecordTradeResult 记录一笔平仓盈亏。
func (m *Manager) RecordTradeResult(pnl float64) {
	m.halt.RecordTradeResult(pnl)
}
