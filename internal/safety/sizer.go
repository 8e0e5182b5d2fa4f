package safety

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradecouncil/internal/types"
)

// PositionSizer 按波动率定仓：风险预算除以 ATR 止损距离，
// 再用单仓市值上限封顶。金额运算走 decimal，避免二进制浮点误差。
type PositionSizer struct {
	RiskBudgetPct  float64 // 每笔交易允许损失的组合比例
	RiskMultiplier float64 // 止损距离 = ATR * RiskMultiplier
	MaxPositionPct float64 // 单仓市值 / 组合市值上限
}

// Size 返回股数（向下取整）。entry/atr/portfolioValue 任一不合法时报错。
func (s PositionSizer) Size(entryPrice, atr, portfolioValue float64) (int64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("position sizer: entry price must be > 0")
	}
	if atr <= 0 {
		return 0, fmt.Errorf("position sizer: ATR must be > 0")
	}
	if portfolioValue <= 0 {
		return 0, fmt.Errorf("position sizer: portfolio value must be > 0")
	}
	entry := decimal.NewFromFloat(entryPrice)
	value := decimal.NewFromFloat(portfolioValue)
	stopDistance := decimal.NewFromFloat(atr).Mul(decimal.NewFromFloat(s.RiskMultiplier))
	if stopDistance.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("position sizer: risk multiplier must be > 0")
	}
	riskBudget := value.Mul(decimal.NewFromFloat(s.RiskBudgetPct))
	shares := riskBudget.Div(stopDistance).Floor()

	// 市值封顶：position value ≤ MaxPositionPct × portfolioValue
	maxValue := value.Mul(decimal.NewFromFloat(s.MaxPositionPct))
	maxShares := maxValue.Div(entry).Floor()
	if shares.GreaterThan(maxShares) {
		shares = maxShares
	}
	if shares.LessThan(decimal.Zero) {
		shares = decimal.Zero
	}
	return shares.IntPart(), nil
}

// PortfolioHeat 计算组合在险资金占比：Σ(入场到止损的风险×数量) / 组合市值。
func PortfolioHeat(snapshot types.PortfolioSnapshot) float64 {
	if snapshot.Value <= 0 {
		return 0
	}
	atRisk := decimal.Zero
	for _, p := range snapshot.Positions {
		atRisk = atRisk.Add(decimal.NewFromFloat(p.RiskAmount()))
	}
	heat := atRisk.Div(decimal.NewFromFloat(snapshot.Value))
	f, _ := heat.Float64()
	return f
}
