package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/internal/types"
)

func TestSizerBasic(t *testing.T) {
	s := PositionSizer{RiskBudgetPct: 0.01, RiskMultiplier: 2.0, MaxPositionPct: 0.20}

	// 风险预算 1000，止损距离 10 → 100 股；市值 10000 未触顶
	shares, err := s.Size(100, 5, 100_000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), shares)
}

func TestSizerCapsAtMaxPosition(t *testing.T) {
	s := PositionSizer{RiskBudgetPct: 0.05, RiskMultiplier: 1.0, MaxPositionPct: 0.10}

	// 风险预算 5000 / 止损 1 = 5000 股，但市值上限 10000/100 = 100 股
	shares, err := s.Size(100, 1, 100_000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), shares)
}

func TestSizerCapPropertyNeverExceeded(t *testing.T) {
	s := PositionSizer{RiskBudgetPct: 0.02, RiskMultiplier: 2.0, MaxPositionPct: 0.20}
	for _, tc := range []struct{ entry, atr, value float64 }{
		{10, 0.1, 50_000},
		{250, 12, 1_000_000},
		{3.7, 0.9, 9_999},
		{42_000, 800, 250_000},
	} {
		shares, err := s.Size(tc.entry, tc.atr, tc.value)
		require.NoError(t, err)
		assert.LessOrEqual(t, float64(shares)*tc.entry, tc.value*s.MaxPositionPct+tc.entry,
			"position value must stay under the cap (entry=%v atr=%v value=%v)", tc.entry, tc.atr, tc.value)
	}
}

func TestSizerRejectsBadInputs(t *testing.T) {
	s := PositionSizer{RiskBudgetPct: 0.01, RiskMultiplier: 2.0, MaxPositionPct: 0.20}
	_, err := s.Size(0, 5, 100_000)
	assert.Error(t, err)
	_, err = s.Size(100, 0, 100_000)
	assert.Error(t, err)
	_, err = s.Size(100, 5, 0)
	assert.Error(t, err)
}

func TestPortfolioHeat(t *testing.T) {
	snap := types.PortfolioSnapshot{
		Value: 100_000,
		Positions: map[string]types.Position{
			"AAA": {Symbol: "AAA", Quantity: 100, EntryPrice: 50, StopPrice: 45, CurrentPrice: 50},
			"BBB": {Symbol: "BBB", Quantity: 10, EntryPrice: 200, StopPrice: 180, CurrentPrice: 200},
		},
	}
	// AAA 风险 100*(50-45)=500, BBB 风险 10*(200-180)=200 → 700/100000
	assert.InDelta(t, 0.007, PortfolioHeat(snap), 1e-9)
}

func TestPortfolioHeatEmpty(t *testing.T) {
	assert.Zero(t, PortfolioHeat(types.PortfolioSnapshot{}))
}
