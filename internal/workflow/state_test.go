package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/internal/signal"
	"tradecouncil/internal/types"
)

func TestMergeRetryCountMonotonic(t *testing.T) {
	st := &State{RetryCount: 2}
	st.merge(Update{RetryCount: intPtr(1)})
	assert.Equal(t, 2, st.RetryCount)
	st.merge(Update{RetryCount: intPtr(3)})
	assert.Equal(t, 3, st.RetryCount)
}

func TestMergeSignalsKeyedBySource(t *testing.T) {
	st := &State{}
	st.merge(Update{Signals: []signal.Signal{
		{Source: signal.SourceTechnical, Decision: signal.ActionBuy, Confidence: 0.7},
	}})
	st.merge(Update{Signals: []signal.Signal{
		{Source: signal.SourceTechnical, Decision: signal.ActionSell, Confidence: 0.6},
		{Source: signal.SourceMood, Decision: signal.ActionHold, Confidence: 0.4},
	}})

	require.Len(t, st.Signals, 2)
	assert.Equal(t, signal.ActionSell, st.Signals[signal.SourceTechnical].Decision)
}

func TestMergeClampsSignalConfidence(t *testing.T) {
	st := &State{}
	st.merge(Update{Signals: []signal.Signal{
		{Source: signal.SourceMood, Decision: signal.ActionBuy, Confidence: 1.8},
	}})
	assert.Equal(t, 1.0, st.Signals[signal.SourceMood].Confidence)
}

func TestMergeDegradesInvalidSignal(t *testing.T) {
	st := &State{}
	st.merge(Update{Signals: []signal.Signal{
		{Source: signal.SourceRisk, Decision: "MAYBE", Confidence: 0.5},
	}})

	got := st.Signals[signal.SourceRisk]
	assert.Equal(t, signal.ActionHold, got.Decision)
	assert.Zero(t, got.Confidence)
}

func TestMergeConfidenceClamped(t *testing.T) {
	st := &State{}
	st.merge(Update{Confidence: floatPtr(-0.2)})
	assert.Zero(t, st.Confidence)
	st.merge(Update{Confidence: floatPtr(1.2)})
	assert.Equal(t, 1.0, st.Confidence)
}

func TestMergeMapsUnionNewestWins(t *testing.T) {
	st := &State{}
	st.merge(Update{MarketMeta: map[string]any{"venue": "paper", "lag": 1}})
	st.merge(Update{MarketMeta: map[string]any{"lag": 2}})

	assert.Equal(t, "paper", st.MarketMeta["venue"])
	assert.Equal(t, 2, st.MarketMeta["lag"])
}

func TestMergePortfolioUnions(t *testing.T) {
	st := &State{}
	st.merge(Update{Portfolio: &types.PortfolioSnapshot{
		Value: 100000, Cash: 50000,
		Positions:      map[string]types.Position{"AAPL": {Symbol: "AAPL", Quantity: 10, EntryPrice: 150}},
		SectorExposure: map[string]float64{"tech": 1500},
	}})
	st.merge(Update{Portfolio: &types.PortfolioSnapshot{
		Value:     110000,
		Positions: map[string]types.Position{"MSFT": {Symbol: "MSFT", Quantity: 5, EntryPrice: 400}},
	}})

	assert.Equal(t, 110000.0, st.Portfolio.Value)
	assert.Equal(t, 50000.0, st.Portfolio.Cash)
	assert.Len(t, st.Portfolio.Positions, 2)
	assert.Equal(t, 1500.0, st.Portfolio.SectorExposure["tech"])
}

func TestMergeErrOrdering(t *testing.T) {
	st := &State{Err: assert.AnError}
	// 同一更新里 ClearErr 先生效，再写入新错误
	st.merge(Update{ClearErr: true})
	assert.NoError(t, st.Err)

	st.merge(Update{Err: assert.AnError})
	assert.Error(t, st.Err)
}

func TestSignalListFixedOrder(t *testing.T) {
	st := &State{Signals: map[signal.Source]signal.Signal{
		signal.SourceRisk:      {Source: signal.SourceRisk, Decision: signal.ActionHold},
		signal.SourceTechnical: {Source: signal.SourceTechnical, Decision: signal.ActionBuy},
		signal.SourceMood:      {Source: signal.SourceMood, Decision: signal.ActionHold},
	}}

	list := st.SignalList()
	require.Len(t, list, 3)
	assert.Equal(t, signal.SourceTechnical, list[0].Source)
	assert.Equal(t, signal.SourceMood, list[1].Source)
	assert.Equal(t, signal.SourceRisk, list[2].Source)
}
