package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/internal/broker"
	"tradecouncil/internal/config"
	"tradecouncil/internal/debate"
	"tradecouncil/internal/market"
	"tradecouncil/internal/orchestrator"
	"tradecouncil/internal/safety"
	"tradecouncil/internal/signal"
	"tradecouncil/internal/types"
)

type fakeProducer struct {
	src signal.Source
	sig signal.Signal
	err error
}

func (f fakeProducer) Source() signal.Source { return f.src }

func (f fakeProducer) Produce(ctx context.Context, input signal.Input) (signal.Signal, error) {
	if f.err != nil {
		return signal.Signal{}, f.err
	}
	return f.sig, nil
}

func produce(src signal.Source, action signal.Action, conf float64) fakeProducer {
	return fakeProducer{src: src, sig: signal.Signal{Source: src, Decision: action, Confidence: conf, Reasoning: "scripted"}}
}

type fakeGate struct {
	approve  bool
	feedback string
	asked    int
}

func (g *fakeGate) RequestApproval(ctx context.Context, symbol string, action signal.Action, confidence float64, reasoning string) (bool, string) {
	g.asked++
	return g.approve, g.feedback
}

type fakePortfolio struct {
	snapshot types.PortfolioSnapshot
}

func (f fakePortfolio) Snapshot(ctx context.Context) (types.PortfolioSnapshot, float64, error) {
	return f.snapshot, f.snapshot.Value, nil
}

type captureRecorder struct {
	last *State
}

func (r *captureRecorder) RecordDecision(st *State) { r.last = st }

func uptrendSource(bars int) market.SourceFunc {
	return func(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
		out := make([]market.Candle, bars)
		price := 100.0
		for i := range out {
			out[i] = market.Candle{
				OpenTime: int64(i) * 60_000,
				Open:     price,
				High:     price * 1.015,
				Low:      price * 0.99,
				Close:    price,
				Volume:   5000,
			}
			price += 0.2
		}
		return out, nil
	}
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	cfg := config.SafetyConfig{
		RiskBudgetPct:     0.01,
		ATRRiskMultiplier: 2.0,
		MaxPositionPct:    0.20,
		MaxSectorAllocPct: 0.30,
	}
	mgr := safety.NewManager(cfg, nil, nil)
	account := fakePortfolio{snapshot: types.PortfolioSnapshot{Value: 100_000, Cash: 100_000}}
	return Deps{
		Data:          market.NewDataService(uptrendSource(150), market.DataServiceConfig{HistoryBars: 150}),
		Technical:     produce(signal.SourceTechnical, signal.ActionBuy, 0.9),
		Sentiment:     produce(signal.SourceSentiment, signal.ActionBuy, 0.9),
		Risk:          produce(signal.SourceRisk, signal.ActionHold, 0.9),
		Debate:        debate.NewEngine(nil),
		DebatePolicy:  debate.PolicyDisagree,
		Orchestrator:  orchestrator.New(orchestrator.DefaultWeights(), config.DefaultMinConfidence, mgr),
		Safety:        mgr,
		Gate:          &fakeGate{approve: true, feedback: "ok"},
		Broker:        broker.NewPaper(),
		Portfolio:     account,
		Recorder:      &captureRecorder{},
		Sector:        func(string) string { return "crypto" },
		AutoThreshold: 0.5,
		MaxRetries:    3,
		BrokerRetries: 1,
	}
}

func TestRunnerHappyBuyPath(t *testing.T) {
	deps := testDeps(t)
	rec := &captureRecorder{}
	deps.Recorder = rec
	r := NewRunner(deps)

	st, err := r.Run(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)
	require.NoError(t, st.Err)

	// BUY 0.9*0.4 + 0.9*0.3 = 0.63，超过自动执行阈值 0.5，跳过人工审批
	assert.Equal(t, signal.ActionBuy, st.FinalAction)
	assert.InDelta(t, 0.63, st.Confidence, 1e-9)
	assert.Nil(t, st.HumanApproved)
	assert.Equal(t, "FILLED", st.ExecutionStatus)
	require.NotNil(t, st.ExecutedTrade)
	assert.Positive(t, st.ExecutedTrade.Quantity)
	assert.NotEmpty(t, st.OrderID)
	assert.Nil(t, st.Debate) // 两路信号一致，无辩论

	require.NotNil(t, rec.last)
	assert.Equal(t, st.WorkflowID, rec.last.WorkflowID)
}

func TestRunnerRetriesThenAbortsToHold(t *testing.T) {
	deps := testDeps(t)
	failing := market.SourceFunc(func(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
		return nil, fmt.Errorf("upstream unavailable")
	})
	deps.Data = market.NewDataService(failing, market.DataServiceConfig{BreakerThreshold: 100})
	r := NewRunner(deps)

	st, err := r.Run(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)

	assert.Equal(t, deps.MaxRetries, st.RetryCount)
	require.Error(t, st.Err)
	assert.Equal(t, signal.ActionHold, st.FinalAction)
	require.NotNil(t, st.Decision)
	assert.Contains(t, st.Decision.Reasoning, "aborted after 3 retries")
	assert.Empty(t, st.ExecutionStatus)
}

func TestRunnerDebateOnDisagreement(t *testing.T) {
	deps := testDeps(t)
	deps.Sentiment = produce(signal.SourceSentiment, signal.ActionSell, 0.6)
	r := NewRunner(deps)

	st, err := r.Run(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)
	require.NotNil(t, st.Debate)
	assert.NotEmpty(t, st.Debate.Winner)
	// 辩论只进状态，裁决仍由加权投票给出
	require.NotNil(t, st.Decision)
}

func TestRunnerHumanRejectionHolds(t *testing.T) {
	deps := testDeps(t)
	deps.AutoThreshold = 0.75 // 0.63 < 0.75 进入人工审批
	gate := &fakeGate{approve: false, feedback: "REJECTED: too risky"}
	deps.Gate = gate
	r := NewRunner(deps)

	st, err := r.Run(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)

	assert.Equal(t, 1, gate.asked)
	require.NotNil(t, st.HumanApproved)
	assert.False(t, *st.HumanApproved)
	assert.Equal(t, "REJECTED: too risky", st.HumanFeedback)
	assert.Equal(t, signal.ActionHold, st.FinalAction)
	assert.Empty(t, st.ExecutionStatus)
	assert.Nil(t, st.ExecutedTrade)
}

func TestRunnerHumanApprovalExecutes(t *testing.T) {
	deps := testDeps(t)
	deps.AutoThreshold = 0.75
	gate := &fakeGate{approve: true, feedback: "go ahead"}
	deps.Gate = gate
	r := NewRunner(deps)

	st, err := r.Run(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)

	assert.Equal(t, 1, gate.asked)
	require.NotNil(t, st.HumanApproved)
	assert.True(t, *st.HumanApproved)
	assert.Equal(t, signal.ActionBuy, st.FinalAction)
	assert.Equal(t, "FILLED", st.ExecutionStatus)
}

func TestRunnerSellWithoutPositionSkips(t *testing.T) {
	deps := testDeps(t)
	deps.Technical = produce(signal.SourceTechnical, signal.ActionSell, 0.9)
	deps.Sentiment = produce(signal.SourceSentiment, signal.ActionSell, 0.9)
	r := NewRunner(deps)

	st, err := r.Run(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)

	assert.Equal(t, signal.ActionSell, st.FinalAction)
	assert.Equal(t, "SKIPPED", st.ExecutionStatus)
	assert.Nil(t, st.ExecutedTrade)
}

func TestRunnerSellResolvesQuantityFromPosition(t *testing.T) {
	deps := testDeps(t)
	deps.Technical = produce(signal.SourceTechnical, signal.ActionSell, 0.9)
	deps.Sentiment = produce(signal.SourceSentiment, signal.ActionSell, 0.9)
	deps.Portfolio = fakePortfolio{snapshot: types.PortfolioSnapshot{
		Value: 100_000,
		Cash:  50_000,
		Positions: map[string]types.Position{
			"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 40, EntryPrice: 110, CurrentPrice: 120},
		},
	}}
	r := NewRunner(deps)

	st, err := r.Run(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)

	assert.Equal(t, signal.ActionSell, st.FinalAction)
	assert.Equal(t, "FILLED", st.ExecutionStatus)
	require.NotNil(t, st.ExecutedTrade)
	assert.Equal(t, int64(40), st.ExecutedTrade.Quantity)
}

func TestRunnerBrokerFailureMarksFailed(t *testing.T) {
	deps := testDeps(t)
	paper := broker.NewPaper()
	paper.FailNext = 10
	deps.Broker = paper
	deps.BrokerRetries = 1
	r := NewRunner(deps)

	st, err := r.Run(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)

	assert.Equal(t, "FAILED", st.ExecutionStatus)
	require.NotNil(t, st.ExecutedTrade)
	assert.Contains(t, st.ExecutedTrade.Cause, "simulated outage")
}

func TestRunnerAllProducersDegradedHolds(t *testing.T) {
	deps := testDeps(t)
	deps.Technical = fakeProducer{src: signal.SourceTechnical, err: fmt.Errorf("down")}
	deps.Sentiment = fakeProducer{src: signal.SourceSentiment, err: fmt.Errorf("down")}
	deps.Risk = fakeProducer{src: signal.SourceRisk, err: fmt.Errorf("down")}
	r := NewRunner(deps)

	st, err := r.Run(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)

	assert.Equal(t, signal.ActionHold, st.FinalAction)
	assert.Zero(t, st.Confidence)
	require.NotNil(t, st.Decision)
	assert.Contains(t, st.Decision.Reasoning, "insufficient signals")
}
