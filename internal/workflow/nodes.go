package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradecouncil/internal/broker"
	"tradecouncil/internal/debate"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/market"
	"tradecouncil/internal/orchestrator"
	"tradecouncil/internal/safety"
	"tradecouncil/internal/signal"
	"tradecouncil/internal/types"
)

// PortfolioProvider 提供一轮决策开始时的账户画像。
type PortfolioProvider interface {
	Snapshot(ctx context.Context) (types.PortfolioSnapshot, float64, error)
}

// ApprovalGate 是人工审批闸的最小契约。
type ApprovalGate interface {
	RequestApproval(ctx context.Context, symbol string, action signal.Action, confidence float64, reasoning string) (bool, string)
}

// Recorder 把终态决策与成交写入持久层。
type Recorder interface {
	RecordDecision(st *State)
}

// Deps 汇集交易工作流的全部依赖。
type Deps struct {
	Data      *market.DataService
	Mood      *market.MoodService
	Technical signal.Producer
	Sentiment signal.Producer
	MoodProd  signal.Producer
	Risk      signal.Producer

	Debate       *debate.Engine
	DebatePolicy debate.Policy

	Orchestrator *orchestrator.Orchestrator
	Safety       *safety.Manager
	Gate         ApprovalGate
	Broker       broker.Broker
	Portfolio    PortfolioProvider
	Recorder     Recorder

	Sector func(symbol string) string

	AutoThreshold float64
	MaxRetries    int
	BrokerRetries int
}

// Runner 对外的一次性工作流执行器。
type Runner struct {
	deps  Deps
	graph *Graph
}

func NewRunner(deps Deps) *Runner {
	if deps.MaxRetries <= 0 {
		deps.MaxRetries = 3
	}
	if deps.AutoThreshold <= 0 {
		deps.AutoThreshold = 0.75
	}
	r := &Runner{deps: deps}
	r.graph = r.build()
	return r
}

// Run 为单个标的跑完整个决策工作流。
// 无论途中发生什么，终态都带非空的 final_action 与说明。
func (r *Runner) Run(ctx context.Context, symbol, timeframe string) (*State, error) {
	st := &State{
		Symbol:     symbol,
		Timeframe:  timeframe,
		WorkflowID: uuid.NewString(),
	}
	st, err := r.graph.Run(ctx, st)
	if st.FinalAction == "" {
		st.FinalAction = signal.ActionHold
	}
	if st.Decision == nil {
		reason := "workflow ended without a vote"
		if st.Err != nil {
			reason = fmt.Sprintf("aborted after %d retries: %v", st.RetryCount, st.Err)
		}
		st.Decision = &orchestrator.FinalDecision{
			Symbol:    st.Symbol,
			Action:    st.FinalAction,
			Reasoning: reason,
			DecidedAt: time.Now(),
		}
	}
	if st.Err != nil {
		logger.Warnf("workflow %s ended with error: %v", st.WorkflowID, st.Err)
	}
	if r.deps.Recorder != nil {
		r.deps.Recorder.RecordDecision(st)
	}
	return st, err
}

func (r *Runner) build() *Graph {
	g := NewGraph(NodeStart)

	g.AddStep(NodeStart, r.stepStart, func(st *State) []string {
		return []string{NodeFetchData}
	})

	g.AddStep(NodeFetchData, r.stepFetchData, func(st *State) []string {
		if st.Err != nil {
			if st.RetryCount < r.deps.MaxRetries {
				return []string{NodeRetry}
			}
			return []string{NodeEnd}
		}
		return []string{NodeMood, NodeTechnical, NodeSentiment}
	})

	// 三个产出方共用同一条后继谓词：在整轮合并后的状态上判断分歧。
	// 集合前沿保证 debate/risk 每轮只执行一次（汇聚屏障）。
	producerEdge := func(st *State) []string {
		if r.shouldDebate(st) {
			return []string{NodeDebate}
		}
		return []string{NodeRisk}
	}
	g.AddStep(NodeMood, r.producerStep(func() signal.Producer { return r.deps.MoodProd }), producerEdge)
	g.AddStep(NodeTechnical, r.producerStep(func() signal.Producer { return r.deps.Technical }), producerEdge)
	g.AddStep(NodeSentiment, r.producerStep(func() signal.Producer { return r.deps.Sentiment }), producerEdge)

	g.AddStep(NodeDebate, r.stepDebate, func(st *State) []string {
		return []string{NodeRisk}
	})

	g.AddStep(NodeRisk, r.producerStep(func() signal.Producer { return r.deps.Risk }), func(st *State) []string {
		return []string{NodeDecision}
	})

	g.AddStep(NodeDecision, r.stepDecision, func(st *State) []string {
		if st.Confidence < r.deps.AutoThreshold {
			return []string{NodeHumanReview}
		}
		return []string{NodeExecute}
	})

	g.AddStep(NodeHumanReview, r.stepHumanReview, func(st *State) []string {
		switch st.FinalAction {
		case signal.ActionBuy, signal.ActionSell:
			return []string{NodeExecute}
		}
		return []string{NodeEnd}
	})

	g.AddStep(NodeExecute, r.stepExecute, func(st *State) []string {
		return []string{NodeEnd}
	})

	g.AddStep(NodeRetry, r.stepRetry, func(st *State) []string {
		return []string{NodeFetchData}
	})

	return g
}

func (r *Runner) stepStart(ctx context.Context, st *State) (Update, error) {
	return Update{Iteration: intPtr(st.Iteration)}, nil
}

// stepFetchData 拉取 K 线、指标、情绪指数与账户画像。
// 任一关键数据缺失都会走重试分支。
func (r *Runner) stepFetchData(ctx context.Context, st *State) (Update, error) {
	candles, err := r.deps.Data.History(ctx, st.Symbol, st.Timeframe)
	if err != nil {
		return Update{}, err
	}
	indicators, err := r.deps.Data.Indicators(ctx, st.Symbol, st.Timeframe)
	if err != nil {
		return Update{}, err
	}
	update := Update{
		Candles:    candles,
		Indicators: &indicators,
		MarketMeta: map[string]any{"fetched_at": time.Now().UTC().Format(time.RFC3339)},
	}
	if r.deps.Mood != nil {
		r.deps.Mood.RefreshIfStale(ctx)
		if mood, ok := r.deps.Mood.Get(); ok {
			update.Mood = &mood
			update.MoodOK = boolPtr(true)
		}
	}
	if r.deps.Portfolio != nil {
		snapshot, dayStart, perr := r.deps.Portfolio.Snapshot(ctx)
		if perr != nil {
			return Update{}, fmt.Errorf("%w: portfolio snapshot: %v", market.ErrDataUnavailable, perr)
		}
		update.Portfolio = &snapshot
		update.DayStartValue = floatPtr(dayStart)
		r.deps.Safety.Observe(snapshot, dayStart)
	}
	return update, nil
}

// producerStep 包装任意产出方：失败降级为 HOLD/0 信号，不失败整轮。
func (r *Runner) producerStep(get func() signal.Producer) StepFunc {
	return func(ctx context.Context, st *State) (Update, error) {
		p := get()
		if p == nil {
			return Update{}, nil
		}
		sig, err := p.Produce(ctx, st.Input())
		if err != nil {
			logger.Warnf("workflow %s producer %s degraded: %v", st.WorkflowID, p.Source(), err)
			sig = signal.Degraded(p.Source(), err)
		}
		return Update{Signals: []signal.Signal{sig}}, nil
	}
}

func (r *Runner) shouldDebate(st *State) bool {
	tech, hasTech := st.SignalOf(signal.SourceTechnical)
	sent, hasSent := st.SignalOf(signal.SourceSentiment)
	var techPtr, sentPtr *signal.Signal
	if hasTech {
		techPtr = &tech
	}
	if hasSent {
		sentPtr = &sent
	}
	return debate.ShouldDebate(r.deps.DebatePolicy, techPtr, sentPtr)
}

func (r *Runner) stepDebate(ctx context.Context, st *State) (Update, error) {
	if r.deps.Debate == nil {
		return Update{}, nil
	}
	result, err := r.deps.Debate.Run(ctx, st.Input(), st.SignalList())
	if err != nil {
		// 辩论失败不致命：留空结果继续走风控与投票
		logger.Warnf("workflow %s debate failed: %v", st.WorkflowID, err)
		return Update{}, nil
	}
	logger.Infof("workflow %s debate: winner=%s rec=%s (%s)", st.WorkflowID, result.Winner, result.Recommendation, result.JudgeReasoning)
	return Update{Debate: &result}, nil
}

// stepDecision 合并信号得出最终决策。信号不足时以 HOLD 安全收束。
func (r *Runner) stepDecision(ctx context.Context, st *State) (Update, error) {
	signals := st.SignalList()
	usable := 0
	for _, s := range signals {
		if s.Confidence > 0 || s.Decision == signal.ActionVeto {
			usable++
		}
	}
	if usable == 0 {
		decision := &orchestrator.FinalDecision{
			Symbol:    st.Symbol,
			Action:    signal.ActionHold,
			Reasoning: "insufficient signals: all producers degraded",
			DecidedAt: time.Now(),
		}
		return Update{Decision: decision, FinalAction: signal.ActionHold, Confidence: floatPtr(0)}, nil
	}
	sector := ""
	if r.deps.Sector != nil {
		sector = r.deps.Sector(st.Symbol)
	}
	decision := r.deps.Orchestrator.Decide(signals, orchestrator.PortfolioContext{
		Symbol:   st.Symbol,
		Sector:   sector,
		Candles:  st.Candles,
		ATR:      st.Indicators.ATR,
		Price:    st.Indicators.Close,
		Snapshot: st.Portfolio,
	})
	return Update{
		Decision:    &decision,
		FinalAction: decision.Action,
		Confidence:  floatPtr(decision.Confidence),
	}, nil
}

// stepHumanReview 挂起等待人工批复；拒绝或超时降级为 HOLD。
func (r *Runner) stepHumanReview(ctx context.Context, st *State) (Update, error) {
	if st.FinalAction != signal.ActionBuy && st.FinalAction != signal.ActionSell {
		return Update{HumanFeedback: strPtr("no trade to review")}, nil
	}
	reasoning := ""
	if st.Decision != nil {
		reasoning = st.Decision.Reasoning
	}
	approved, feedback := r.deps.Gate.RequestApproval(ctx, st.Symbol, st.FinalAction, st.Confidence, reasoning)
	update := Update{
		HumanApproved: boolPtr(approved),
		HumanFeedback: strPtr(feedback),
	}
	if !approved {
		update.FinalAction = signal.ActionHold
	}
	return update, nil
}

// stepExecute 下单执行。HOLD 不触发任何订单。
func (r *Runner) stepExecute(ctx context.Context, st *State) (Update, error) {
	if st.FinalAction != signal.ActionBuy && st.FinalAction != signal.ActionSell {
		return Update{ExecutionStatus: strPtr("SKIPPED")}, nil
	}
	quantity := int64(0)
	if st.Decision != nil {
		quantity = st.Decision.Quantity
	}
	if st.FinalAction == signal.ActionSell {
		// SELL 数量按持仓解析
		if pos, ok := st.Portfolio.Positions[st.Symbol]; ok && pos.Quantity > 0 {
			quantity = int64(pos.Quantity)
		}
		if quantity <= 0 {
			return Update{ExecutionStatus: strPtr("SKIPPED"), HumanFeedback: strPtr("no position to sell")}, nil
		}
	}
	if quantity <= 0 {
		return Update{ExecutionStatus: strPtr("SKIPPED")}, nil
	}
	req := broker.OrderRequest{
		Symbol:   st.Symbol,
		Action:   st.FinalAction,
		Quantity: quantity,
		Type:     "market",
		Price:    st.Indicators.Close,
	}
	result, err := broker.Execute(ctx, r.deps.Broker, req, r.deps.BrokerRetries)
	if err != nil {
		status := "FAILED"
		return Update{
			ExecutionStatus: strPtr(status),
			ExecutedTrade: &broker.Trade{
				Symbol:    st.Symbol,
				Action:    st.FinalAction,
				Quantity:  quantity,
				Status:    status,
				Cause:     err.Error(),
				CreatedAt: time.Now(),
			},
		}, nil
	}
	trade := &broker.Trade{
		OrderID:   result.OrderID,
		Symbol:    st.Symbol,
		Action:    st.FinalAction,
		Quantity:  quantity,
		Price:     result.FillPrice,
		Status:    result.Status,
		CreatedAt: result.FilledAt,
	}
	return Update{
		ExecutedTrade:   trade,
		OrderID:         strPtr(result.OrderID),
		ExecutionStatus: strPtr(result.Status),
	}, nil
}

// stepRetry 清错并回到取数，计数封顶由 fetch_data 的边控制。
func (r *Runner) stepRetry(ctx context.Context, st *State) (Update, error) {
	logger.Infof("workflow %s retrying after error: %v (retry %d/%d)", st.WorkflowID, st.Err, st.RetryCount+1, r.deps.MaxRetries)
	return Update{
		RetryCount: intPtr(st.RetryCount + 1),
		Iteration:  intPtr(st.Iteration + 1),
		ClearErr:   true,
	}, nil
}
