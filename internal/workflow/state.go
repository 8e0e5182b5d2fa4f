package workflow

import (
	"tradecouncil/internal/debate"
	"tradecouncil/internal/market"
	"tradecouncil/internal/orchestrator"
	"tradecouncil/internal/signal"
	"tradecouncil/internal/types"

	"tradecouncil/internal/broker"
)

// 中文说明：
// State 是贯穿所有步骤的唯一可变上下文。每个工作流实例独占一份副本；
// 同一超步内的并发步骤只返回部分更新（Update），由引擎按字段规则合并。

// State 工作流状态。
type State struct {
	// 身份（最新覆盖）
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	WorkflowID string `json:"workflow_id"`
	Iteration  int    `json:"iteration"`
	RetryCount int    `json:"retry_count"`

	// 账户画像
	Portfolio     types.PortfolioSnapshot `json:"portfolio"`
	DayStartValue float64                 `json:"day_start_value,omitempty"`

	// 行情与指标
	Candles    []market.Candle          `json:"-"`
	Indicators market.IndicatorSnapshot `json:"indicators"`
	Mood       market.MoodData          `json:"mood"`
	MoodOK     bool                     `json:"mood_ok"`
	MarketMeta map[string]any           `json:"market_meta,omitempty"`

	// 产出方信号（按来源键合并）
	Signals map[signal.Source]signal.Signal `json:"signals,omitempty"`

	// 辩论与决策
	Debate      *debate.Result               `json:"debate,omitempty"`
	Decision    *orchestrator.FinalDecision  `json:"decision,omitempty"`
	FinalAction signal.Action                `json:"final_action,omitempty"`
	Confidence  float64                      `json:"confidence"`

	// 执行
	ExecutedTrade   *broker.Trade `json:"executed_trade,omitempty"`
	OrderID         string        `json:"order_id,omitempty"`
	ExecutionStatus string        `json:"execution_status,omitempty"`

	// 人工审批（三态：nil/true/false）
	HumanApproved *bool  `json:"human_approved,omitempty"`
	HumanFeedback string `json:"human_feedback,omitempty"`

	// 控制
	CurrentNode string `json:"current_node,omitempty"`
	Err         error  `json:"-"`
}

// SignalOf 取某来源的信号。
func (s *State) SignalOf(source signal.Source) (signal.Signal, bool) {
	sig, ok := s.Signals[source]
	return sig, ok
}

// SignalList 按固定顺序返回已有信号（technical, sentiment, mood, risk）。
func (s *State) SignalList() []signal.Signal {
	order := []signal.Source{signal.SourceTechnical, signal.SourceSentiment, signal.SourceMood, signal.SourceRisk}
	out := make([]signal.Signal, 0, len(s.Signals))
	for _, src := range order {
		if sig, ok := s.Signals[src]; ok {
			out = append(out, sig)
		}
	}
	return out
}

// Input 把状态折叠成产出方共享的快照。
func (s *State) Input() signal.Input {
	return signal.Input{
		Symbol:     s.Symbol,
		Timeframe:  s.Timeframe,
		Candles:    s.Candles,
		Indicators: s.Indicators,
		Mood:       s.Mood,
		MoodOK:     s.MoodOK,
		Portfolio:  s.Portfolio,
	}
}

// Update 是一个步骤返回的部分状态更新。nil 字段表示不修改。
type Update struct {
	Iteration  *int
	RetryCount *int

	Portfolio     *types.PortfolioSnapshot
	DayStartValue *float64

	Candles    []market.Candle
	Indicators *market.IndicatorSnapshot
	Mood       *market.MoodData
	MoodOK     *bool
	MarketMeta map[string]any

	Signals []signal.Signal

	Debate      *debate.Result
	Decision    *orchestrator.FinalDecision
	FinalAction signal.Action
	Confidence  *float64

	ExecutedTrade   *broker.Trade
	OrderID         *string
	ExecutionStatus *string

	HumanApproved *bool
	HumanFeedback *string

	Err      error
	ClearErr bool
}

// merge 按字段规则把一个更新并入状态。
// 覆盖类字段取最新；map 按键并集（新键胜出）；信号按来源键合并并夹紧置信度。
func (s *State) merge(u Update) {
	if u.Iteration != nil {
		s.Iteration = *u.Iteration
	}
	if u.RetryCount != nil {
		// retry_count 单调不减，直到新工作流重置
		if *u.RetryCount > s.RetryCount {
			s.RetryCount = *u.RetryCount
		}
	}
	if u.Portfolio != nil {
		s.mergePortfolio(*u.Portfolio)
	}
	if u.DayStartValue != nil {
		s.DayStartValue = *u.DayStartValue
	}
	if u.Candles != nil {
		s.Candles = u.Candles
	}
	if u.Indicators != nil {
		s.Indicators = *u.Indicators
	}
	if u.Mood != nil {
		s.Mood = *u.Mood
	}
	if u.MoodOK != nil {
		s.MoodOK = *u.MoodOK
	}
	if len(u.MarketMeta) > 0 {
		if s.MarketMeta == nil {
			s.MarketMeta = make(map[string]any, len(u.MarketMeta))
		}
		for k, v := range u.MarketMeta {
			s.MarketMeta[k] = v
		}
	}
	for _, sig := range u.Signals {
		sig = sig.Clamp()
		if err := sig.Validate(); err != nil {
			// 非法信号在合并边界降级，而不是污染状态
			sig = signal.Degraded(sig.Source, err)
		}
		if s.Signals == nil {
			s.Signals = make(map[signal.Source]signal.Signal, 4)
		}
		s.Signals[sig.Source] = sig
	}
	if u.Debate != nil {
		s.Debate = u.Debate
	}
	if u.Decision != nil {
		s.Decision = u.Decision
	}
	if u.FinalAction != "" {
		s.FinalAction = u.FinalAction
	}
	if u.Confidence != nil {
		c := *u.Confidence
		if c < 0 {
			c = 0
		}
		if c > 1 {
			c = 1
		}
		s.Confidence = c
	}
	if u.ExecutedTrade != nil {
		s.ExecutedTrade = u.ExecutedTrade
	}
	if u.OrderID != nil {
		s.OrderID = *u.OrderID
	}
	if u.ExecutionStatus != nil {
		s.ExecutionStatus = *u.ExecutionStatus
	}
	if u.HumanApproved != nil {
		s.HumanApproved = u.HumanApproved
	}
	if u.HumanFeedback != nil {
		s.HumanFeedback = *u.HumanFeedback
	}
	if u.ClearErr {
		s.Err = nil
	}
	if u.Err != nil {
		// 最新的错误覆盖旧错误
		s.Err = u.Err
	}
}

// mergePortfolio 浅合并持仓与板块敞口，标量取最新。
func (s *State) mergePortfolio(p types.PortfolioSnapshot) {
	if p.Value > 0 {
		s.Portfolio.Value = p.Value
	}
	if p.Cash > 0 {
		s.Portfolio.Cash = p.Cash
	}
	if len(p.Positions) > 0 {
		if s.Portfolio.Positions == nil {
			s.Portfolio.Positions = make(map[string]types.Position, len(p.Positions))
		}
		for k, v := range p.Positions {
			s.Portfolio.Positions[k] = v
		}
	}
	if len(p.SectorExposure) > 0 {
		if s.Portfolio.SectorExposure == nil {
			s.Portfolio.SectorExposure = make(map[string]float64, len(p.SectorExposure))
		}
		for k, v := range p.SectorExposure {
			s.Portfolio.SectorExposure[k] = v
		}
	}
}

func intPtr(v int) *int            { return &v }
func floatPtr(v float64) *float64  { return &v }
func strPtr(v string) *string      { return &v }
func boolPtr(v bool) *bool         { return &v }
