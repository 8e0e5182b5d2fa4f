package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tradecouncil/internal/config"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/market"
	"tradecouncil/internal/safety"
	"tradecouncil/internal/signal"
	"tradecouncil/internal/types"
)

// 中文说明：
// 信号合并引擎：安全闸 → VETO 短路 → 加权投票 → BUY 复核 → 波动率定仓。
// Decide 是纯读操作：不写安全层状态，同一输入必然给出同一决策。

const vetoConfidence = 0.95

// Weights 各来源的投票权重。mood 默认 0（仅展示，不计票），可经配置开启。
type Weights struct {
	Technical float64
	Sentiment float64
	Risk      float64
	Mood      float64
}

func DefaultWeights() Weights {
	return Weights{
		Technical: config.DefaultTechnicalWeight,
		Sentiment: config.DefaultSentimentWeight,
		Risk:      config.DefaultRiskWeight,
	}
}

func (w Weights) of(source signal.Source) float64 {
	switch source {
	case signal.SourceTechnical:
		return w.Technical
	case signal.SourceSentiment:
		return w.Sentiment
	case signal.SourceRisk:
		return w.Risk
	case signal.SourceMood:
		return w.Mood
	}
	return 0
}

// PortfolioContext 是 Decide 需要的账户与行情上下文。
type PortfolioContext struct {
	Symbol   string
	Sector   string
	Candles  []market.Candle
	ATR      float64
	Price    float64
	Snapshot types.PortfolioSnapshot
}

type Orchestrator struct {
	weights       Weights
	minConfidence float64
	safety        *safety.Manager
	nowFn         func() time.Time
}

func New(weights Weights, minConfidence float64, mgr *safety.Manager) *Orchestrator {
	if minConfidence <= 0 {
		minConfidence = config.DefaultMinConfidence
	}
	return &Orchestrator{
		weights:       weights,
		minConfidence: minConfidence,
		safety:        mgr,
		nowFn:         time.Now,
	}
}

// Decide 将一组信号合并成最终决策。
func (o *Orchestrator) Decide(signals []signal.Signal, pctx PortfolioContext) FinalDecision {
	decision := FinalDecision{
		Symbol:    pctx.Symbol,
		Action:    signal.ActionHold,
		Signals:   signals,
		DecidedAt: o.nowFn(),
	}

	// 1. 安全总闸：熔断/时段/热度，挡下则完全绕过投票
	if ok, reason := o.safety.TradePermitted(pctx.Snapshot); !ok {
		decision.Confidence = 0
		decision.SafetyBlocked = true
		decision.BlockReason = reason
		decision.Reasoning = fmt.Sprintf("safety blocked: %s", reason)
		logger.Auditf("safety_block", "%s: %s", pctx.Symbol, reason)
		return decision
	}

	// 2. VETO 短路
	for _, s := range signals {
		if s.Decision == signal.ActionVeto {
			decision.Confidence = vetoConfidence
			decision.Reasoning = fmt.Sprintf("vetoed by %s: %s", s.Source, s.Reasoning)
			return decision
		}
	}

	// 3. 加权投票
	action, confidence, breakdown := o.tally(signals)
	decision.Action = action
	decision.Confidence = confidence
	decision.Reasoning = summarize(signals, breakdown, action)

	// 4. BUY 复核：过滤器、单仓与板块限额
	if action == signal.ActionBuy {
		quantity := int64(0)
		if pctx.Price > 0 && pctx.ATR > 0 && pctx.Snapshot.Value > 0 {
			base, err := o.safety.Size(pctx.Price, pctx.ATR, pctx.Snapshot.Value)
			if err != nil {
				decision.Action = signal.ActionHold
				decision.Reasoning = fmt.Sprintf("sizing failed: %v; %s", err, decision.Reasoning)
				return decision
			}
			quantity = scaleByConfidence(base, confidence)
		}
		if ok, reason := o.safety.CheckBuy(pctx.Symbol, pctx.Sector, pctx.Candles, quantity, pctx.Snapshot); !ok {
			decision.Action = signal.ActionHold
			decision.SafetyBlocked = true
			decision.BlockReason = reason
			decision.Reasoning = fmt.Sprintf("buy downgraded to hold: %s; %s", reason, decision.Reasoning)
			logger.Auditf("safety_block", "%s buy blocked: %s", pctx.Symbol, reason)
			return decision
		}
		decision.Quantity = quantity
	}
	// SELL 数量由执行步骤按持仓解析，这里不定仓
	return decision
}

// tally 统计加权票。置信度 = 胜出票 / 参与投票的总权重；
// BUY/SELL 还需在已投票数中占到 minConfidence 的份额，否则回退 HOLD。
func (o *Orchestrator) tally(signals []signal.Signal) (signal.Action, float64, VoteBreakdown) {
	votes := map[signal.Action]float64{}
	totalWeight := 0.0
	votesSum := 0.0
	for _, s := range signals {
		w := o.weights.of(s.Source)
		if w <= 0 {
			continue
		}
		action := s.Decision
		if action == signal.ActionVeto || action == "" {
			continue
		}
		votes[action] += s.Confidence * w
		votesSum += s.Confidence * w
		totalWeight += w
	}
	breakdown := VoteBreakdown{Votes: votes, TotalWeight: totalWeight, Threshold: o.minConfidence}
	if totalWeight <= 0 || votesSum <= 0 {
		return signal.ActionHold, 0, breakdown
	}

	// argmax；同票 HOLD 胜出（保守缺省）
	actions := make([]signal.Action, 0, len(votes))
	for a := range votes {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	best := signal.ActionHold
	bestScore := votes[signal.ActionHold]
	for _, a := range actions {
		if a == signal.ActionHold {
			continue
		}
		if votes[a] > bestScore {
			best = a
			bestScore = votes[a]
		}
	}
	confidence := clamp01(bestScore / totalWeight)
	if best == signal.ActionHold {
		return signal.ActionHold, confidence, breakdown
	}
	// 主导度检查：胜出动作需占已投权重票的 minConfidence 以上
	if bestScore/votesSum < o.minConfidence {
		return signal.ActionHold, confidence, breakdown
	}
	return best, confidence, breakdown
}

// scaleByConfidence 按置信度在基础仓位的 50%~100% 之间线性缩放
// （confidence 0.4 → 50%，1.0 → 100%，区间外截断）。
func scaleByConfidence(base int64, confidence float64) int64 {
	if base <= 0 {
		return 0
	}
	factor := 0.5 + (confidence-0.4)/(1.0-0.4)*0.5
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 1.0 {
		factor = 1.0
	}
	return int64(float64(base) * factor)
}

func summarize(signals []signal.Signal, breakdown VoteBreakdown, action signal.Action) string {
	var parts []string
	for _, s := range signals {
		parts = append(parts, fmt.Sprintf("%s=%s(%.2f)", s.Source, s.Decision, s.Confidence))
	}
	return fmt.Sprintf("weighted vote -> %s; signals: %s", action, strings.Join(parts, ", "))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
