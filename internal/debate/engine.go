package debate

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"tradecouncil/internal/logger"
	"tradecouncil/internal/oracle"
	"tradecouncil/internal/signal"
)

// 中文说明：
// 辩论子协议：多空两位辩手并发立论，仲裁者裁定胜负。
// oracle 不可用时走确定性兜底：自报置信度高者胜，持平判 HOLD。

type Engine struct {
	svc *oracle.Service
}

func NewEngine(svc *oracle.Service) *Engine {
	return &Engine{svc: svc}
}

// Policy 决定是否触发辩论。
type Policy string

const (
	PolicyDisagree Policy = "disagree" // 技术与情绪分歧时触发
	PolicyAlways   Policy = "always"
	PolicyNever    Policy = "never"
)

// ShouldDebate 按策略与两路信号判断是否进入辩论。
func ShouldDebate(policy Policy, technical, sentiment *signal.Signal) bool {
	switch policy {
	case PolicyAlways:
		return true
	case PolicyNever:
		return false
	default:
		if technical == nil || sentiment == nil {
			return false
		}
		return technical.Decision != sentiment.Decision
	}
}

// Run 执行一轮完整辩论。永不返回错误之外的 panic；oracle 故障自动兜底。
func (e *Engine) Run(ctx context.Context, input signal.Input, signals []signal.Signal) (Result, error) {
	var bull, bear Case
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		bull = e.argue(egCtx, StanceBull, input, signals)
		return nil
	})
	eg.Go(func() error {
		bear = e.argue(egCtx, StanceBear, input, signals)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Result{}, err
	}
	return e.arbitrate(ctx, bull, bear), nil
}

const arguerSystemPrompt = `You are a %s-side market analyst in a structured debate. ` +
	`Argue your assigned stance as persuasively as the evidence allows. ` +
	`Answer with one JSON object: {"stance": "%s", "confidence": 0..1, ` +
	`"reasoning": "<one-line thesis>", "arguments": ["...", "..."]}`

func (e *Engine) argue(ctx context.Context, stance Stance, input signal.Input, signals []signal.Signal) Case {
	if e.svc.Available() {
		system := fmt.Sprintf(arguerSystemPrompt, stance, stance)
		verdict, err := e.svc.Ask(ctx, system, debatePrompt(input, signals))
		if err == nil {
			return Case{
				Stance:     stance,
				Thesis:     verdict.Reasoning,
				Arguments:  verdict.Arguments,
				Confidence: clamp01(verdict.Confidence),
			}
		}
		logger.Warnf("debate arguer %s degraded: %v", stance, err)
	}
	return fallbackCase(stance, input)
}

const arbiterSystemPrompt = `You are an impartial judge of a market debate. ` +
	`Given a bull case and a bear case, decide the winner. ` +
	`Answer with one JSON object: {"stance": "bull"|"bear"|"tie", "confidence": 0..1, "reasoning": "..."}`

func (e *Engine) arbitrate(ctx context.Context, bull, bear Case) Result {
	if e.svc.Available() {
		user := fmt.Sprintf("## Bull case (confidence %.2f)\n%s\n%s\n\n## Bear case (confidence %.2f)\n%s\n%s\n",
			bull.Confidence, bull.Thesis, bulletList(bull.Arguments),
			bear.Confidence, bear.Thesis, bulletList(bear.Arguments))
		verdict, err := e.svc.Ask(ctx, arbiterSystemPrompt, user)
		if err == nil {
			winner := normalizeWinner(verdict.Stance)
			return Result{
				BullCase:       bull,
				BearCase:       bear,
				Winner:         winner,
				Confidence:     clamp01(verdict.Confidence),
				Recommendation: recommendationFor(winner),
				JudgeReasoning: verdict.Reasoning,
			}
		}
		logger.Warnf("debate arbiter degraded: %v", err)
	}
	// 确定性兜底：自报置信度高者胜，持平 HOLD
	winner := WinnerTie
	confidence := 0.5
	reasoning := "fallback arbiter: both cases equally confident"
	switch {
	case bull.Confidence > bear.Confidence:
		winner = WinnerBull
		confidence = bull.Confidence
		reasoning = "fallback arbiter: bull case more confident"
	case bear.Confidence > bull.Confidence:
		winner = WinnerBear
		confidence = bear.Confidence
		reasoning = "fallback arbiter: bear case more confident"
	}
	return Result{
		BullCase:       bull,
		BearCase:       bear,
		Winner:         winner,
		Confidence:     confidence,
		Recommendation: recommendationFor(winner),
		JudgeReasoning: reasoning,
	}
}

func debatePrompt(input signal.Input, signals []signal.Signal) string {
	var b strings.Builder
	ind := input.Indicators
	fmt.Fprintf(&b, "# %s %s snapshot\n", input.Symbol, input.Timeframe)
	fmt.Fprintf(&b, "Close=%.4f RSI=%.1f MACDhist=%.5f EMAfast=%.4f EMAslow=%.4f ATR%%=%.2f\n",
		ind.Close, ind.RSI, ind.MACDHist, ind.EMAFast, ind.EMASlow, ind.ATRPct*100)
	if input.MoodOK {
		fmt.Fprintf(&b, "Fear&Greed=%d (%s)\n", input.Mood.Value, input.Mood.Classification)
	}
	if len(signals) > 0 {
		b.WriteString("\n# Producer signals\n")
		for _, s := range signals {
			fmt.Fprintf(&b, "- %s: %s (%.2f) %s\n", s.Source, s.Decision, s.Confidence, s.Reasoning)
		}
	}
	return b.String()
}

// fallbackCase 从指标直接拼装一方论据，保证无 oracle 也能完成辩论。
func fallbackCase(stance Stance, input signal.Input) Case {
	ind := input.Indicators
	var args []string
	score := 0.0
	if stance == StanceBull {
		if ind.RSI <= 35 {
			args = append(args, fmt.Sprintf("RSI %.1f near oversold", ind.RSI))
			score += 0.15
		}
		if ind.MACDHist > 0 {
			args = append(args, "MACD momentum positive")
			score += 0.15
		}
		if ind.EMAFast > ind.EMASlow {
			args = append(args, "short-term trend above long-term")
			score += 0.15
		}
	} else {
		if ind.RSI >= 65 {
			args = append(args, fmt.Sprintf("RSI %.1f near overbought", ind.RSI))
			score += 0.15
		}
		if ind.MACDHist < 0 {
			args = append(args, "MACD momentum negative")
			score += 0.15
		}
		if ind.EMAFast < ind.EMASlow {
			args = append(args, "short-term trend below long-term")
			score += 0.15
		}
	}
	if len(args) == 0 {
		args = append(args, "no strong evidence for this stance")
	}
	return Case{
		Stance:     stance,
		Thesis:     fmt.Sprintf("rule-based %s case for %s", stance, input.Symbol),
		Arguments:  args,
		Confidence: clamp01(0.3 + score),
		Fallback:   true,
	}
}

func normalizeWinner(raw string) Winner {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bull", "bullish", "buy":
		return WinnerBull
	case "bear", "bearish", "sell":
		return WinnerBear
	default:
		return WinnerTie
	}
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
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
