package signal

import (
	"encoding/json"
	"fmt"
	"strings"

	"tradecouncil/internal/market"
)

// Action 是信号或最终决策的动作。VETO 仅在信号层出现，
// 最终决策只会是 BUY/SELL/HOLD。
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	ActionVeto Action = "VETO"
)

// NormalizeAction 宽松解析动作字符串；无法识别返回空。
func NormalizeAction(raw string) Action {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG", "OPEN_LONG", "BULLISH":
		return ActionBuy
	case "SELL", "SHORT", "OPEN_SHORT", "BEARISH":
		return ActionSell
	case "HOLD", "WAIT", "NEUTRAL":
		return ActionHold
	case "VETO", "BLOCK":
		return ActionVeto
	}
	return ""
}

// Source 标识信号来源。
type Source string

const (
	SourceTechnical Source = "technical"
	SourceSentiment Source = "sentiment"
	SourceMood      Source = "mood"
	SourceRisk      Source = "risk"
)

// Signal 是单个分析方的输出。一经产出即不可变，
// 由产出它的工作流步骤合并进状态。
type Signal struct {
	Source     Source  `json:"source"`
	Decision   Action  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Payload    Payload `json:"payload,omitempty"`
}

// Clamp 把置信度收敛到 [0,1]，在合并边界调用。
func (s Signal) Clamp() Signal {
	if s.Confidence < 0 {
		s.Confidence = 0
	}
	if s.Confidence > 1 {
		s.Confidence = 1
	}
	return s
}

// Validate 校验信号在进入状态合并前的约束。
func (s Signal) Validate() error {
	switch s.Source {
	case SourceTechnical, SourceSentiment, SourceMood, SourceRisk:
	default:
		return fmt.Errorf("unknown signal source %q", s.Source)
	}
	switch s.Decision {
	case ActionBuy, ActionSell, ActionHold, ActionVeto:
	default:
		return fmt.Errorf("signal %s has invalid decision %q", s.Source, s.Decision)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal %s confidence %v out of [0,1]", s.Source, s.Confidence)
	}
	if s.Payload != nil {
		if got, want := s.Payload.Kind(), string(s.Source); got != want {
			return fmt.Errorf("signal %s carries %s payload", s.Source, got)
		}
	}
	return nil
}

// Degraded 返回指定来源的 HOLD/0 降级信号，用于单个产出方失败时。
func Degraded(source Source, cause error) Signal {
	reason := "producer unavailable"
	if cause != nil {
		reason = fmt.Sprintf("producer unavailable: %v", cause)
	}
	return Signal{Source: source, Decision: ActionHold, Confidence: 0, Reasoning: reason}
}

// Payload 是按来源区分的附加数据联合体，替代开放式 map。
type Payload interface {
	Kind() string
}

// TechnicalPayload 携带产出技术信号所用的指标快照。
type TechnicalPayload struct {
	Indicators market.IndicatorSnapshot `json:"indicators"`
}

func (TechnicalPayload) Kind() string { return string(SourceTechnical) }

// SentimentPayload 携带情绪裁决细节。
type SentimentPayload struct {
	Stance    string `json:"stance"`
	Model     string `json:"model,omitempty"`
	FromCache bool   `json:"from_cache,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

func (SentimentPayload) Kind() string { return string(SourceSentiment) }

// MoodPayload 携带恐惧贪婪指数。
type MoodPayload struct {
	Index          int    `json:"index"`
	Classification string `json:"classification"`
}

func (MoodPayload) Kind() string { return string(SourceMood) }

// RiskPayload 携带风险评估细节。
type RiskPayload struct {
	PortfolioHeatPct float64 `json:"portfolio_heat_pct"`
	ATRPct           float64 `json:"atr_pct"`
	Halted           bool    `json:"halted"`
	HaltReason       string  `json:"halt_reason,omitempty"`
}

func (RiskPayload) Kind() string { return string(SourceRisk) }

// MarshalJSON wraps the payload with its kind tag so mixed slices stay
// round-trippable in the decision log.
func MarshalPayload(p Payload) json.RawMessage {
	if p == nil {
		return nil
	}
	buf, err := json.Marshal(map[string]any{"kind": p.Kind(), "data": p})
	if err != nil {
		return nil
	}
	return buf
}
