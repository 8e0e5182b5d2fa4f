package debate

import "tradecouncil/internal/signal"

// Stance 是辩手的固定立场。
type Stance string

const (
	StanceBull Stance = "bull"
	StanceBear Stance = "bear"
)

// Winner 是仲裁结果。
type Winner string

const (
	WinnerBull Winner = "bull"
	WinnerBear Winner = "bear"
	WinnerTie  Winner = "tie"
)

// Case 是一方辩手的完整论证。
type Case struct {
	Stance     Stance   `json:"stance"`
	Thesis     string   `json:"thesis"`
	Arguments  []string `json:"arguments"`
	Confidence float64  `json:"confidence"`
	Fallback   bool     `json:"fallback,omitempty"`
}

// Result 是一次辩论的产出。只写入工作流状态供下游查看，
// 最终仍由加权投票裁决。
type Result struct {
	BullCase       Case          `json:"bull_case"`
	BearCase       Case          `json:"bear_case"`
	Winner         Winner        `json:"winner"`
	Confidence     float64       `json:"confidence"`
	Recommendation signal.Action `json:"recommendation"`
	JudgeReasoning string        `json:"judge_reasoning"`
}

func recommendationFor(w Winner) signal.Action {
	switch w {
	case WinnerBull:
		return signal.ActionBuy
	case WinnerBear:
		return signal.ActionSell
	default:
		return signal.ActionHold
	}
}
