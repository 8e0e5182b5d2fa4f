package orchestrator

import (
	"time"

	"tradecouncil/internal/signal"
)

// FinalDecision 是一次工作流实例的唯一最终产出。
type FinalDecision struct {
	Symbol        string          `json:"symbol"`
	Action        signal.Action   `json:"action"`
	Confidence    float64         `json:"confidence"`
	Quantity      int64           `json:"quantity,omitempty"`
	Reasoning     string          `json:"reasoning"`
	Signals       []signal.Signal `json:"signals,omitempty"`
	SafetyBlocked bool            `json:"safety_blocked,omitempty"`
	BlockReason   string          `json:"block_reason,omitempty"`
	DecidedAt     time.Time       `json:"decided_at"`
}

// VoteBreakdown 记录各动作的加权票数，便于排查分歧。
type VoteBreakdown struct {
	Votes       map[signal.Action]float64 `json:"votes"`
	TotalWeight float64                   `json:"total_weight"`
	Threshold   float64                   `json:"threshold"`
}
