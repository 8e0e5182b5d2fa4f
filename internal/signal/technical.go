package signal

import (
	"context"
	"fmt"
	"strings"
)

const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0
)

// TechnicalProducer 基于指标快照的规则打分：
// 多头条件与空头条件各自计数，净值决定方向，覆盖比例决定置信度。
type TechnicalProducer struct{}

func NewTechnicalProducer() *TechnicalProducer { return &TechnicalProducer{} }

func (p *TechnicalProducer) Source() Source { return SourceTechnical }

func (p *TechnicalProducer) Produce(ctx context.Context, input Input) (Signal, error) {
	ind := input.Indicators
	if ind.Close <= 0 {
		return Signal{}, fmt.Errorf("technical: indicator snapshot missing for %s", input.Symbol)
	}

	var bull, bear int
	var notes []string

	if ind.RSI <= rsiOversold {
		bull++
		notes = append(notes, fmt.Sprintf("RSI %.1f oversold", ind.RSI))
	} else if ind.RSI >= rsiOverbought {
		bear++
		notes = append(notes, fmt.Sprintf("RSI %.1f overbought", ind.RSI))
	}
	if ind.MACDHist > 0 {
		bull++
		notes = append(notes, "MACD histogram positive")
	} else if ind.MACDHist < 0 {
		bear++
		notes = append(notes, "MACD histogram negative")
	}
	if ind.EMAFast > ind.EMASlow {
		bull++
		notes = append(notes, "EMA fast above slow")
	} else if ind.EMAFast < ind.EMASlow {
		bear++
		notes = append(notes, "EMA fast below slow")
	}
	if ind.SMA > 0 {
		if ind.Close > ind.SMA {
			bull++
			notes = append(notes, "price above SMA50")
		} else if ind.Close < ind.SMA {
			bear++
			notes = append(notes, "price below SMA50")
		}
	}

	const checks = 4
	net := bull - bear
	decision := ActionHold
	switch {
	case net >= 2:
		decision = ActionBuy
	case net <= -2:
		decision = ActionSell
	}
	// 置信度：方向一致的条件越多越确信，区间 [0.5, 1.0]
	confidence := 0.5
	if net != 0 {
		strength := float64(abs(net)) / checks
		confidence = 0.5 + 0.5*strength
	}
	if decision == ActionHold {
		confidence = 0.5
	}

	reason := "no directional edge"
	if len(notes) > 0 {
		reason = strings.Join(notes, "; ")
	}
	return Signal{
		Source:     SourceTechnical,
		Decision:   decision,
		Confidence: confidence,
		Reasoning:  reason,
		Payload:    TechnicalPayload{Indicators: ind},
	}.Clamp(), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
