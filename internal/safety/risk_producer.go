package safety

import (
	"context"
	"fmt"

	"tradecouncil/internal/signal"
)

// 极端波动阈值：ATR 超过现价 8% 时风险信号直接 VETO。
const vetoATRPct = 0.08

// RiskProducer 产出风险信号：交易熔断或极端波动 → VETO，
// 热度逼近上限 → 低置信 HOLD，其余情况给出温和的 HOLD。
type RiskProducer struct {
	manager *Manager
}

func NewRiskProducer(manager *Manager) *RiskProducer {
	return &RiskProducer{manager: manager}
}

func (p *RiskProducer) Source() signal.Source { return signal.SourceRisk }

func (p *RiskProducer) Produce(ctx context.Context, input signal.Input) (signal.Signal, error) {
	halted, haltReason, _, _, _ := p.manager.Halt().Snapshot()
	heat := PortfolioHeat(input.Portfolio)
	atrPct := input.Indicators.ATRPct
	payload := signal.RiskPayload{
		PortfolioHeatPct: heat,
		ATRPct:           atrPct,
		Halted:           halted,
		HaltReason:       haltReason,
	}

	if halted {
		return signal.Signal{
			Source:     signal.SourceRisk,
			Decision:   signal.ActionVeto,
			Confidence: 1,
			Reasoning:  fmt.Sprintf("trading halted: %s", haltReason),
			Payload:    payload,
		}, nil
	}
	if atrPct >= vetoATRPct {
		return signal.Signal{
			Source:     signal.SourceRisk,
			Decision:   signal.ActionVeto,
			Confidence: 1,
			Reasoning:  fmt.Sprintf("extreme volatility: ATR %.1f%% of price", atrPct*100),
			Payload:    payload,
		}, nil
	}
	if p.manager.maxPortfolioHeatPct > 0 && heat >= p.manager.maxPortfolioHeatPct*0.8 {
		return signal.Signal{
			Source:     signal.SourceRisk,
			Decision:   signal.ActionHold,
			Confidence: 0.8,
			Reasoning:  fmt.Sprintf("portfolio heat %.2f%% approaching limit %.2f%%", heat*100, p.manager.maxPortfolioHeatPct*100),
			Payload:    payload,
		}, nil
	}
	return signal.Signal{
		Source:     signal.SourceRisk,
		Decision:   signal.ActionHold,
		Confidence: 0.5,
		Reasoning:  fmt.Sprintf("risk normal: heat %.2f%%, ATR %.2f%%", heat*100, atrPct*100),
		Payload:    payload,
	}, nil
}
