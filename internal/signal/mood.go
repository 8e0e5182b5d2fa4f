package signal

import (
	"context"
	"fmt"
)

const (
	extremeFearMax  = 25
	extremeGreedMin = 75
)

// MoodProducer 将恐惧贪婪指数转成反向信号：极端恐惧看多、极端贪婪看空。
// 指数服务不可用时报错，由调用方降级。
type MoodProducer struct{}

func NewMoodProducer() *MoodProducer { return &MoodProducer{} }

func (p *MoodProducer) Source() Source { return SourceMood }

func (p *MoodProducer) Produce(ctx context.Context, input Input) (Signal, error) {
	if !input.MoodOK {
		return Signal{}, fmt.Errorf("mood: index unavailable")
	}
	value := input.Mood.Value
	payload := MoodPayload{Index: value, Classification: input.Mood.Classification}

	switch {
	case value <= extremeFearMax:
		// 反向：极端恐惧往往是超卖
		depth := float64(extremeFearMax-value) / extremeFearMax
		return Signal{
			Source:     SourceMood,
			Decision:   ActionBuy,
			Confidence: 0.5 + 0.3*depth,
			Reasoning:  fmt.Sprintf("fear&greed %d (%s): contrarian buy", value, input.Mood.Classification),
			Payload:    payload,
		}.Clamp(), nil
	case value >= extremeGreedMin:
		depth := float64(value-extremeGreedMin) / float64(100-extremeGreedMin)
		return Signal{
			Source:     SourceMood,
			Decision:   ActionSell,
			Confidence: 0.5 + 0.3*depth,
			Reasoning:  fmt.Sprintf("fear&greed %d (%s): contrarian sell", value, input.Mood.Classification),
			Payload:    payload,
		}.Clamp(), nil
	default:
		return Signal{
			Source:     SourceMood,
			Decision:   ActionHold,
			Confidence: 0.4,
			Reasoning:  fmt.Sprintf("fear&greed %d (%s): no extreme", value, input.Mood.Classification),
			Payload:    payload,
		}, nil
	}
}
