package signal

import (
	"context"
	"fmt"
	"time"

	"tradecouncil/internal/logger"
	"tradecouncil/internal/oracle"
	"tradecouncil/internal/pkg/ttlcache"
)

const sentimentTTL = 30 * time.Minute

type sentimentKey struct {
	Symbol string
	Date   string // UTC 日期，跨日自动换 key
}

const sentimentSystemPrompt = `You are a market sentiment analyst. ` +
	`Given a market snapshot, answer with a single JSON object: ` +
	`{"stance": "bullish"|"bearish"|"neutral", "confidence": 0..1, "reasoning": "..."}`

// SentimentProducer 通过 oracle 给出情绪立场；oracle 不可用时
// 退回基于动量的确定性规则。裁决按 (symbol, 日期) 缓存 30 分钟。
type SentimentProducer struct {
	svc   *oracle.Service
	cache *ttlcache.Cache[sentimentKey, oracle.Verdict]
	nowFn func() time.Time
}

func NewSentimentProducer(svc *oracle.Service) *SentimentProducer {
	return &SentimentProducer{
		svc:   svc,
		cache: ttlcache.New[sentimentKey, oracle.Verdict](sentimentTTL),
		nowFn: time.Now,
	}
}

func (p *SentimentProducer) Source() Source { return SourceSentiment }

func (p *SentimentProducer) Produce(ctx context.Context, input Input) (Signal, error) {
	key := sentimentKey{Symbol: input.Symbol, Date: p.nowFn().UTC().Format("2006-01-02")}
	if verdict, ok := p.cache.Get(key); ok {
		return p.toSignal(verdict, true, false), nil
	}
	if p.svc.Available() {
		verdict, err := p.svc.Ask(ctx, sentimentSystemPrompt, p.userPrompt(input))
		if err == nil {
			p.cache.Set(key, verdict)
			return p.toSignal(verdict, false, false), nil
		}
		logger.Warnf("sentiment oracle degraded for %s: %v", input.Symbol, err)
	}
	verdict, err := p.fallback(input)
	if err != nil {
		return Signal{}, err
	}
	return p.toSignal(verdict, false, true), nil
}

func (p *SentimentProducer) userPrompt(input Input) string {
	ind := input.Indicators
	mood := "unknown"
	if input.MoodOK {
		mood = fmt.Sprintf("%d (%s)", input.Mood.Value, input.Mood.Classification)
	}
	return fmt.Sprintf(
		"Symbol: %s (%s)\nClose: %.4f\nRSI: %.1f\nMACD hist: %.5f\nATR%%: %.2f%%\nFear&Greed: %s\n",
		input.Symbol, input.Timeframe, ind.Close, ind.RSI, ind.MACDHist, ind.ATRPct*100, mood)
}

// fallback 用近 10 根 K 线的动量近似情绪，保证决策回路永不缺口。
func (p *SentimentProducer) fallback(input Input) (oracle.Verdict, error) {
	candles := input.Candles
	if len(candles) < 11 {
		return oracle.Verdict{}, fmt.Errorf("sentiment: not enough candles for fallback (%d)", len(candles))
	}
	first := candles[len(candles)-11].Close
	last := candles[len(candles)-1].Close
	if first <= 0 {
		return oracle.Verdict{}, fmt.Errorf("sentiment: bad candle data")
	}
	change := (last - first) / first
	switch {
	case change > 0.01:
		return oracle.Verdict{Stance: "bullish", Confidence: capConf(0.5 + change*10), Reasoning: fmt.Sprintf("momentum fallback: +%.2f%% over 10 bars", change*100)}, nil
	case change < -0.01:
		return oracle.Verdict{Stance: "bearish", Confidence: capConf(0.5 - change*10), Reasoning: fmt.Sprintf("momentum fallback: %.2f%% over 10 bars", change*100)}, nil
	default:
		return oracle.Verdict{Stance: "neutral", Confidence: 0.4, Reasoning: "momentum fallback: flat"}, nil
	}
}

func capConf(v float64) float64 {
	if v > 0.8 {
		return 0.8
	}
	if v < 0 {
		return 0
	}
	return v
}

func (p *SentimentProducer) toSignal(v oracle.Verdict, fromCache, fallback bool) Signal {
	decision := NormalizeAction(v.Stance)
	if decision == "" || decision == ActionVeto {
		decision = ActionHold
	}
	return Signal{
		Source:     SourceSentiment,
		Decision:   decision,
		Confidence: v.Confidence,
		Reasoning:  v.Reasoning,
		Payload:    SentimentPayload{Stance: v.Stance, FromCache: fromCache, Fallback: fallback},
	}.Clamp()
}
