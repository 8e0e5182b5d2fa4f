package market

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

const (
	rsiPeriod     = 14
	atrPeriod     = 14
	emaFastPeriod = 12
	emaSlowPeriod = 26
	smaPeriod     = 50
	macdFast      = 12
	macdSlow      = 26
	macdSignal    = 9
)

// IndicatorSnapshot 汇总一组技术指标的最新值，供技术分析信号消费。
type IndicatorSnapshot struct {
	Symbol     string  `json:"symbol"`
	Timeframe  string  `json:"timeframe"`
	Close      float64 `json:"close"`
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	EMAFast    float64 `json:"ema_fast"`
	EMASlow    float64 `json:"ema_slow"`
	SMA        float64 `json:"sma"`
	ATR        float64 `json:"atr"`
	ATRPct     float64 `json:"atr_pct"`
}

// minIndicatorBars is what the slowest lookback (SMA50 + MACD warmup) needs to
// produce a stable last value.
const minIndicatorBars = 60

// ComputeIndicators 基于 K 线序列计算指标快照。
func ComputeIndicators(symbol, timeframe string, candles []Candle) (IndicatorSnapshot, error) {
	if len(candles) < minIndicatorBars {
		return IndicatorSnapshot{}, fmt.Errorf("%w: need at least %d candles, got %d", ErrDataUnavailable, minIndicatorBars, len(candles))
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}

	rsi := talib.Rsi(closes, rsiPeriod)
	macd, signal, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	emaFast := talib.Ema(closes, emaFastPeriod)
	emaSlow := talib.Ema(closes, emaSlowPeriod)
	sma := talib.Sma(closes, smaPeriod)
	atr := talib.Atr(highs, lows, closes, atrPeriod)

	snap := IndicatorSnapshot{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Close:      last(closes),
		RSI:        last(rsi),
		MACD:       last(macd),
		MACDSignal: last(signal),
		MACDHist:   last(hist),
		EMAFast:    last(emaFast),
		EMASlow:    last(emaSlow),
		SMA:        last(sma),
		ATR:        last(atr),
	}
	if snap.Close > 0 {
		snap.ATRPct = snap.ATR / snap.Close
	}
	if math.IsNaN(snap.RSI) || math.IsNaN(snap.ATR) {
		return IndicatorSnapshot{}, fmt.Errorf("%w: indicator output contains NaN", ErrDataUnavailable)
	}
	return snap, nil
}

func last(vals []float64) float64 {
	for i := len(vals) - 1; i >= 0; i-- {
		if !math.IsNaN(vals[i]) {
			return vals[i]
		}
	}
	return math.NaN()
}
