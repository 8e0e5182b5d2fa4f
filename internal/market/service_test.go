package market

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticCandles(n int) []Candle {
	out := make([]Candle, n)
	price := 100.0
	for i := range out {
		// 带周期波动的缓慢上行，保证 ATR 与 RSI 都有意义
		drift := 0.3 + 2.0*math.Sin(float64(i)/5)
		out[i] = Candle{
			OpenTime: int64(i) * 3_600_000,
			Open:     price,
			High:     price + math.Abs(drift) + 0.5,
			Low:      price - math.Abs(drift) - 0.5,
			Close:    price + drift,
			Volume:   10_000,
		}
		price = out[i].Close
	}
	return out
}

func countingSource(candles []Candle, calls *int) SourceFunc {
	return func(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
		*calls++
		return candles, nil
	}
}

func TestComputeIndicatorsSanity(t *testing.T) {
	candles := syntheticCandles(200)
	snap, err := ComputeIndicators("BTCUSDT", "1h", candles)
	require.NoError(t, err)

	assert.Equal(t, candles[len(candles)-1].Close, snap.Close)
	assert.GreaterOrEqual(t, snap.RSI, 0.0)
	assert.LessOrEqual(t, snap.RSI, 100.0)
	assert.Positive(t, snap.ATR)
	assert.Positive(t, snap.SMA)
	assert.InDelta(t, snap.ATR/snap.Close, snap.ATRPct, 1e-12)
}

func TestComputeIndicatorsNeedsEnoughBars(t *testing.T) {
	_, err := ComputeIndicators("BTCUSDT", "1h", syntheticCandles(30))
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestHistoryCachesWithinTTL(t *testing.T) {
	calls := 0
	svc := NewDataService(countingSource(syntheticCandles(200), &calls), DataServiceConfig{HistoryBars: 200})

	first, err := svc.History(context.Background(), "btcusdt", "1h")
	require.NoError(t, err)
	second, err := svc.History(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)

	// symbol 归一后命中同一缓存键
	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestIndicatorsCacheSeparateFromCandles(t *testing.T) {
	calls := 0
	svc := NewDataService(countingSource(syntheticCandles(200), &calls), DataServiceConfig{HistoryBars: 200})

	_, err := svc.Indicators(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)
	_, err = svc.Indicators(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// 不同周期是独立缓存键
	_, err = svc.Indicators(context.Background(), "BTCUSDT", "4h")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestHistoryWrapsSourceErrors(t *testing.T) {
	svc := NewDataService(SourceFunc(func(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
		return nil, fmt.Errorf("exchange 502")
	}), DataServiceConfig{})

	_, err := svc.History(context.Background(), "BTCUSDT", "1h")
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestHistoryRejectsEmptyResponses(t *testing.T) {
	svc := NewDataService(SourceFunc(func(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
		return nil, nil
	}), DataServiceConfig{})

	_, err := svc.History(context.Background(), "BTCUSDT", "1h")
	assert.ErrorIs(t, err, ErrDataUnavailable)

	_, err = svc.History(context.Background(), "", "1h")
	assert.Error(t, err)
}
