package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradecouncil/internal/logger"
	"tradecouncil/internal/pkg/circuit"
	"tradecouncil/internal/pkg/ratelimit"
	"tradecouncil/internal/pkg/ttlcache"
)

type indicatorKey struct {
	Symbol    string
	Timeframe string
	Kind      string
}

// DataService 负责取数与指标计算，带限速、熔断与 TTL 缓存。
// 同一 (symbol, timeframe) 的指标快照在 TTL 内复用，避免重复拉取。
type DataService struct {
	source  Source
	limiter *ratelimit.SlidingWindow
	breaker *circuit.Breaker

	bars       int
	candles    *ttlcache.Cache[indicatorKey, []Candle]
	indicators *ttlcache.Cache[indicatorKey, IndicatorSnapshot]
}

type DataServiceConfig struct {
	HistoryBars      int
	IndicatorTTL     time.Duration
	BreakerThreshold int
	BreakerTimeout   time.Duration
	RateLimitCalls   int
	RateLimitWindow  time.Duration
}

func NewDataService(source Source, cfg DataServiceConfig) *DataService {
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = 300
	}
	if cfg.IndicatorTTL <= 0 {
		cfg.IndicatorTTL = 5 * time.Minute
	}
	return &DataService{
		source:     source,
		limiter:    ratelimit.NewSlidingWindow(cfg.RateLimitCalls, cfg.RateLimitWindow),
		breaker:    circuit.NewBreaker("market-data", cfg.BreakerThreshold, cfg.BreakerTimeout),
		bars:       cfg.HistoryBars,
		candles:    ttlcache.New[indicatorKey, []Candle](cfg.IndicatorTTL),
		indicators: ttlcache.New[indicatorKey, IndicatorSnapshot](cfg.IndicatorTTL),
	}
}

// History 返回历史 K 线，优先命中缓存。
func (s *DataService) History(ctx context.Context, symbol, timeframe string) ([]Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	key := indicatorKey{Symbol: symbol, Timeframe: timeframe, Kind: "candles"}
	if cached, ok := s.candles.Get(key); ok {
		return cached, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out []Candle
	err := s.breaker.Execute(func() error {
		var ferr error
		out, ferr = s.source.FetchHistory(ctx, symbol, timeframe, s.bars)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty kline response for %s %s", ErrDataUnavailable, symbol, timeframe)
	}
	s.candles.Set(key, out)
	return out, nil
}

// Indicators 返回指标快照，优先命中缓存。
func (s *DataService) Indicators(ctx context.Context, symbol, timeframe string) (IndicatorSnapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	key := indicatorKey{Symbol: symbol, Timeframe: timeframe, Kind: "snapshot"}
	if cached, ok := s.indicators.Get(key); ok {
		return cached, nil
	}
	candles, err := s.History(ctx, symbol, timeframe)
	if err != nil {
		return IndicatorSnapshot{}, err
	}
	snap, err := ComputeIndicators(symbol, timeframe, candles)
	if err != nil {
		return IndicatorSnapshot{}, err
	}
	s.indicators.Set(key, snap)
	logger.Debugf("indicators refreshed %s %s close=%.4f rsi=%.2f atr=%.4f", symbol, timeframe, snap.Close, snap.RSI, snap.ATR)
	return snap, nil
}
