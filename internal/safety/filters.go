package safety

import (
	"fmt"
	"time"

	"tradecouncil/internal/market"
)

// EarningsCalendar 提供财报日期查询。没有数据时返回 ok=false，过滤器放行。
type EarningsCalendar interface {
	NextEarnings(symbol string) (time.Time, bool)
}

// StaticEarningsCalendar 是内存实现，键为大写 symbol。
type StaticEarningsCalendar map[string]time.Time

func (c StaticEarningsCalendar) NextEarnings(symbol string) (time.Time, bool) {
	t, ok := c[symbol]
	return t, ok
}

// TradeFilters 汇集交易前过滤：流动性、价格、市值、财报窗口。
type TradeFilters struct {
	MinDollarVolume    float64
	MinPrice           float64
	MinMarketCap       float64
	EarningsWindowDays int

	Calendar  EarningsCalendar
	MarketCap func(symbol string) (float64, bool)
	nowFn     func() time.Time
}

func NewTradeFilters(minDollarVolume, minPrice, minMarketCap float64, earningsWindowDays int, cal EarningsCalendar) *TradeFilters {
	return &TradeFilters{
		MinDollarVolume:    minDollarVolume,
		MinPrice:           minPrice,
		MinMarketCap:       minMarketCap,
		EarningsWindowDays: earningsWindowDays,
		Calendar:           cal,
		nowFn:              time.Now,
	}
}

// Check 返回 (allowed, reason)。任一过滤不通过即硬拒绝该笔交易。
func (f *TradeFilters) Check(symbol string, candles []market.Candle) (bool, string) {
	if f == nil {
		return true, ""
	}
	price := market.LastClose(candles)
	if f.MinPrice > 0 && price > 0 && price < f.MinPrice {
		return false, fmt.Sprintf("price %.4f below minimum %.4f", price, f.MinPrice)
	}
	dv := market.DollarVolume(candles)
	if f.MinDollarVolume > 0 && dv > 0 && dv < f.MinDollarVolume {
		return false, fmt.Sprintf("dollar volume %.0f below minimum %.0f", dv, f.MinDollarVolume)
	}
	if f.MinMarketCap > 0 && f.MarketCap != nil {
		if cap, ok := f.MarketCap(symbol); ok && cap < f.MinMarketCap {
			return false, fmt.Sprintf("market cap %.0f below minimum %.0f", cap, f.MinMarketCap)
		}
	}
	if f.EarningsWindowDays > 0 && f.Calendar != nil {
		if at, ok := f.Calendar.NextEarnings(symbol); ok {
			now := f.now()
			window := time.Duration(f.EarningsWindowDays) * 24 * time.Hour
			// 财报前后各 N 天都不开新仓
			if at.After(now.Add(-window)) && at.Before(now.Add(window)) {
				return false, fmt.Sprintf("within %dd earnings window (%s)", f.EarningsWindowDays, at.Format("2006-01-02"))
			}
		}
	}
	return true, ""
}

func (f *TradeFilters) now() time.Time {
	if f.nowFn != nil {
		return f.nowFn()
	}
	return time.Now()
}
