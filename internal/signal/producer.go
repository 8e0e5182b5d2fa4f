package signal

import (
	"context"

	"tradecouncil/internal/market"
	"tradecouncil/internal/types"
)

// Input 是一轮分析的共享快照：行情、指标、情绪指数与账户画像。
// 所有产出方读取同一份 Input，互不修改。
type Input struct {
	Symbol    string
	Timeframe string

	Candles    []market.Candle
	Indicators market.IndicatorSnapshot

	Mood   market.MoodData
	MoodOK bool

	Portfolio types.PortfolioSnapshot
}

// Producer 是分析产出方的统一契约。Produce 返回错误时由调用方降级，
// 不应让单个产出方拖垮整轮决策。
type Producer interface {
	Source() Source
	Produce(ctx context.Context, input Input) (Signal, error)
}
