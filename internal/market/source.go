package market

import (
	"context"
	"errors"
)

// ErrDataUnavailable 表示行情数据暂不可用，工作流会进入重试分支。
var ErrDataUnavailable = errors.New("market data unavailable")

// Source 抽象历史行情来源（交易所 REST、回放文件等）。
type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

func (f SourceFunc) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	return f(ctx, symbol, interval, limit)
}
