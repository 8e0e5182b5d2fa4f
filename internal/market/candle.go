package market

type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// LastClose 返回最后一根 K 线的收盘价；序列为空时返回 0。
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// DollarVolume returns close*volume of the most recent candle.
func DollarVolume(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	last := candles[len(candles)-1]
	return last.Close * last.Volume
}
