package types

// Position 是账户中一笔持仓的快照。
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	EntryPrice   float64 `json:"entry_price"`
	StopPrice    float64 `json:"stop_price"`
	CurrentPrice float64 `json:"current_price"`
	Sector       string  `json:"sector"`
}

// MarketValue 以现价（缺省回退到开仓价）估值。
func (p Position) MarketValue() float64 {
	price := p.CurrentPrice
	if price <= 0 {
		price = p.EntryPrice
	}
	return price * p.Quantity
}

// RiskAmount 是该持仓从开仓价跌到止损价的损失额。
// 没有设置止损时按开仓价的 2% 估算。
func (p Position) RiskAmount() float64 {
	entry := p.EntryPrice
	if entry <= 0 {
		return 0
	}
	stop := p.StopPrice
	if stop <= 0 || stop >= entry {
		stop = entry * 0.98
	}
	return (entry - stop) * p.Quantity
}

// PortfolioSnapshot 是工作流一轮开始时的账户画像。
type PortfolioSnapshot struct {
	Value          float64             `json:"value"`
	Cash           float64             `json:"cash"`
	Positions      map[string]Position `json:"positions,omitempty"`
	SectorExposure map[string]float64  `json:"sector_exposure,omitempty"`
}

// SectorValue 汇总某一板块的持仓市值（含 SectorExposure 的显式覆盖）。
func (s PortfolioSnapshot) SectorValue(sector string) float64 {
	if v, ok := s.SectorExposure[sector]; ok && v > 0 {
		return v
	}
	total := 0.0
	for _, p := range s.Positions {
		if p.Sector == sector {
			total += p.MarketValue()
		}
	}
	return total
}
