package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Vote.validate(); err != nil {
		return err
	}
	if err := c.Debate.validate(); err != nil {
		return err
	}
	if err := c.Approval.validate(); err != nil {
		return err
	}
	if err := c.Safety.validate(); err != nil {
		return err
	}
	if err := c.Oracle.validate(); err != nil {
		return err
	}
	if c.Broker.Mode != "paper" {
		return fmt.Errorf("broker.mode unsupported: %s", c.Broker.Mode)
	}
	return nil
}

func (v *VoteConfig) validate() error {
	for name, w := range map[string]float64{
		"vote.technical_weight": v.TechnicalWeight,
		"vote.sentiment_weight": v.SentimentWeight,
		"vote.risk_weight":      v.RiskWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, w)
		}
	}
	if v.MinConfidence <= 0 || v.MinConfidence > 1 {
		return fmt.Errorf("vote.min_confidence must be within (0,1], got %v", v.MinConfidence)
	}
	return nil
}

func (d *DebateConfig) validate() error {
	switch d.Policy {
	case "disagree", "always", "never":
		return nil
	default:
		return fmt.Errorf("debate.policy must be disagree/always/never, got %q", d.Policy)
	}
}

func (a *ApprovalConfig) validate() error {
	if a.AutoThreshold <= 0 || a.AutoThreshold > 1 {
		return fmt.Errorf("approval.auto_threshold must be within (0,1], got %v", a.AutoThreshold)
	}
	return nil
}

func (s *SafetyConfig) validate() error {
	for name, pct := range map[string]float64{
		"safety.daily_loss_limit_pct":   s.DailyLossLimitPct,
		"safety.max_drawdown_pct":       s.MaxDrawdownPct,
		"safety.max_portfolio_heat_pct": s.MaxPortfolioHeatPct,
		"safety.max_position_pct":       s.MaxPositionPct,
		"safety.max_sector_alloc_pct":   s.MaxSectorAllocPct,
		"safety.risk_budget_pct":        s.RiskBudgetPct,
	} {
		if pct <= 0 || pct > 1 {
			return fmt.Errorf("%s must be within (0,1], got %v", name, pct)
		}
	}
	if s.TradingOpenHourUTC < 0 || s.TradingOpenHourUTC > 23 {
		return fmt.Errorf("safety.trading_open_hour_utc out of range: %d", s.TradingOpenHourUTC)
	}
	if s.TradingCloseHourUTC < 1 || s.TradingCloseHourUTC > 24 {
		return fmt.Errorf("safety.trading_close_hour_utc out of range: %d", s.TradingCloseHourUTC)
	}
	return nil
}

func (o *OracleConfig) validate() error {
	if !o.Enabled {
		return nil
	}
	if strings.TrimSpace(o.APIURL) == "" {
		return fmt.Errorf("oracle.api_url cannot be empty when oracle.enabled")
	}
	if strings.TrimSpace(o.Model) == "" {
		return fmt.Errorf("oracle.model cannot be empty when oracle.enabled")
	}
	return nil
}
