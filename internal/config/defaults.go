package config

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9982"
	defaultTimeframe         = "1h"
	defaultHistoryBars       = 300
	defaultCycleSeconds      = 300
	defaultIndicatorTTLSec   = 300
	defaultSentimentTTLSec   = 1800
	defaultOracleTimeout     = 60
	defaultOracleTemperature = 0.3

	DefaultTechnicalWeight = 0.40
	DefaultSentimentWeight = 0.30
	DefaultRiskWeight      = 0.30
	DefaultMinConfidence   = 0.60

	defaultDebatePolicy = "disagree"
	defaultDebateRounds = 1

	DefaultAutoThreshold      = 0.75
	defaultApprovalTimeoutSec = 300

	defaultDailyLossLimitPct    = 0.03
	defaultMaxDrawdownPct       = 0.10
	defaultMaxConsecutiveLosses = 3
	defaultMaxPortfolioHeatPct  = 0.06
	defaultMaxPositionPct       = 0.20
	defaultMaxSectorAllocPct    = 0.30
	defaultRiskBudgetPct        = 0.01
	defaultATRRiskMultiplier    = 2.0
	defaultMinDollarVolume      = 1_000_000
	defaultMinPrice             = 1.0
	defaultEarningsWindowDays   = 2

	defaultBreakerThreshold   = 3
	defaultBreakerTimeoutSec  = 60
	defaultRateLimitCalls     = 100
	defaultRateLimitWindowSec = 60

	defaultMaxRetries        = 3
	defaultBrokerMode        = "paper"
	defaultBrokerMaxAttempts = 3
	defaultStorePath         = "data/tradecouncil.db"
)

// applyDefaults 为所有子配置应用默认值（零值即视为未设置）。
func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	c.Market.applyDefaults()
	c.Oracle.applyDefaults()
	c.Vote.applyDefaults()
	c.Debate.applyDefaults()
	c.Approval.applyDefaults()
	c.Safety.applyDefaults()
	c.Resilience.applyDefaults()
	if c.Workflow.MaxRetries <= 0 {
		c.Workflow.MaxRetries = defaultMaxRetries
	}
	if c.Broker.Mode == "" {
		c.Broker.Mode = defaultBrokerMode
	}
	if c.Broker.MaxAttempts <= 0 {
		c.Broker.MaxAttempts = defaultBrokerMaxAttempts
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
}

func (m *MarketConfig) applyDefaults() {
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTCUSDT"}
	}
	if m.Timeframe == "" {
		m.Timeframe = defaultTimeframe
	}
	if m.HistoryBars <= 0 {
		m.HistoryBars = defaultHistoryBars
	}
	if m.CycleSeconds <= 0 {
		m.CycleSeconds = defaultCycleSeconds
	}
	if m.IndicatorTTLSec <= 0 {
		m.IndicatorTTLSec = defaultIndicatorTTLSec
	}
	if m.SentimentTTLSec <= 0 {
		m.SentimentTTLSec = defaultSentimentTTLSec
	}
}

func (o *OracleConfig) applyDefaults() {
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = defaultOracleTimeout
	}
	if o.Temperature <= 0 {
		o.Temperature = defaultOracleTemperature
	}
}

func (v *VoteConfig) applyDefaults() {
	if v.TechnicalWeight <= 0 {
		v.TechnicalWeight = DefaultTechnicalWeight
	}
	if v.SentimentWeight <= 0 {
		v.SentimentWeight = DefaultSentimentWeight
	}
	if v.RiskWeight <= 0 {
		v.RiskWeight = DefaultRiskWeight
	}
	if v.MinConfidence <= 0 {
		v.MinConfidence = DefaultMinConfidence
	}
}

func (d *DebateConfig) applyDefaults() {
	if d.Policy == "" {
		d.Policy = defaultDebatePolicy
	}
	if d.Rounds <= 0 {
		d.Rounds = defaultDebateRounds
	}
}

func (a *ApprovalConfig) applyDefaults() {
	if a.AutoThreshold <= 0 {
		a.AutoThreshold = DefaultAutoThreshold
	}
	if a.TimeoutSeconds <= 0 {
		a.TimeoutSeconds = defaultApprovalTimeoutSec
	}
}

func (s *SafetyConfig) applyDefaults() {
	if s.DailyLossLimitPct <= 0 {
		s.DailyLossLimitPct = defaultDailyLossLimitPct
	}
	if s.MaxDrawdownPct <= 0 {
		s.MaxDrawdownPct = defaultMaxDrawdownPct
	}
	if s.MaxConsecutiveLosses <= 0 {
		s.MaxConsecutiveLosses = defaultMaxConsecutiveLosses
	}
	if s.MaxPortfolioHeatPct <= 0 {
		s.MaxPortfolioHeatPct = defaultMaxPortfolioHeatPct
	}
	if s.MaxPositionPct <= 0 {
		s.MaxPositionPct = defaultMaxPositionPct
	}
	if s.MaxSectorAllocPct <= 0 {
		s.MaxSectorAllocPct = defaultMaxSectorAllocPct
	}
	if s.RiskBudgetPct <= 0 {
		s.RiskBudgetPct = defaultRiskBudgetPct
	}
	if s.ATRRiskMultiplier <= 0 {
		s.ATRRiskMultiplier = defaultATRRiskMultiplier
	}
	if s.MinDollarVolume <= 0 {
		s.MinDollarVolume = defaultMinDollarVolume
	}
	if s.MinPrice <= 0 {
		s.MinPrice = defaultMinPrice
	}
	if s.EarningsWindowDays <= 0 {
		s.EarningsWindowDays = defaultEarningsWindowDays
	}
	if s.TradingCloseHourUTC <= 0 {
		s.TradingCloseHourUTC = 24
	}
}

func (r *ResilienceConfig) applyDefaults() {
	if r.BreakerThreshold <= 0 {
		r.BreakerThreshold = defaultBreakerThreshold
	}
	if r.BreakerTimeoutSeconds <= 0 {
		r.BreakerTimeoutSeconds = defaultBreakerTimeoutSec
	}
	if r.RateLimitCalls <= 0 {
		r.RateLimitCalls = defaultRateLimitCalls
	}
	if r.RateLimitWindowSec <= 0 {
		r.RateLimitWindowSec = defaultRateLimitWindowSec
	}
}
