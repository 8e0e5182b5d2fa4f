package config

// Config 是 tradecouncil 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Market     MarketConfig     `toml:"market"`
	Oracle     OracleConfig     `toml:"oracle"`
	Vote       VoteConfig       `toml:"vote"`
	Debate     DebateConfig     `toml:"debate"`
	Approval   ApprovalConfig   `toml:"approval"`
	Safety     SafetyConfig     `toml:"safety"`
	Resilience ResilienceConfig `toml:"resilience"`
	Workflow   WorkflowConfig   `toml:"workflow"`
	Broker     BrokerConfig     `toml:"broker"`
	Store      StoreConfig      `toml:"store"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

type MarketConfig struct {
	Symbols         []string `toml:"symbols"`
	Timeframe       string   `toml:"timeframe"`
	HistoryBars     int      `toml:"history_bars"`
	CycleSeconds    int      `toml:"cycle_seconds"`
	IndicatorTTLSec int      `toml:"indicator_ttl_seconds"`
	SentimentTTLSec int      `toml:"sentiment_ttl_seconds"`
}

// OracleConfig 描述 LLM 评分服务的访问方式（OpenAI 兼容接口）。
type OracleConfig struct {
	Enabled        bool              `toml:"enabled"`
	APIURL         string            `toml:"api_url"`
	APIKey         string            `toml:"api_key"`
	Model          string            `toml:"model"`
	Temperature    float64           `toml:"temperature"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Headers        map[string]string `toml:"headers"`
}

// VoteConfig 控制加权投票的权重与阈值。
type VoteConfig struct {
	TechnicalWeight float64 `toml:"technical_weight"`
	SentimentWeight float64 `toml:"sentiment_weight"`
	RiskWeight      float64 `toml:"risk_weight"`
	MinConfidence   float64 `toml:"min_confidence"`
	ProfilePath     string  `toml:"profile_path"` // optional yaml overrides
}

type DebateConfig struct {
	Policy string `toml:"policy"` // "disagree" | "always" | "never"
	Rounds int    `toml:"rounds"`
}

type ApprovalConfig struct {
	AutoThreshold  float64 `toml:"auto_threshold"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// SafetyConfig 汇总安全层的所有限额。百分比均为 0~1 的小数。
type SafetyConfig struct {
	DailyLossLimitPct     float64 `toml:"daily_loss_limit_pct"`
	MaxDrawdownPct        float64 `toml:"max_drawdown_pct"`
	MaxConsecutiveLosses  int     `toml:"max_consecutive_losses"`
	MaxPortfolioHeatPct   float64 `toml:"max_portfolio_heat_pct"`
	MaxPositionPct        float64 `toml:"max_position_pct"`
	MaxSectorAllocPct     float64 `toml:"max_sector_alloc_pct"`
	RiskBudgetPct         float64 `toml:"risk_budget_pct"`
	ATRRiskMultiplier     float64 `toml:"atr_risk_multiplier"`
	MinDollarVolume       float64 `toml:"min_dollar_volume"`
	MinPrice              float64 `toml:"min_price"`
	MinMarketCap          float64 `toml:"min_market_cap"`
	EarningsWindowDays    int     `toml:"earnings_window_days"`
	TradingHoursOnly      bool    `toml:"trading_hours_only"`
	TradingOpenHourUTC    int     `toml:"trading_open_hour_utc"`
	TradingCloseHourUTC   int     `toml:"trading_close_hour_utc"`
}

type ResilienceConfig struct {
	BreakerThreshold      int `toml:"breaker_threshold"`
	BreakerTimeoutSeconds int `toml:"breaker_timeout_seconds"`
	RateLimitCalls        int `toml:"rate_limit_calls"`
	RateLimitWindowSec    int `toml:"rate_limit_window_seconds"`
}

type WorkflowConfig struct {
	MaxRetries int `toml:"max_retries"`
}

type BrokerConfig struct {
	Mode        string `toml:"mode"` // "paper" only for now
	MaxAttempts int    `toml:"max_attempts"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}
