package app

import (
	"context"
	"fmt"
	"time"

	"tradecouncil/internal/approval"
	"tradecouncil/internal/broker"
	"tradecouncil/internal/config"
	"tradecouncil/internal/debate"
	binancegw "tradecouncil/internal/gateway/binance"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/market"
	"tradecouncil/internal/oracle"
	"tradecouncil/internal/orchestrator"
	"tradecouncil/internal/pkg/circuit"
	"tradecouncil/internal/pkg/ratelimit"
	"tradecouncil/internal/safety"
	"tradecouncil/internal/signal"
	"tradecouncil/internal/store/sqlite"
	transporthttp "tradecouncil/internal/transport/http"
	"tradecouncil/internal/workflow"
)

// AppBuilder 按配置逐层组装依赖。构造函数可被测试替换。
type AppBuilder struct {
	cfg *config.Config

	sourceFn func(*config.Config) market.Source
	oracleFn func(*config.Config) *oracle.Service
	storeFn  func(*config.Config) (*sqlite.Store, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		sourceFn: buildMarketSource,
		oracleFn: buildOracleService,
		storeFn:  buildStore,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildMarketSource(cfg *config.Config) market.Source {
	return binancegw.New(binancegw.Config{})
}

func buildOracleService(cfg *config.Config) *oracle.Service {
	oc := cfg.Oracle
	if !oc.Enabled || oc.APIURL == "" {
		logger.Infof("oracle disabled, sentiment/debate will use deterministic fallbacks")
		return nil
	}
	client := &oracle.ChatClient{
		BaseURL:      oc.APIURL,
		APIKey:       oc.APIKey,
		Model:        oc.Model,
		Temperature:  oc.Temperature,
		Timeout:      time.Duration(oc.TimeoutSeconds) * time.Second,
		ExtraHeaders: oc.Headers,
	}
	rc := cfg.Resilience
	breaker := circuit.NewBreaker("oracle",
		rc.BreakerThreshold,
		time.Duration(rc.BreakerTimeoutSeconds)*time.Second)
	limiter := ratelimit.NewSlidingWindow(rc.RateLimitCalls,
		time.Duration(rc.RateLimitWindowSec)*time.Second)
	return oracle.NewService(client, breaker, limiter)
}

func buildStore(cfg *config.Config) (*sqlite.Store, error) {
	path := cfg.Store.Path
	if path == "" {
		path = "data/tradecouncil.db"
	}
	return sqlite.NewStore(path)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	st, err := b.storeFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化 sqlite 存储失败: %w", err)
	}

	safetyMgr := safety.NewManager(cfg.Safety, st, nil)

	source := b.sourceFn(cfg)
	rc := cfg.Resilience
	data := market.NewDataService(source, market.DataServiceConfig{
		HistoryBars:      cfg.Market.HistoryBars,
		IndicatorTTL:     time.Duration(cfg.Market.IndicatorTTLSec) * time.Second,
		BreakerThreshold: rc.BreakerThreshold,
		BreakerTimeout:   time.Duration(rc.BreakerTimeoutSeconds) * time.Second,
		RateLimitCalls:   rc.RateLimitCalls,
		RateLimitWindow:  time.Duration(rc.RateLimitWindowSec) * time.Second,
	})
	mood := market.NewMoodService()

	oracleSvc := b.oracleFn(cfg)

	weights, minConfidence, err := orchestrator.LoadWeights(cfg.Vote)
	if err != nil {
		return nil, fmt.Errorf("加载投票权重失败: %w", err)
	}
	council := orchestrator.New(weights, minConfidence, safetyMgr)

	gate := approval.NewGate(cfg.Approval.AutoThreshold,
		time.Duration(cfg.Approval.TimeoutSeconds)*time.Second, st)

	paper := broker.NewPaper()
	sectorOf := func(string) string { return "crypto" }
	account := newPaperPortfolio(0, sectorOf)

	runner := workflow.NewRunner(workflow.Deps{
		Data:          data,
		Mood:          mood,
		Technical:     signal.NewTechnicalProducer(),
		Sentiment:     signal.NewSentimentProducer(oracleSvc),
		MoodProd:      signal.NewMoodProducer(),
		Risk:          safety.NewRiskProducer(safetyMgr),
		Debate:        debate.NewEngine(oracleSvc),
		DebatePolicy:  debate.Policy(cfg.Debate.Policy),
		Orchestrator:  council,
		Safety:        safetyMgr,
		Gate:          gate,
		Broker:        paper,
		Portfolio:     account,
		Recorder:      multiRecorder{st, account},
		Sector:        sectorOf,
		AutoThreshold: cfg.Approval.AutoThreshold,
		MaxRetries:    cfg.Workflow.MaxRetries,
		BrokerRetries: cfg.Broker.MaxAttempts,
	})

	symbol := ""
	if len(cfg.Market.Symbols) > 0 {
		symbol = cfg.Market.Symbols[0]
	}
	httpSrv, err := transporthttp.NewServer(transporthttp.Config{
		Addr:      cfg.App.HTTPAddr,
		Gate:      gate,
		Store:     st,
		Safety:    safetyMgr,
		Runner:    runner,
		Symbol:    symbol,
		Timeframe: cfg.Market.Timeframe,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:    cfg,
		store:  st,
		runner: runner,
		http:   httpSrv,
	}, nil
}
