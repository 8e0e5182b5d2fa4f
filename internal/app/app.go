package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tradecouncil/internal/config"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/scheduler"
	"tradecouncil/internal/store/sqlite"
	transporthttp "tradecouncil/internal/transport/http"
	"tradecouncil/internal/workflow"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 与决策循环。
type App struct {
	cfg    *config.Config
	store  *sqlite.Store
	runner *workflow.Runner
	http   *transporthttp.Server
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 管理面与对齐 K 线收盘的决策循环，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.store.Close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		a.decisionLoop(ctx)
		return nil
	})

	return group.Wait()
}

// Runner exposes the workflow runner (for testing/replay harnesses).
func (a *App) Runner() *workflow.Runner {
	if a == nil {
		return nil
	}
	return a.runner
}

func (a *App) decisionLoop(ctx context.Context) {
	interval, ok := scheduler.ParseTimeframe(a.cfg.Market.Timeframe)
	if !ok {
		interval = time.Duration(a.cfg.Market.CycleSeconds) * time.Second
	}
	if interval <= 0 {
		interval = time.Hour
	}
	sched := scheduler.NewAlignedScheduler(ctx, interval, 10*time.Second)
	sched.RunImmediately = true
	sched.Start(func() {
		for _, symbol := range a.cfg.Market.Symbols {
			if ctx.Err() != nil {
				return
			}
			st, err := a.runner.Run(ctx, symbol, a.cfg.Market.Timeframe)
			if err != nil {
				logger.Errorf("decision cycle for %s failed: %v", symbol, err)
				continue
			}
			logger.Infof("decision %s: %s confidence=%.2f status=%s",
				symbol, st.FinalAction, st.Confidence, st.ExecutionStatus)
		}
	})
}
