package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tradecouncil/internal/approval"
	"tradecouncil/internal/safety"
	"tradecouncil/internal/store/sqlite"
	"tradecouncil/internal/workflow"
)

// 中文说明：
// 管理面 HTTP 接口：审批处置、决策日志查询、安全层状态与人工复位。
// 审批的推送走 Gate 的订阅通道，这里只提供拉取与处置。

type Server struct {
	addr   string
	gate   *approval.Gate
	store  *sqlite.Store
	safety *safety.Manager
	runner *workflow.Runner
	router *gin.Engine

	symbol    string
	timeframe string
}

type Config struct {
	Addr      string
	Gate      *approval.Gate
	Store     *sqlite.Store
	Safety    *safety.Manager
	Runner    *workflow.Runner
	Symbol    string
	Timeframe string
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Gate == nil || cfg.Safety == nil {
		return nil, errors.New("gate 与 safety 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:      cfg.Addr,
		gate:      cfg.Gate,
		store:     cfg.Store,
		safety:    cfg.Safety,
		runner:    cfg.Runner,
		router:    router,
		symbol:    cfg.Symbol,
		timeframe: cfg.Timeframe,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/api/approvals", s.handleApprovalsPending)
	s.router.POST("/api/approvals/:id/resolve", s.handleApprovalResolve)
	s.router.GET("/api/approvals/history", s.handleApprovalsHistory)
	s.router.GET("/api/decisions", s.handleDecisions)
	s.router.GET("/api/safety", s.handleSafetyStatus)
	s.router.POST("/api/safety/reset", s.handleSafetyReset)
	s.router.POST("/api/run", s.handleRun)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleApprovalsPending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending": s.gate.Pending()})
}

func (s *Server) handleApprovalResolve(c *gin.Context) {
	var req struct {
		Action   string `json:"action" binding:"required"` // approve | reject
		Feedback string `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg := approval.Message{
		Action:   req.Action,
		TradeID:  c.Param("id"),
		Feedback: req.Feedback,
	}
	if err := s.gate.Resolve(msg); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

func (s *Server) handleApprovalsHistory(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := s.store.ListApprovals(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"approvals": records})
}

func (s *Server) handleDecisions(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := s.store.ListDecisions(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": records})
}

func (s *Server) handleSafetyStatus(c *gin.Context) {
	halted, reason, dailyPnLPct, drawdownPct, losses := s.safety.Halt().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"halted":             halted,
		"reason":             reason,
		"daily_pnl_pct":      dailyPnLPct,
		"drawdown_pct":       drawdownPct,
		"consecutive_losses": losses,
	})
}

// handleSafetyReset 人工复位熔断，必须带操作者与理由。
func (s *Server) handleSafetyReset(c *gin.Context) {
	var req struct {
		By  string `json:"by" binding:"required"`
		Why string `json:"why" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.safety.Halt().Reset(req.By, req.Why); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// handleRun 手工触发一轮决策工作流（默认标的可被覆写）。
func (s *Server) handleRun(c *gin.Context) {
	if s.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "runner not configured"})
		return
	}
	var req struct {
		Symbol    string `json:"symbol"`
		Timeframe string `json:"timeframe"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Symbol == "" {
		req.Symbol = s.symbol
	}
	if req.Timeframe == "" {
		req.Timeframe = s.timeframe
	}
	st, err := s.runner.Run(c.Request.Context(), req.Symbol, req.Timeframe)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "state": st})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": st})
}

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
