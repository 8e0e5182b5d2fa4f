package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradecouncil/internal/approval"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/safety"
	"tradecouncil/internal/store/model"
	"tradecouncil/internal/workflow"
)

// 中文说明：
// 决策日志、安全审计与审批归档的唯一落库入口。
// 写路径都是 fire-and-forget：落库失败只记日志，不阻塞交易链路。

type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewStoreFromDB(db)
}

func NewStoreFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	models := []interface{}{
		&model.DecisionRecordModel{},
		&model.SafetyEventModel{},
		&model.ApprovalRecordModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordDecision 实现 workflow.Recorder。
func (s *Store) RecordDecision(st *workflow.State) {
	rec := model.DecisionRecordModel{
		WorkflowID:      st.WorkflowID,
		Symbol:          st.Symbol,
		Timeframe:       st.Timeframe,
		Action:          string(st.FinalAction),
		Confidence:      st.Confidence,
		OrderID:         st.OrderID,
		ExecutionStatus: st.ExecutionStatus,
		HumanFeedback:   st.HumanFeedback,
		RetryCount:      st.RetryCount,
		CreatedAtUnix:   nowUnix(),
	}
	if st.Decision != nil {
		rec.Quantity = st.Decision.Quantity
		rec.Reasoning = st.Decision.Reasoning
		rec.BlockReason = st.Decision.BlockReason
		if st.Decision.SafetyBlocked {
			rec.SafetyBlocked = 1
		}
		if !st.Decision.DecidedAt.IsZero() {
			rec.CreatedAtUnix = st.Decision.DecidedAt.Unix()
		}
	}
	if st.HumanApproved != nil {
		v := 0
		if *st.HumanApproved {
			v = 1
		}
		rec.HumanApproved = &v
	}
	if len(st.Signals) > 0 {
		if b, err := json.Marshal(st.SignalList()); err == nil {
			rec.SignalsJSON = datatypes.JSON(b)
		}
	}
	if st.Debate != nil {
		if b, err := json.Marshal(st.Debate); err == nil {
			rec.DebateJSON = datatypes.JSON(b)
		}
	}
	if err := s.db.Create(&rec).Error; err != nil {
		logger.Errorf("record decision %s failed: %v", st.WorkflowID, err)
	}
}

// RecordSafetyEvent 实现 safety.AuditSink。
func (s *Store) RecordSafetyEvent(event safety.HaltEvent) {
	rec := model.SafetyEventModel{
		Kind:          event.Kind,
		Reason:        event.Reason,
		Operator:      event.By,
		CreatedAtUnix: event.At.Unix(),
	}
	if err := s.db.Create(&rec).Error; err != nil {
		logger.Errorf("record safety event failed: %v", err)
	}
}

// ArchiveApproval 实现 approval.ArchiveSink。
func (s *Store) ArchiveApproval(req approval.Request) {
	rec := model.ApprovalRecordModel{
		RequestID:     req.ID,
		Symbol:        req.Symbol,
		Action:        string(req.Action),
		Confidence:    req.Confidence,
		Status:        string(req.Status),
		Feedback:      req.Feedback,
		CreatedAtUnix: req.CreatedAt.Unix(),
	}
	if !req.ResolvedAt.IsZero() {
		rec.ResolvedAtUnix = req.ResolvedAt.Unix()
	}
	if err := s.db.Create(&rec).Error; err != nil {
		logger.Errorf("archive approval %s failed: %v", req.ID, err)
	}
}

// ListDecisions 按时间倒序返回最近的决策记录。
func (s *Store) ListDecisions(ctx context.Context, symbol string, limit int) ([]model.DecisionRecordModel, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []model.DecisionRecordModel
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func nowUnix() int64 { return time.Now().Unix() }

// ListSafetyEvents 返回最近的审计事件。
func (s *Store) ListSafetyEvents(ctx context.Context, limit int) ([]model.SafetyEventModel, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []model.SafetyEventModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListApprovals 返回最近的审批归档。
func (s *Store) ListApprovals(ctx context.Context, limit int) ([]model.ApprovalRecordModel, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []model.ApprovalRecordModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
