package model

import "gorm.io/datatypes"

// DecisionRecordModel 一次完整工作流的终态快照。
type DecisionRecordModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	WorkflowID      string         `gorm:"column:workflow_id;uniqueIndex"`
	Symbol          string         `gorm:"column:symbol;index"`
	Timeframe       string         `gorm:"column:timeframe"`
	Action          string         `gorm:"column:action"`
	Confidence      float64        `gorm:"column:confidence"`
	Quantity        int64          `gorm:"column:quantity"`
	Reasoning       string         `gorm:"column:reasoning"`
	SignalsJSON     datatypes.JSON `gorm:"column:signals_json;type:TEXT"`
	DebateJSON      datatypes.JSON `gorm:"column:debate_json;type:TEXT"`
	SafetyBlocked   int            `gorm:"column:safety_blocked"`
	BlockReason     string         `gorm:"column:block_reason"`
	OrderID         string         `gorm:"column:order_id"`
	ExecutionStatus string         `gorm:"column:execution_status"`
	HumanApproved   *int           `gorm:"column:human_approved"`
	HumanFeedback   string         `gorm:"column:human_feedback"`
	RetryCount      int            `gorm:"column:retry_count"`
	CreatedAtUnix   int64          `gorm:"column:created_at;index"`
}

func (DecisionRecordModel) TableName() string { return "decision_records" }

// SafetyEventModel 熔断触发与复位的审计记录。
type SafetyEventModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	Kind          string `gorm:"column:kind"` // halt | reset
	Reason        string `gorm:"column:reason"`
	Operator      string `gorm:"column:operator"`
	CreatedAtUnix int64  `gorm:"column:created_at;index"`
}

func (SafetyEventModel) TableName() string { return "safety_events" }

// ApprovalRecordModel 审批请求的归档。
type ApprovalRecordModel struct {
	ID             int64   `gorm:"column:id;primaryKey"`
	RequestID      string  `gorm:"column:request_id;uniqueIndex"`
	Symbol         string  `gorm:"column:symbol"`
	Action         string  `gorm:"column:action"`
	Confidence     float64 `gorm:"column:confidence"`
	Status         string  `gorm:"column:status"`
	Feedback       string  `gorm:"column:feedback"`
	CreatedAtUnix  int64   `gorm:"column:created_at"`
	ResolvedAtUnix int64   `gorm:"column:resolved_at"`
}

func (ApprovalRecordModel) TableName() string { return "approval_records" }
