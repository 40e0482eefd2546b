package model

import (
	"errors"
	"fmt"
	"time"
)

// 报告状态
const (
	ReportStatusDraft         = "draft"
	ReportStatusSubmitted     = "submitted"
	ReportStatusNeedsRevision = "needs_revision"
	ReportStatusApproved      = "approved"
	ReportStatusRejected      = "rejected"
)

// 审批阶段
const (
	StageFirstApprover = "first_approver"
	StageSupervisor    = "supervisor"
	StageFinance       = "finance"
)

// 报告类型
const (
	ReportTypeMonthly = "monthly"
	ReportTypeWeekly  = "weekly"
)

// ReportModel 费用报告数据模型
// 每个 (员工, 周期) 对应一条记录,状态仅由工作流引擎变更,永不物理删除
type ReportModel struct {
	ID                string     `gorm:"primaryKey;type:varchar(64)"`
	EmployeeID        string     `gorm:"type:varchar(64);not null;index"`
	Month             int        `gorm:"type:int;not null"`
	Year              int        `gorm:"type:int;not null;index"`
	ReportType        string     `gorm:"type:varchar(16);not null;default:'monthly'"` // monthly/weekly
	TotalAmount       float64    `gorm:"type:decimal(10,2)"`
	TotalMiles        float64    `gorm:"type:decimal(10,2)"`
	Status            string     `gorm:"type:varchar(32);not null;index"` // 报告状态
	CurrentStage      string     `gorm:"type:varchar(32)"`                // 当前审批阶段
	CurrentApproverID *string    `gorm:"type:varchar(64);index"`          // 当前审批人 ID(可为空)
	EscalationDueAt   *time.Time `gorm:"index"`                           // 审批超期时间
	CreatedAt         time.Time  `gorm:"not null;index"`
	UpdatedAt         time.Time  `gorm:"not null"`
}

// TableName 指定表名
func (ReportModel) TableName() string {
	return "reports"
}

// Validate 验证报告模型
func (rm *ReportModel) Validate() error {
	if rm.ID == "" {
		return errors.New("report ID is required")
	}
	if rm.EmployeeID == "" {
		return errors.New("employee ID is required")
	}
	if rm.Status == "" {
		return errors.New("report status is required")
	}
	if rm.Month < 1 || rm.Month > 12 {
		return errors.New("report month is out of range")
	}
	return nil
}

// IsTerminal 判断报告是否处于终态
func (rm *ReportModel) IsTerminal() bool {
	return rm.Status == ReportStatusApproved || rm.Status == ReportStatusRejected
}

// Period 返回报告的周期描述,用于通知文案
func (rm *ReportModel) Period() string {
	return fmt.Sprintf("%s %d", time.Month(rm.Month).String(), rm.Year)
}

// ApprovalStepModel 审批流转历史数据模型
// 只追加,与报告状态变更在同一事务内提交
type ApprovalStepModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	ReportID  string    `gorm:"type:varchar(64);not null;index"`
	Stage     string    `gorm:"type:varchar(32);not null"`
	ActorID   string    `gorm:"type:varchar(64);not null"`
	Action    string    `gorm:"type:varchar(32);not null"` // submit/approve/request_revision/reject
	Comments  string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;index"`
}

// TableName 指定表名
func (ApprovalStepModel) TableName() string {
	return "approval_steps"
}

// Validate 验证审批历史模型
func (sm *ApprovalStepModel) Validate() error {
	if sm.ID == "" {
		return errors.New("step ID is required")
	}
	if sm.ReportID == "" {
		return errors.New("report ID is required")
	}
	if sm.Action == "" {
		return errors.New("step action is required")
	}
	if sm.ActorID == "" {
		return errors.New("actor ID is required")
	}
	return nil
}
