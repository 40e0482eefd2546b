package model

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// 通知类型(封闭枚举,生产方与消费方必须完全一致)
const (
	NotificationReportSubmitted   = "report_submitted"
	NotificationRevisionRequested = "revision_requested"
	NotificationApprovalNeeded    = "approval_needed"
	NotificationReportApproved    = "report_approved"
	NotificationHoursAlert        = "50_plus_hours_alert"
	NotificationSundayReminder    = "sunday_reminder"
)

// NotificationModel 通知数据模型
// 只由通知分发服务写入,收件箱侧负责已读/忽略/解除
type NotificationModel struct {
	ID            string         `gorm:"primaryKey;type:varchar(64)"`
	RecipientID   string         `gorm:"type:varchar(64);not null;index"`
	RecipientRole string         `gorm:"type:varchar(32);not null"`
	Type          string         `gorm:"type:varchar(32);not null;index"`
	Title         string         `gorm:"type:varchar(255);not null"`
	Message       string         `gorm:"type:text"`
	ReportID      *string        `gorm:"type:varchar(64);index"` // 关联报告(可为空)
	EmployeeID    *string        `gorm:"type:varchar(64);index"` // 通知主体员工
	EmployeeName  string         `gorm:"type:varchar(255)"`
	ActorID       *string        `gorm:"type:varchar(64)"` // 触发者
	ActorName     string         `gorm:"type:varchar(255)"`
	ActorRole     string         `gorm:"type:varchar(32)"`
	IsRead        bool           `gorm:"not null;default:false;index"`
	IsDismissible bool           `gorm:"not null;default:true"` // false 表示常驻告警,只能显式解除
	Resolved      bool           `gorm:"not null;default:false;index"`
	WeekStart     *time.Time     `gorm:"index"` // 按周去重的键,仅周相关告警设置
	Metadata      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"not null;index"`
	ReadAt        *time.Time
}

// TableName 指定表名
func (NotificationModel) TableName() string {
	return "notifications"
}

// Validate 验证通知模型
func (nm *NotificationModel) Validate() error {
	if nm.ID == "" {
		return errors.New("notification ID is required")
	}
	if nm.RecipientID == "" {
		return errors.New("recipient ID is required")
	}
	if nm.RecipientRole == "" {
		return errors.New("recipient role is required")
	}
	if nm.Type == "" {
		return errors.New("notification type is required")
	}
	if nm.Title == "" {
		return errors.New("notification title is required")
	}
	if nm.Message == "" {
		return errors.New("notification message is required")
	}
	return nil
}

// HoursAlertMetadata 50+ 小时告警的元数据
type HoursAlertMetadata struct {
	WeekStart  string  `json:"week_start"` // YYYY-MM-DD
	WeekEnd    string  `json:"week_end"`   // YYYY-MM-DD
	TotalHours float64 `json:"total_hours"`
}

// ReminderMetadata 周期提醒的元数据
type ReminderMetadata struct {
	ReminderType string `json:"reminder_type"`
}

// SetMetadata 序列化并写入元数据
func (nm *NotificationModel) SetMetadata(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	nm.Metadata = datatypes.JSON(data)
	return nil
}

// HoursAlertMeta 按类型解码 50+ 小时告警元数据
func (nm *NotificationModel) HoursAlertMeta() (*HoursAlertMetadata, error) {
	if nm.Type != NotificationHoursAlert {
		return nil, errors.New("notification is not an hours alert")
	}
	var meta HoursAlertMetadata
	if err := json.Unmarshal(nm.Metadata, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ReminderMeta 按类型解码提醒元数据
func (nm *NotificationModel) ReminderMeta() (*ReminderMetadata, error) {
	if nm.Type != NotificationSundayReminder {
		return nil, errors.New("notification is not a reminder")
	}
	var meta ReminderMetadata
	if err := json.Unmarshal(nm.Metadata, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
