package model

import (
	"errors"
	"time"
)

// TimeEntryModel 工时记录数据模型
type TimeEntryModel struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)"`
	EmployeeID  string    `gorm:"type:varchar(64);not null;index"`
	Date        time.Time `gorm:"type:date;not null;index"`
	Hours       float64   `gorm:"type:decimal(10,2);not null"`
	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName 指定表名
func (TimeEntryModel) TableName() string {
	return "time_entries"
}

// Validate 验证工时记录模型
func (tm *TimeEntryModel) Validate() error {
	if tm.ID == "" {
		return errors.New("time entry ID is required")
	}
	if tm.EmployeeID == "" {
		return errors.New("employee ID is required")
	}
	if tm.Hours < 0 {
		return errors.New("hours must not be negative")
	}
	return nil
}
