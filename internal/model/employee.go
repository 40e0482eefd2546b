package model

import (
	"errors"
	"time"
)

// 员工角色
const (
	RoleEmployee   = "employee"
	RoleSupervisor = "supervisor"
	RoleFinance    = "finance"
	RoleContracts  = "contracts"
	RoleAdmin      = "admin"
)

// EmployeeModel 员工数据模型
// supervisor_id 自引用构成组织树,工作流引擎只读不写
type EmployeeModel struct {
	ID               string    `gorm:"primaryKey;type:varchar(64)"`
	Name             string    `gorm:"type:varchar(255);not null"`
	Email            string    `gorm:"type:varchar(255);index"`
	Role             string    `gorm:"type:varchar(32);not null;index"` // employee/supervisor/finance/contracts/admin
	SupervisorID     *string   `gorm:"type:varchar(64);index"`          // 直属上级 ID(可为空)
	Archived         bool      `gorm:"not null;default:false;index"`    // 归档员工不参与任何收件人解析
	RemindersEnabled bool      `gorm:"not null;default:true"`           // 是否接收周报提醒
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName 指定表名
func (EmployeeModel) TableName() string {
	return "employees"
}

// Validate 验证员工模型
func (em *EmployeeModel) Validate() error {
	if em.ID == "" {
		return errors.New("employee ID is required")
	}
	if em.Name == "" {
		return errors.New("employee name is required")
	}
	if em.Role == "" {
		return errors.New("employee role is required")
	}
	return nil
}
