package repository

import (
	"errors"

	"github.com/mautops/expense-gin/internal/model"
	"gorm.io/gorm"
)

// EmployeeRepository 员工仓储接口
// 工作流引擎只读员工数据,写入由 HR 同步或管理端完成
type EmployeeRepository interface {
	Save(employee *model.EmployeeModel) error
	FindByID(id string) (*model.EmployeeModel, error)
	FindBySupervisor(supervisorID string) ([]*model.EmployeeModel, error)
	FindByRole(role string) ([]*model.EmployeeModel, error)
	FindActive() ([]*model.EmployeeModel, error)
}

// employeeRepository 员工仓储实现
type employeeRepository struct {
	db *gorm.DB
}

// NewEmployeeRepository 创建员工仓储
func NewEmployeeRepository(db *gorm.DB) EmployeeRepository {
	return &employeeRepository{db: db}
}

// Save 保存员工
func (r *employeeRepository) Save(employee *model.EmployeeModel) error {
	return r.db.Save(employee).Error
}

// FindByID 根据 ID 查找员工
// 员工不存在时返回 (nil, nil),调用方按"无收件人"处理
func (r *employeeRepository) FindByID(id string) (*model.EmployeeModel, error) {
	var employee model.EmployeeModel
	if err := r.db.Where("id = ?", id).First(&employee).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &employee, nil
}

// FindBySupervisor 查找直属下级(不含归档员工)
func (r *employeeRepository) FindBySupervisor(supervisorID string) ([]*model.EmployeeModel, error) {
	var employees []*model.EmployeeModel
	err := r.db.Where("supervisor_id = ? AND archived = ?", supervisorID, false).
		Find(&employees).Error
	return employees, err
}

// FindByRole 按角色查找在职员工
func (r *employeeRepository) FindByRole(role string) ([]*model.EmployeeModel, error) {
	var employees []*model.EmployeeModel
	err := r.db.Where("role = ? AND archived = ?", role, false).
		Find(&employees).Error
	return employees, err
}

// FindActive 查找所有在职员工
func (r *employeeRepository) FindActive() ([]*model.EmployeeModel, error) {
	var employees []*model.EmployeeModel
	err := r.db.Where("archived = ?", false).Find(&employees).Error
	return employees, err
}
