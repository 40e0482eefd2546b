package repository

import (
	"time"

	"github.com/mautops/expense-gin/internal/model"
	"gorm.io/gorm"
)

// TimeEntryRepository 工时仓储接口
type TimeEntryRepository interface {
	Save(entry *model.TimeEntryModel) error
	FindByEmployee(employeeID string, from, to time.Time) ([]*model.TimeEntryModel, error)
	// SumHours 汇总员工在日期区间内的总工时(闭区间,按天)
	SumHours(employeeID string, from, to time.Time) (float64, error)
}

// timeEntryRepository 工时仓储实现
type timeEntryRepository struct {
	db *gorm.DB
}

// NewTimeEntryRepository 创建工时仓储
func NewTimeEntryRepository(db *gorm.DB) TimeEntryRepository {
	return &timeEntryRepository{db: db}
}

// Save 保存工时记录
func (r *timeEntryRepository) Save(entry *model.TimeEntryModel) error {
	return r.db.Save(entry).Error
}

// FindByEmployee 查找员工在日期区间内的工时记录
func (r *timeEntryRepository) FindByEmployee(employeeID string, from, to time.Time) ([]*model.TimeEntryModel, error) {
	var entries []*model.TimeEntryModel
	err := r.db.Where("employee_id = ? AND date >= ? AND date <= ?", employeeID, from, to).
		Order("date ASC").
		Find(&entries).Error
	return entries, err
}

// SumHours 汇总员工在日期区间内的总工时
func (r *timeEntryRepository) SumHours(employeeID string, from, to time.Time) (float64, error) {
	var total float64
	err := r.db.Model(&model.TimeEntryModel{}).
		Where("employee_id = ? AND date >= ? AND date <= ?", employeeID, from, to).
		Select("COALESCE(SUM(hours), 0)").
		Scan(&total).Error
	return total, err
}
