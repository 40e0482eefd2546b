package repository

import (
	"time"

	"github.com/mautops/expense-gin/internal/model"
	"gorm.io/gorm"
)

// ReportRepository 报告仓储接口
type ReportRepository interface {
	Save(report *model.ReportModel) error
	FindByID(id string) (*model.ReportModel, error)
	FindByEmployee(employeeID string) ([]*model.ReportModel, error)
	FindByFilter(filter *ReportFilter) ([]*model.ReportModel, error)
	FindPendingOlderThan(cutoff time.Time) ([]*model.ReportModel, error)
	// UpdateWithStep 在同一事务中更新报告并追加审批历史
	UpdateWithStep(report *model.ReportModel, step *model.ApprovalStepModel) error
	FindSteps(reportID string) ([]*model.ApprovalStepModel, error)
}

// ReportFilter 报告查询过滤器
type ReportFilter struct {
	Status     *string
	EmployeeID *string
	ApproverID *string
	Year       *int
	Month      *int
}

// reportRepository 报告仓储实现
type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建报告仓储
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

// Save 保存报告
func (r *reportRepository) Save(report *model.ReportModel) error {
	return r.db.Save(report).Error
}

// FindByID 根据 ID 查找报告
func (r *reportRepository) FindByID(id string) (*model.ReportModel, error) {
	var report model.ReportModel
	if err := r.db.Where("id = ?", id).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// FindByEmployee 查找员工的所有报告
func (r *reportRepository) FindByEmployee(employeeID string) ([]*model.ReportModel, error) {
	var reports []*model.ReportModel
	err := r.db.Where("employee_id = ?", employeeID).
		Order("year DESC, month DESC").
		Find(&reports).Error
	return reports, err
}

// FindByFilter 根据过滤器查找报告
func (r *reportRepository) FindByFilter(filter *ReportFilter) ([]*model.ReportModel, error) {
	var reports []*model.ReportModel
	query := r.db.Model(&model.ReportModel{})

	if filter != nil {
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
		if filter.EmployeeID != nil {
			query = query.Where("employee_id = ?", *filter.EmployeeID)
		}
		if filter.ApproverID != nil {
			query = query.Where("current_approver_id = ?", *filter.ApproverID)
		}
		if filter.Year != nil {
			query = query.Where("year = ?", *filter.Year)
		}
		if filter.Month != nil {
			query = query.Where("month = ?", *filter.Month)
		}
	}

	err := query.Order("updated_at DESC").Find(&reports).Error
	return reports, err
}

// FindPendingOlderThan 查找审批超期的报告
func (r *reportRepository) FindPendingOlderThan(cutoff time.Time) ([]*model.ReportModel, error) {
	var reports []*model.ReportModel
	err := r.db.Where("status = ? AND escalation_due_at IS NOT NULL AND escalation_due_at < ?",
		model.ReportStatusSubmitted, cutoff).
		Find(&reports).Error
	return reports, err
}

// UpdateWithStep 在同一事务中更新报告并追加审批历史
// 状态变更与历史记录要么一起提交,要么一起回滚
func (r *reportRepository) UpdateWithStep(report *model.ReportModel, step *model.ApprovalStepModel) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(report).Error; err != nil {
			return err
		}
		return tx.Create(step).Error
	})
}

// FindSteps 查找报告的审批历史
func (r *reportRepository) FindSteps(reportID string) ([]*model.ApprovalStepModel, error) {
	var steps []*model.ApprovalStepModel
	err := r.db.Where("report_id = ?", reportID).
		Order("created_at ASC").
		Find(&steps).Error
	return steps, err
}
