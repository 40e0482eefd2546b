package directory

import (
	"github.com/mautops/expense-gin/internal/model"
	"github.com/mautops/expense-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

// Resolver 组织层级解析器
// 回答"谁是某员工的上级"、"财务审批人有哪些"、"某人管辖的全部员工"
// 所有查询对不存在的员工返回空值,从不报错,由调用方按"无收件人"处理
type Resolver struct {
	employeeRepo repository.EmployeeRepository
	logger       *logrus.Logger
}

// NewResolver 创建组织层级解析器
func NewResolver(employeeRepo repository.EmployeeRepository, logger *logrus.Logger) *Resolver {
	return &Resolver{
		employeeRepo: employeeRepo,
		logger:       logger,
	}
}

// Lookup 根据 ID 查找员工
// 不存在时返回 (nil, nil)
func (r *Resolver) Lookup(employeeID string) (*model.EmployeeModel, error) {
	return r.employeeRepo.FindByID(employeeID)
}

// GetSupervisor 查找员工的直属上级(单跳)
// 员工不存在、无上级、上级已归档时返回 nil
func (r *Resolver) GetSupervisor(employeeID string) (*model.EmployeeModel, error) {
	employee, err := r.employeeRepo.FindByID(employeeID)
	if err != nil {
		return nil, err
	}
	if employee == nil || employee.SupervisorID == nil {
		return nil, nil
	}

	supervisor, err := r.employeeRepo.FindByID(*employee.SupervisorID)
	if err != nil {
		return nil, err
	}
	if supervisor == nil || supervisor.Archived {
		return nil, nil
	}
	return supervisor, nil
}

// GetFinanceApprovers 查找所有在职财务审批人
func (r *Resolver) GetFinanceApprovers() ([]*model.EmployeeModel, error) {
	return r.employeeRepo.FindByRole(model.RoleFinance)
}

// GetAllSupervised 查找某人(传递闭包)管辖的全部员工 ID
// 用 visited 集合保证有环的脏数据也能终止,环按数据错误容忍而不是崩溃
func (r *Resolver) GetAllSupervised(rootID string) ([]string, error) {
	visited := map[string]bool{rootID: true}
	var result []string

	queue := []string{rootID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		reports, err := r.employeeRepo.FindBySupervisor(current)
		if err != nil {
			return nil, err
		}

		for _, report := range reports {
			if visited[report.ID] {
				r.logger.WithFields(logrus.Fields{
					"employee_id":   report.ID,
					"supervisor_id": current,
				}).Warn("supervisor hierarchy contains a cycle, skipping")
				continue
			}
			visited[report.ID] = true
			result = append(result, report.ID)
			queue = append(queue, report.ID)
		}
	}

	return result, nil
}
