package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/expense-gin/internal/directory"
	"github.com/mautops/expense-gin/internal/metrics"
	"github.com/mautops/expense-gin/internal/model"
	"github.com/mautops/expense-gin/internal/notify"
	"github.com/mautops/expense-gin/internal/repository"
	"github.com/mautops/expense-gin/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Config 工作流配置
type Config struct {
	// Chains 各报告类型的审批阶段链
	Chains map[string][]string

	// EscalationAfter 提交后多久未审批视为超期
	EscalationAfter time.Duration
}

// DefaultConfig 返回默认工作流配置
// 月报走 上级 → 财务 两级,周报只走上级一级
func DefaultConfig() *Config {
	return &Config{
		Chains: map[string][]string{
			model.ReportTypeMonthly: {model.StageSupervisor, model.StageFinance},
			model.ReportTypeWeekly:  {model.StageSupervisor},
		},
		EscalationAfter: 72 * time.Hour,
	}
}

// Engine 审批工作流状态机
// 报告状态的唯一变更方;所有转换按报告 ID 串行化,
// 状态变更与审批历史在同一事务内提交,通知与广播在提交之后触发
type Engine struct {
	reportRepo repository.ReportRepository
	resolver   *directory.Resolver
	notifier   notify.Service
	relay      *websocket.Relay
	logger     *logrus.Logger
	locks      *KeyedMutex
	cfg        *Config
}

// NewEngine 创建工作流引擎
func NewEngine(
	reportRepo repository.ReportRepository,
	resolver *directory.Resolver,
	notifier notify.Service,
	relay *websocket.Relay,
	logger *logrus.Logger,
	cfg *Config,
) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		reportRepo: reportRepo,
		resolver:   resolver,
		notifier:   notifier,
		relay:      relay,
		logger:     logger,
		locks:      NewKeyedMutex(),
		cfg:        cfg,
	}
}

// chainFor 返回报告类型对应的阶段链
func (e *Engine) chainFor(reportType string) []string {
	if chain, ok := e.cfg.Chains[reportType]; ok && len(chain) > 0 {
		return chain
	}
	return e.cfg.Chains[model.ReportTypeMonthly]
}

// stageIndex 返回阶段在链中的位置,不在链中返回 -1
func stageIndex(chain []string, stage string) int {
	for i, s := range chain {
		if s == stage {
			return i
		}
	}
	return -1
}

// loadReport 加载报告,不存在时返回 ErrReportNotFound
func (e *Engine) loadReport(reportID string) (*model.ReportModel, error) {
	report, err := e.reportRepo.FindByID(reportID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	return report, nil
}

// loadEmployee 加载员工,不存在时返回 ErrEmployeeNotFound
func (e *Engine) loadEmployee(employeeID string) (*model.EmployeeModel, error) {
	employee, err := e.resolver.Lookup(employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up employee: %w", err)
	}
	if employee == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
	}
	return employee, nil
}

// resolveStageRecipients 解析某阶段的收件人
// 上级/初审阶段是单收件人,财务阶段是多收件人扇出
func (e *Engine) resolveStageRecipients(stage string, employeeID string) ([]*model.EmployeeModel, error) {
	switch stage {
	case model.StageFinance:
		return e.resolver.GetFinanceApprovers()
	default:
		supervisor, err := e.resolver.GetSupervisor(employeeID)
		if err != nil {
			return nil, err
		}
		if supervisor == nil {
			return nil, nil
		}
		return []*model.EmployeeModel{supervisor}, nil
	}
}

// Submit 提交报告
// draft/needs_revision → submitted,阶段置为链首
// firstApproverID 非空时作为首位审批人覆盖,否则解析员工的直属上级
// 无法解析出审批人时状态仍然推进,返回 ErrNoApprover 供调用方上报管理员
func (e *Engine) Submit(reportID, employeeID, firstApproverID string) error {
	e.locks.Lock(reportID)
	defer e.locks.Unlock(reportID)

	report, err := e.loadReport(reportID)
	if err != nil {
		return err
	}
	// 只能提交本人的报告,否则会按提交者解析出错误的审批链
	if report.EmployeeID != employeeID {
		return fmt.Errorf("%w: report belongs to another employee", ErrUnauthorizedApprover)
	}
	if report.Status != model.ReportStatusDraft && report.Status != model.ReportStatusNeedsRevision {
		if report.IsTerminal() {
			return fmt.Errorf("%w: status is %s", ErrConflict, report.Status)
		}
		return fmt.Errorf("%w: cannot submit from %s", ErrInvalidTransition, report.Status)
	}

	employee, err := e.loadEmployee(employeeID)
	if err != nil {
		return err
	}

	chain := e.chainFor(report.ReportType)
	stage := chain[0]

	// 解析首位审批人:显式覆盖优先,否则取直属上级
	var recipient *model.EmployeeModel
	if firstApproverID != "" {
		recipient, err = e.resolver.Lookup(firstApproverID)
		if err != nil {
			return fmt.Errorf("failed to look up first approver: %w", err)
		}
		if recipient != nil && recipient.Archived {
			recipient = nil
		}
	} else {
		recipient, err = e.resolver.GetSupervisor(employeeID)
		if err != nil {
			return fmt.Errorf("failed to resolve supervisor: %w", err)
		}
	}

	now := time.Now()
	dueAt := now.Add(e.cfg.EscalationAfter)
	report.Status = model.ReportStatusSubmitted
	report.CurrentStage = stage
	report.EscalationDueAt = &dueAt
	report.UpdatedAt = now
	if recipient != nil {
		report.CurrentApproverID = &recipient.ID
	} else {
		report.CurrentApproverID = nil
	}

	step := &model.ApprovalStepModel{
		ID:        uuid.New().String(),
		ReportID:  report.ID,
		Stage:     stage,
		ActorID:   employee.ID,
		Action:    "submit",
		CreatedAt: now,
	}
	if err := e.reportRepo.UpdateWithStep(report, step); err != nil {
		return fmt.Errorf("failed to persist submission: %w", err)
	}

	metrics.RecordTransition("submit")

	if err := e.notifier.NotifyReportSubmitted(report, employee, recipient); err != nil {
		e.logger.WithError(err).WithField("report_id", report.ID).
			Warn("failed to dispatch submission notification")
	}
	e.publish(report)

	if recipient == nil {
		return fmt.Errorf("%w for stage %s of report %s", ErrNoApprover, stage, report.ID)
	}
	return nil
}

// ApproveStage 审批通过当前阶段
// 还有后续阶段时推进阶段并通知下一批审批人,否则终态 approved 并通知员工
func (e *Engine) ApproveStage(reportID, approverID string) error {
	e.locks.Lock(reportID)
	defer e.locks.Unlock(reportID)

	report, err := e.loadReport(reportID)
	if err != nil {
		return err
	}
	if report.Status != model.ReportStatusSubmitted {
		if report.IsTerminal() || report.Status == model.ReportStatusNeedsRevision {
			return fmt.Errorf("%w: status is %s", ErrConflict, report.Status)
		}
		return fmt.Errorf("%w: cannot approve from %s", ErrInvalidTransition, report.Status)
	}

	approver, err := e.loadEmployee(approverID)
	if err != nil {
		return err
	}
	if err := e.authorizeApprover(report, approver); err != nil {
		return err
	}

	employee, err := e.loadEmployee(report.EmployeeID)
	if err != nil {
		return err
	}

	chain := e.chainFor(report.ReportType)
	idx := stageIndex(chain, report.CurrentStage)
	now := time.Now()

	step := &model.ApprovalStepModel{
		ID:        uuid.New().String(),
		ReportID:  report.ID,
		Stage:     report.CurrentStage,
		ActorID:   approver.ID,
		Action:    "approve",
		CreatedAt: now,
	}

	if idx >= 0 && idx < len(chain)-1 {
		// 推进到下一阶段
		nextStage := chain[idx+1]
		recipients, err := e.resolveStageRecipients(nextStage, report.EmployeeID)
		if err != nil {
			return fmt.Errorf("failed to resolve recipients for stage %s: %w", nextStage, err)
		}

		dueAt := now.Add(e.cfg.EscalationAfter)
		report.CurrentStage = nextStage
		report.EscalationDueAt = &dueAt
		report.UpdatedAt = now
		if len(recipients) == 1 {
			report.CurrentApproverID = &recipients[0].ID
		} else {
			// 扇出阶段没有唯一审批人,按角色匹配授权
			report.CurrentApproverID = nil
		}

		if err := e.reportRepo.UpdateWithStep(report, step); err != nil {
			return fmt.Errorf("failed to persist approval: %w", err)
		}

		metrics.RecordTransition("approve")

		if err := e.notifier.NotifyApprovalNeeded(report, employee, recipients, approver); err != nil {
			e.logger.WithError(err).WithField("report_id", report.ID).
				Warn("failed to dispatch approval-needed notification")
		}
		e.publish(report)

		if len(recipients) == 0 {
			return fmt.Errorf("%w for stage %s of report %s", ErrNoApprover, nextStage, report.ID)
		}
		return nil
	}

	// 最后一个阶段,报告终态 approved
	report.Status = model.ReportStatusApproved
	report.CurrentStage = ""
	report.CurrentApproverID = nil
	report.EscalationDueAt = nil
	report.UpdatedAt = now

	if err := e.reportRepo.UpdateWithStep(report, step); err != nil {
		return fmt.Errorf("failed to persist approval: %w", err)
	}

	metrics.RecordTransition("approve")

	if err := e.notifier.NotifyReportApproved(report, employee, approver); err != nil {
		e.logger.WithError(err).WithField("report_id", report.ID).
			Warn("failed to dispatch approval notification")
	}
	e.publish(report)
	return nil
}

// RequestRevision 请求修订
// submitted → needs_revision,批注写入审批历史
// 通知方向由发起人角色决定(财务 → 上级,上级 → 员工)
func (e *Engine) RequestRevision(reportID, reviewerID, comments string) error {
	e.locks.Lock(reportID)
	defer e.locks.Unlock(reportID)

	report, err := e.loadReport(reportID)
	if err != nil {
		return err
	}
	if report.Status != model.ReportStatusSubmitted {
		if report.IsTerminal() {
			return fmt.Errorf("%w: status is %s", ErrConflict, report.Status)
		}
		return fmt.Errorf("%w: cannot request revision from %s", ErrInvalidTransition, report.Status)
	}

	reviewer, err := e.loadEmployee(reviewerID)
	if err != nil {
		return err
	}
	employee, err := e.loadEmployee(report.EmployeeID)
	if err != nil {
		return err
	}

	now := time.Now()
	stage := report.CurrentStage
	report.Status = model.ReportStatusNeedsRevision
	report.CurrentStage = ""
	report.CurrentApproverID = nil
	report.EscalationDueAt = nil
	report.UpdatedAt = now

	step := &model.ApprovalStepModel{
		ID:        uuid.New().String(),
		ReportID:  report.ID,
		Stage:     stage,
		ActorID:   reviewer.ID,
		Action:    "request_revision",
		Comments:  comments,
		CreatedAt: now,
	}
	if err := e.reportRepo.UpdateWithStep(report, step); err != nil {
		return fmt.Errorf("failed to persist revision request: %w", err)
	}

	metrics.RecordTransition("request_revision")

	if err := e.notifier.NotifyRevisionRequested(report, employee, reviewer, comments); err != nil {
		e.logger.WithError(err).WithField("report_id", report.ID).
			Warn("failed to dispatch revision notification")
	}
	e.publish(report)
	return nil
}

// RejectStage 拒绝报告,终态 rejected,通知员工本人
func (e *Engine) RejectStage(reportID, approverID, reason string) error {
	e.locks.Lock(reportID)
	defer e.locks.Unlock(reportID)

	report, err := e.loadReport(reportID)
	if err != nil {
		return err
	}
	if report.Status != model.ReportStatusSubmitted {
		if report.IsTerminal() || report.Status == model.ReportStatusNeedsRevision {
			return fmt.Errorf("%w: status is %s", ErrConflict, report.Status)
		}
		return fmt.Errorf("%w: cannot reject from %s", ErrInvalidTransition, report.Status)
	}

	approver, err := e.loadEmployee(approverID)
	if err != nil {
		return err
	}
	if err := e.authorizeApprover(report, approver); err != nil {
		return err
	}
	employee, err := e.loadEmployee(report.EmployeeID)
	if err != nil {
		return err
	}

	now := time.Now()
	stage := report.CurrentStage
	report.Status = model.ReportStatusRejected
	report.CurrentStage = ""
	report.CurrentApproverID = nil
	report.EscalationDueAt = nil
	report.UpdatedAt = now

	step := &model.ApprovalStepModel{
		ID:        uuid.New().String(),
		ReportID:  report.ID,
		Stage:     stage,
		ActorID:   approver.ID,
		Action:    "reject",
		Comments:  reason,
		CreatedAt: now,
	}
	if err := e.reportRepo.UpdateWithStep(report, step); err != nil {
		return fmt.Errorf("failed to persist rejection: %w", err)
	}

	metrics.RecordTransition("reject")

	// 拒绝是发给员工本人的终态反馈,复用 revision_requested 类型
	message := fmt.Sprintf("Your expense report for %s was rejected by %s.", report.Period(), approver.Name)
	if reason != "" {
		message = fmt.Sprintf("%s Reason: %s", message, reason)
	}
	rejection := &notify.CreateSpec{
		RecipientID:   employee.ID,
		RecipientRole: employee.Role,
		Type:          model.NotificationRevisionRequested,
		Title:         "Expense Report Rejected",
		Message:       message,
		ReportID:      report.ID,
		EmployeeID:    employee.ID,
		EmployeeName:  employee.Name,
		ActorID:       approver.ID,
		ActorName:     approver.Name,
		ActorRole:     approver.Role,
	}
	if _, err := e.notifier.Create(rejection); err != nil {
		e.logger.WithError(err).WithField("report_id", report.ID).
			Warn("failed to dispatch rejection notification")
	}
	e.publish(report)
	return nil
}

// authorizeApprover 校验操作者是否为当前阶段的合法审批人
// 有唯一审批人时按 ID 匹配,扇出阶段按角色匹配
func (e *Engine) authorizeApprover(report *model.ReportModel, approver *model.EmployeeModel) error {
	if approver.Archived {
		return fmt.Errorf("%w: approver is archived", ErrUnauthorizedApprover)
	}
	if report.CurrentApproverID != nil {
		if *report.CurrentApproverID != approver.ID && approver.Role != model.RoleAdmin {
			return fmt.Errorf("%w: report %s is assigned to another approver", ErrUnauthorizedApprover, report.ID)
		}
		return nil
	}
	// 扇出阶段按角色授权
	if report.CurrentStage == model.StageFinance {
		if approver.Role != model.RoleFinance && approver.Role != model.RoleAdmin {
			return fmt.Errorf("%w: finance stage requires a finance approver", ErrUnauthorizedApprover)
		}
		return nil
	}
	if approver.Role != model.RoleSupervisor && approver.Role != model.RoleAdmin {
		return fmt.Errorf("%w: stage %s requires a supervisor", ErrUnauthorizedApprover, report.CurrentStage)
	}
	return nil
}

// publish 推送报告变更的刷新提示
func (e *Engine) publish(report *model.ReportModel) {
	if e.relay == nil {
		return
	}
	e.relay.Publish("report", "status_changed", map[string]interface{}{
		"report_id": report.ID,
		"status":    report.Status,
		"stage":     report.CurrentStage,
	})
}
