package workflow_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mautops/expense-gin/internal/directory"
	"github.com/mautops/expense-gin/internal/model"
	"github.com/mautops/expense-gin/internal/notify"
	"github.com/mautops/expense-gin/internal/repository"
	"github.com/mautops/expense-gin/internal/workflow"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubSender 测试用邮件桩,不发送任何邮件
type stubSender struct{}

func (stubSender) Send(to, subject, text, html string) error { return nil }
func (stubSender) Enabled() bool                             { return false }

// engineEnv 工作流引擎测试环境
type engineEnv struct {
	db           *gorm.DB
	reportRepo   repository.ReportRepository
	employeeRepo repository.EmployeeRepository
	notifRepo    repository.NotificationRepository
	engine       *workflow.Engine
}

// setupEngineEnv 创建引擎测试环境并预置组织结构
// emp-001 的直属上级是 sup-001,财务审批人有三位
func setupEngineEnv(t *testing.T) *engineEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&model.EmployeeModel{},
		&model.ReportModel{},
		&model.ApprovalStepModel{},
		&model.NotificationModel{},
	)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	employeeRepo := repository.NewEmployeeRepository(db)
	reportRepo := repository.NewReportRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	resolver := directory.NewResolver(employeeRepo, logger)
	notifier := notify.NewService(notifRepo, resolver, stubSender{}, logger)
	engine := workflow.NewEngine(reportRepo, resolver, notifier, nil, logger, nil)

	supID := "sup-001"
	employees := []*model.EmployeeModel{
		{ID: "sup-001", Name: "Sarah Supervisor", Role: model.RoleSupervisor, RemindersEnabled: true},
		{ID: "emp-001", Name: "Eddie Employee", Role: model.RoleEmployee, SupervisorID: &supID, RemindersEnabled: true},
		{ID: "fin-001", Name: "Fiona Finance", Role: model.RoleFinance, RemindersEnabled: true},
		{ID: "fin-002", Name: "Frank Finance", Role: model.RoleFinance, RemindersEnabled: true},
		{ID: "fin-003", Name: "Fred Finance", Role: model.RoleFinance, RemindersEnabled: true},
		{ID: "admin-001", Name: "Amy Admin", Role: model.RoleAdmin, RemindersEnabled: true},
		{ID: "arch-001", Name: "Archie Archived", Role: model.RoleSupervisor, Archived: true},
	}
	for _, e := range employees {
		require.NoError(t, employeeRepo.Save(e))
	}

	return &engineEnv{
		db:           db,
		reportRepo:   reportRepo,
		employeeRepo: employeeRepo,
		notifRepo:    notifRepo,
		engine:       engine,
	}
}

// seedReport 预置报告
func (env *engineEnv) seedReport(t *testing.T, id, employeeID, reportType, status string) *model.ReportModel {
	report := &model.ReportModel{
		ID:         id,
		EmployeeID: employeeID,
		Month:      6,
		Year:       2025,
		ReportType: reportType,
		Status:     status,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, env.reportRepo.Save(report))
	return report
}

// notificationsFor 查询某收件人的全部通知
func (env *engineEnv) notificationsFor(t *testing.T, recipientID string) []*model.NotificationModel {
	notifications, err := env.notifRepo.FindByRecipient(recipientID, nil)
	require.NoError(t, err)
	return notifications
}

// TestEngine_Submit 测试提交报告
func TestEngine_Submit(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)

	err := env.engine.Submit("rpt-001", "emp-001", "")
	assert.NoError(t, err)

	// 验证状态推进到 submitted,审批人是直属上级
	report, err := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusSubmitted, report.Status)
	assert.Equal(t, model.StageSupervisor, report.CurrentStage)
	require.NotNil(t, report.CurrentApproverID)
	assert.Equal(t, "sup-001", *report.CurrentApproverID)
	assert.NotNil(t, report.EscalationDueAt)

	// 验证审批历史
	steps, err := env.reportRepo.FindSteps("rpt-001")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "submit", steps[0].Action)
	assert.Equal(t, "emp-001", steps[0].ActorID)

	// 验证上级收到提交通知
	notifications := env.notificationsFor(t, "sup-001")
	require.Len(t, notifications, 1)
	assert.Equal(t, model.NotificationReportSubmitted, notifications[0].Type)
}

// TestEngine_Submit_FirstApproverOverride 测试显式指定首位审批人
func TestEngine_Submit_FirstApproverOverride(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)

	err := env.engine.Submit("rpt-001", "emp-001", "fin-001")
	assert.NoError(t, err)

	report, err := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, err)
	require.NotNil(t, report.CurrentApproverID)
	assert.Equal(t, "fin-001", *report.CurrentApproverID)

	// 通知发给指定的审批人而不是上级
	assert.Len(t, env.notificationsFor(t, "fin-001"), 1)
	assert.Empty(t, env.notificationsFor(t, "sup-001"))
}

// TestEngine_Submit_NoApprover 测试无法解析审批人时的提交
// 状态仍然推进,但返回 ErrNoApprover 供调用方降级上报
func TestEngine_Submit_NoApprover(t *testing.T) {
	env := setupEngineEnv(t)
	// sup-001 没有上级
	env.seedReport(t, "rpt-001", "sup-001", model.ReportTypeMonthly, model.ReportStatusDraft)

	err := env.engine.Submit("rpt-001", "sup-001", "")
	assert.ErrorIs(t, err, workflow.ErrNoApprover)

	// 状态照常推进,审批历史照常记录
	report, findErr := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, findErr)
	assert.Equal(t, model.ReportStatusSubmitted, report.Status)
	assert.Nil(t, report.CurrentApproverID)

	steps, findErr := env.reportRepo.FindSteps("rpt-001")
	require.NoError(t, findErr)
	assert.Len(t, steps, 1)
}

// TestEngine_Submit_InvalidStatus 测试非法状态下的提交
func TestEngine_Submit_InvalidStatus(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusSubmitted)
	env.seedReport(t, "rpt-002", "emp-001", model.ReportTypeMonthly, model.ReportStatusApproved)

	// 已提交的报告不能重复提交
	err := env.engine.Submit("rpt-001", "emp-001", "")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	// 终态报告返回冲突
	err = env.engine.Submit("rpt-002", "emp-001", "")
	assert.ErrorIs(t, err, workflow.ErrConflict)
}

// TestEngine_Submit_ReportNotFound 测试提交不存在的报告
// TestEngine_Submit_NotOwner 测试提交他人报告被拒绝
// 否则会按提交者而非报告所属员工解析审批链
func TestEngine_Submit_NotOwner(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)

	err := env.engine.Submit("rpt-001", "fin-001", "")
	assert.ErrorIs(t, err, workflow.ErrUnauthorizedApprover)

	// 状态未被污染
	report, err := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusDraft, report.Status)
	assert.Nil(t, report.CurrentApproverID)
}

func TestEngine_Submit_ReportNotFound(t *testing.T) {
	env := setupEngineEnv(t)

	err := env.engine.Submit("rpt-missing", "emp-001", "")
	assert.ErrorIs(t, err, workflow.ErrReportNotFound)
}

// TestEngine_ApproveStage_AdvanceToFinance 测试上级批准后推进到财务阶段
// 财务阶段是扇出阶段:没有唯一审批人,所有财务审批人各收一条通知
func TestEngine_ApproveStage_AdvanceToFinance(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)
	require.NoError(t, env.engine.Submit("rpt-001", "emp-001", ""))

	err := env.engine.ApproveStage("rpt-001", "sup-001")
	assert.NoError(t, err)

	report, err := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusSubmitted, report.Status)
	assert.Equal(t, model.StageFinance, report.CurrentStage)
	assert.Nil(t, report.CurrentApproverID)

	// 三位财务审批人各收到一条待审批通知
	for _, id := range []string{"fin-001", "fin-002", "fin-003"} {
		notifications := env.notificationsFor(t, id)
		require.Len(t, notifications, 1, "finance approver %s should be notified", id)
		assert.Equal(t, model.NotificationApprovalNeeded, notifications[0].Type)
	}
}

// TestEngine_ApproveStage_FinalApproval 测试财务批准后报告终态
func TestEngine_ApproveStage_FinalApproval(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)
	require.NoError(t, env.engine.Submit("rpt-001", "emp-001", ""))
	require.NoError(t, env.engine.ApproveStage("rpt-001", "sup-001"))

	err := env.engine.ApproveStage("rpt-001", "fin-002")
	assert.NoError(t, err)

	report, err := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusApproved, report.Status)
	assert.Empty(t, report.CurrentStage)
	assert.Nil(t, report.CurrentApproverID)
	assert.Nil(t, report.EscalationDueAt)

	// 员工收到批准通知
	notifications := env.notificationsFor(t, "emp-001")
	require.Len(t, notifications, 1)
	assert.Equal(t, model.NotificationReportApproved, notifications[0].Type)
	assert.Equal(t, "Expense Report Approved", notifications[0].Title)

	// 完整审批历史:submit + 两次 approve
	steps, err := env.reportRepo.FindSteps("rpt-001")
	require.NoError(t, err)
	assert.Len(t, steps, 3)
}

// TestEngine_ApproveStage_WeeklyChain 测试周报单级审批链
// 周报只经过上级,批准即终态
func TestEngine_ApproveStage_WeeklyChain(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeWeekly, model.ReportStatusDraft)
	require.NoError(t, env.engine.Submit("rpt-001", "emp-001", ""))

	err := env.engine.ApproveStage("rpt-001", "sup-001")
	assert.NoError(t, err)

	report, err := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusApproved, report.Status)

	// 周报使用专属文案
	notifications := env.notificationsFor(t, "emp-001")
	require.Len(t, notifications, 1)
	assert.Equal(t, "Weekly Check-up Approved", notifications[0].Title)

	// 财务从未被打扰
	assert.Empty(t, env.notificationsFor(t, "fin-001"))
}

// TestEngine_ApproveStage_Unauthorized 测试非法审批人
func TestEngine_ApproveStage_Unauthorized(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)
	require.NoError(t, env.engine.Submit("rpt-001", "emp-001", ""))

	// 指定审批阶段只有指定审批人能操作
	err := env.engine.ApproveStage("rpt-001", "fin-001")
	assert.ErrorIs(t, err, workflow.ErrUnauthorizedApprover)

	// 归档员工不能审批
	err = env.engine.ApproveStage("rpt-001", "arch-001")
	assert.ErrorIs(t, err, workflow.ErrUnauthorizedApprover)

	// 状态未被污染
	report, findErr := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, findErr)
	assert.Equal(t, model.StageSupervisor, report.CurrentStage)
}

// TestEngine_ApproveStage_FanOutAuthorization 测试扇出阶段按角色授权
func TestEngine_ApproveStage_FanOutAuthorization(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)
	require.NoError(t, env.engine.Submit("rpt-001", "emp-001", ""))
	require.NoError(t, env.engine.ApproveStage("rpt-001", "sup-001"))

	// 财务阶段上级不能再审批
	err := env.engine.ApproveStage("rpt-001", "sup-001")
	assert.ErrorIs(t, err, workflow.ErrUnauthorizedApprover)

	// 任意财务审批人都可以
	err = env.engine.ApproveStage("rpt-001", "fin-003")
	assert.NoError(t, err)
}

// TestEngine_ApproveStage_AdminOverride 测试管理员跨越审批人指派
func TestEngine_ApproveStage_AdminOverride(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)
	require.NoError(t, env.engine.Submit("rpt-001", "emp-001", ""))

	err := env.engine.ApproveStage("rpt-001", "admin-001")
	assert.NoError(t, err)
}

// TestEngine_ApproveStage_Conflict 测试并发失败侧的冲突语义
func TestEngine_ApproveStage_Conflict(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeWeekly, model.ReportStatusDraft)
	require.NoError(t, env.engine.Submit("rpt-001", "emp-001", ""))
	require.NoError(t, env.engine.ApproveStage("rpt-001", "sup-001"))

	// 已终态的报告再审批返回冲突
	err := env.engine.ApproveStage("rpt-001", "sup-001")
	assert.ErrorIs(t, err, workflow.ErrConflict)

	// 历史中只有一次 approve
	steps, findErr := env.reportRepo.FindSteps("rpt-001")
	require.NoError(t, findErr)
	approves := 0
	for _, step := range steps {
		if step.Action == "approve" {
			approves++
		}
	}
	assert.Equal(t, 1, approves)
}

// TestEngine_RequestRevision 测试上级请求修订
// 上级发起的修订请求直接通知员工本人
func TestEngine_RequestRevision(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)
	require.NoError(t, env.engine.Submit("rpt-001", "emp-001", ""))

	err := env.engine.RequestRevision("rpt-001", "sup-001", "missing receipts")
	assert.NoError(t, err)

	report, err := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusNeedsRevision, report.Status)
	assert.Nil(t, report.CurrentApproverID)
	assert.Nil(t, report.EscalationDueAt)

	// 员工收到修订通知,批注进入文案
	notifications := env.notificationsFor(t, "emp-001")
	require.Len(t, notifications, 1)
	assert.Equal(t, model.NotificationRevisionRequested, notifications[0].Type)
	assert.Contains(t, notifications[0].Message, "missing receipts")

	// 批注同时落入审批历史
	steps, err := env.reportRepo.FindSteps("rpt-001")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "request_revision", steps[1].Action)
	assert.Equal(t, "missing receipts", steps[1].Comments)
}

// TestEngine_RequestRevision_FinanceRoutesToSupervisor 测试财务发起的修订路由
// 财务发起的修订请求发给员工的上级而不是员工本人
func TestEngine_RequestRevision_FinanceRoutesToSupervisor(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)
	require.NoError(t, env.engine.Submit("rpt-001", "emp-001", ""))
	require.NoError(t, env.engine.ApproveStage("rpt-001", "sup-001"))

	err := env.engine.RequestRevision("rpt-001", "fin-001", "amounts do not add up")
	assert.NoError(t, err)

	// 修订通知发给上级
	var supervisorRevisions int
	for _, n := range env.notificationsFor(t, "sup-001") {
		if n.Type == model.NotificationRevisionRequested {
			supervisorRevisions++
		}
	}
	assert.Equal(t, 1, supervisorRevisions)

	// 员工本人没有修订通知
	for _, n := range env.notificationsFor(t, "emp-001") {
		assert.NotEqual(t, model.NotificationRevisionRequested, n.Type)
	}
}

// TestEngine_Resubmit 测试修订后重新提交
// needs_revision → submitted,回到审批链首
func TestEngine_Resubmit(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)
	require.NoError(t, env.engine.Submit("rpt-001", "emp-001", ""))
	require.NoError(t, env.engine.RequestRevision("rpt-001", "sup-001", "fix it"))

	err := env.engine.Submit("rpt-001", "emp-001", "")
	assert.NoError(t, err)

	report, err := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusSubmitted, report.Status)
	assert.Equal(t, model.StageSupervisor, report.CurrentStage)

	steps, err := env.reportRepo.FindSteps("rpt-001")
	require.NoError(t, err)
	assert.Len(t, steps, 3)
}

// TestEngine_RejectStage 测试拒绝报告
func TestEngine_RejectStage(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-001", model.ReportTypeMonthly, model.ReportStatusDraft)
	require.NoError(t, env.engine.Submit("rpt-001", "emp-001", ""))

	err := env.engine.RejectStage("rpt-001", "sup-001", "not a reimbursable expense")
	assert.NoError(t, err)

	report, err := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusRejected, report.Status)
	assert.True(t, report.IsTerminal())

	// 员工收到拒绝通知,拒绝理由进入文案
	notifications := env.notificationsFor(t, "emp-001")
	require.Len(t, notifications, 1)
	assert.Equal(t, "Expense Report Rejected", notifications[0].Title)
	assert.Contains(t, notifications[0].Message, "not a reimbursable expense")

	// 拒绝后不能再有任何转换
	err = env.engine.ApproveStage("rpt-001", "sup-001")
	assert.ErrorIs(t, err, workflow.ErrConflict)
	err = env.engine.Submit("rpt-001", "emp-001", "")
	assert.ErrorIs(t, err, workflow.ErrConflict)
}

// TestEngine_EmployeeNotFound 测试操作者不存在
func TestEngine_EmployeeNotFound(t *testing.T) {
	env := setupEngineEnv(t)
	env.seedReport(t, "rpt-001", "emp-missing", model.ReportTypeMonthly, model.ReportStatusDraft)

	err := env.engine.Submit("rpt-001", "emp-missing", "")
	assert.ErrorIs(t, err, workflow.ErrEmployeeNotFound)

	// 状态未变
	report, findErr := env.reportRepo.FindByID("rpt-001")
	require.NoError(t, findErr)
	assert.Equal(t, model.ReportStatusDraft, report.Status)
}

// TestEngine_ErrorsAreDistinct 测试错误哨兵互不混淆
func TestEngine_ErrorsAreDistinct(t *testing.T) {
	sentinels := []error{
		workflow.ErrInvalidTransition,
		workflow.ErrConflict,
		workflow.ErrUnauthorizedApprover,
		workflow.ErrNoApprover,
		workflow.ErrReportNotFound,
		workflow.ErrEmployeeNotFound,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.False(t, errors.Is(a, b))
			}
		}
	}
}
