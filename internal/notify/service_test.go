package notify_test

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/mautops/expense-gin/internal/directory"
	"github.com/mautops/expense-gin/internal/model"
	"github.com/mautops/expense-gin/internal/notify"
	"github.com/mautops/expense-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// recordingSender 记录发送的邮件桩
type recordingSender struct {
	sent chan string // 收件人地址
	fail bool
}

func newRecordingSender(fail bool) *recordingSender {
	return &recordingSender{sent: make(chan string, 16), fail: fail}
}

func (r *recordingSender) Send(to, subject, text, html string) error {
	r.sent <- to
	if r.fail {
		return fmt.Errorf("smtp connection refused")
	}
	return nil
}

func (r *recordingSender) Enabled() bool { return true }

// notifyEnv 通知服务测试环境
type notifyEnv struct {
	notifRepo    repository.NotificationRepository
	employeeRepo repository.EmployeeRepository
	sender       *recordingSender
	svc          notify.Service
}

// setupNotifyEnv 创建通知服务测试环境
func setupNotifyEnv(t *testing.T, failSender bool) *notifyEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.EmployeeModel{}, &model.NotificationModel{}))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	employeeRepo := repository.NewEmployeeRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	resolver := directory.NewResolver(employeeRepo, logger)
	sender := newRecordingSender(failSender)
	svc := notify.NewService(notifRepo, resolver, sender, logger)

	supID := "sup-001"
	employees := []*model.EmployeeModel{
		{ID: "sup-001", Name: "Sarah Supervisor", Email: "sarah@example.com", Role: model.RoleSupervisor, RemindersEnabled: true},
		{ID: "emp-001", Name: "Eddie Employee", Email: "eddie@example.com", Role: model.RoleEmployee, SupervisorID: &supID, RemindersEnabled: true},
	}
	for _, e := range employees {
		require.NoError(t, employeeRepo.Save(e))
	}

	return &notifyEnv{
		notifRepo:    notifRepo,
		employeeRepo: employeeRepo,
		sender:       sender,
		svc:          svc,
	}
}

// waitForEmail 等待异步邮件发出
func (env *notifyEnv) waitForEmail(t *testing.T) string {
	select {
	case to := <-env.sender.sent:
		return to
	case <-time.After(2 * time.Second):
		t.Fatal("expected an email to be sent")
		return ""
	}
}

// TestService_Create 测试创建通知并异步发邮件
func TestService_Create(t *testing.T) {
	env := setupNotifyEnv(t, false)

	id, err := env.svc.Create(&notify.CreateSpec{
		RecipientID:   "emp-001",
		RecipientRole: model.RoleEmployee,
		Type:          model.NotificationReportApproved,
		Title:         "Expense Report Approved",
		Message:       "Your report has been approved.",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, id)

	// 通知落库,默认可忽略
	saved, err := env.notifRepo.FindByID(id)
	require.NoError(t, err)
	assert.Equal(t, "emp-001", saved.RecipientID)
	assert.True(t, saved.IsDismissible)
	assert.False(t, saved.IsRead)

	// 邮件发到收件人邮箱
	assert.Equal(t, "eddie@example.com", env.waitForEmail(t))
}

// TestService_Create_Validation 测试必填字段校验
func TestService_Create_Validation(t *testing.T) {
	env := setupNotifyEnv(t, false)

	cases := []*notify.CreateSpec{
		nil,
		{RecipientRole: "employee", Type: model.NotificationReportApproved, Title: "t", Message: "m"}, // 缺收件人
		{RecipientID: "emp-001", Type: model.NotificationReportApproved, Title: "t", Message: "m"},   // 缺角色
		{RecipientID: "emp-001", RecipientRole: "employee", Title: "t", Message: "m"},                // 缺类型
		{RecipientID: "emp-001", RecipientRole: "employee", Type: model.NotificationReportApproved, Message: "m"}, // 缺标题
	}
	for _, spec := range cases {
		id, err := env.svc.Create(spec)
		assert.Error(t, err)
		assert.Empty(t, id)
	}
}

// TestService_Create_EmailFailureIsolated 测试邮件失败不影响通知创建
func TestService_Create_EmailFailureIsolated(t *testing.T) {
	env := setupNotifyEnv(t, true)

	id, err := env.svc.Create(&notify.CreateSpec{
		RecipientID:   "emp-001",
		RecipientRole: model.RoleEmployee,
		Type:          model.NotificationReportApproved,
		Title:         "Expense Report Approved",
		Message:       "Your report has been approved.",
	})
	assert.NoError(t, err)

	// 邮件确实尝试过并失败,但通知已在收件箱里
	env.waitForEmail(t)
	saved, err := env.notifRepo.FindByID(id)
	assert.NoError(t, err)
	assert.NotNil(t, saved)
}

// TestService_Create_SkipEmail 测试显式关闭邮件通道
func TestService_Create_SkipEmail(t *testing.T) {
	env := setupNotifyEnv(t, false)

	skip := false
	_, err := env.svc.Create(&notify.CreateSpec{
		RecipientID:   "emp-001",
		RecipientRole: model.RoleEmployee,
		Type:          model.NotificationSundayReminder,
		Title:         "Weekly Report Reminder",
		Message:       "Submit your report.",
		SendEmail:     &skip,
	})
	assert.NoError(t, err)

	select {
	case <-env.sender.sent:
		t.Fatal("no email should be sent when SendEmail is false")
	case <-time.After(200 * time.Millisecond):
	}
}

// TestService_NotifyApprovalNeeded_NoRecipients 测试零收件人降级
func TestService_NotifyApprovalNeeded_NoRecipients(t *testing.T) {
	env := setupNotifyEnv(t, false)

	report := &model.ReportModel{ID: "rpt-001", EmployeeID: "emp-001", Month: 6, Year: 2025, Status: model.ReportStatusSubmitted}
	employee := &model.EmployeeModel{ID: "emp-001", Name: "Eddie", Role: model.RoleEmployee}

	// 零收件人只记日志,不是错误
	err := env.svc.NotifyApprovalNeeded(report, employee, nil, employee)
	assert.NoError(t, err)

	notifications, err := env.notifRepo.FindByRecipient("emp-001", nil)
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

// TestService_NotifyHoursAlert 测试 50+ 小时常驻告警
func TestService_NotifyHoursAlert(t *testing.T) {
	env := setupNotifyEnv(t, false)

	employee, err := env.employeeRepo.FindByID("emp-001")
	require.NoError(t, err)

	weekStart := time.Date(2025, 6, 8, 0, 0, 0, 0, time.Local)
	weekEnd := weekStart.AddDate(0, 0, 6)

	id, err := env.svc.NotifyHoursAlert(employee, weekStart, weekEnd, 53.5)
	assert.NoError(t, err)
	require.NotEmpty(t, id)

	// 告警发给上级,常驻不可忽略
	saved, err := env.notifRepo.FindByID(id)
	require.NoError(t, err)
	assert.Equal(t, "sup-001", saved.RecipientID)
	assert.Equal(t, model.NotificationHoursAlert, saved.Type)
	assert.False(t, saved.IsDismissible)

	meta, err := saved.HoursAlertMeta()
	require.NoError(t, err)
	assert.Equal(t, 53.5, meta.TotalHours)

	// 同一员工同一周不重复告警
	dup, err := env.svc.NotifyHoursAlert(employee, weekStart, weekEnd, 60)
	assert.NoError(t, err)
	assert.Empty(t, dup)
}

// TestService_NotifyWeeklyReminder 测试周报提醒元数据
func TestService_NotifyWeeklyReminder(t *testing.T) {
	env := setupNotifyEnv(t, false)

	employee, err := env.employeeRepo.FindByID("emp-001")
	require.NoError(t, err)

	id, err := env.svc.NotifyWeeklyReminder(employee)
	assert.NoError(t, err)
	require.NotEmpty(t, id)

	saved, err := env.notifRepo.FindByID(id)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationSundayReminder, saved.Type)

	meta, err := saved.ReminderMeta()
	require.NoError(t, err)
	assert.Equal(t, "weekly_submission", meta.ReminderType)
}

// TestService_NotifyReportApproved_Wording 测试周报与月报文案区分
func TestService_NotifyReportApproved_Wording(t *testing.T) {
	env := setupNotifyEnv(t, false)

	employee, err := env.employeeRepo.FindByID("emp-001")
	require.NoError(t, err)
	actor, err := env.employeeRepo.FindByID("sup-001")
	require.NoError(t, err)

	monthly := &model.ReportModel{ID: "rpt-m", EmployeeID: "emp-001", Month: 6, Year: 2025, ReportType: model.ReportTypeMonthly, Status: model.ReportStatusApproved}
	weekly := &model.ReportModel{ID: "rpt-w", EmployeeID: "emp-001", Month: 6, Year: 2025, ReportType: model.ReportTypeWeekly, Status: model.ReportStatusApproved}

	require.NoError(t, env.svc.NotifyReportApproved(monthly, employee, actor))
	require.NoError(t, env.svc.NotifyReportApproved(weekly, employee, actor))

	notifications, err := env.notifRepo.FindByRecipient("emp-001", nil)
	require.NoError(t, err)
	require.Len(t, notifications, 2)

	titles := []string{notifications[0].Title, notifications[1].Title}
	assert.Contains(t, titles, "Expense Report Approved")
	assert.Contains(t, titles, "Weekly Check-up Approved")
}
