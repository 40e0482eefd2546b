package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/expense-gin/internal/directory"
	"github.com/mautops/expense-gin/internal/mail"
	"github.com/mautops/expense-gin/internal/metrics"
	"github.com/mautops/expense-gin/internal/model"
	"github.com/mautops/expense-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

// CreateSpec 创建通知的参数
type CreateSpec struct {
	RecipientID   string
	RecipientRole string
	Type          string
	Title         string
	Message       string
	ReportID      string
	EmployeeID    string
	EmployeeName  string
	ActorID       string
	ActorName     string
	ActorRole     string
	SendEmail     *bool      // 默认 true
	IsDismissible *bool      // 默认 true
	WeekStart     *time.Time // 周相关告警的去重键
	Metadata      interface{}
}

// Service 通知分发服务接口
// 唯一的通知存储写入方;邮件是尽力而为的旁路,失败不回滚不报错
type Service interface {
	Create(spec *CreateSpec) (string, error)
	NotifyReportSubmitted(report *model.ReportModel, employee *model.EmployeeModel, recipient *model.EmployeeModel) error
	NotifyRevisionRequested(report *model.ReportModel, employee *model.EmployeeModel, reviewer *model.EmployeeModel, comments string) error
	NotifyApprovalNeeded(report *model.ReportModel, employee *model.EmployeeModel, recipients []*model.EmployeeModel, actor *model.EmployeeModel) error
	NotifyReportApproved(report *model.ReportModel, employee *model.EmployeeModel, actor *model.EmployeeModel) error
	NotifyHoursAlert(employee *model.EmployeeModel, weekStart, weekEnd time.Time, totalHours float64) (string, error)
	NotifyWeeklyReminder(employee *model.EmployeeModel) (string, error)
}

// service 通知分发服务实现
type service struct {
	notificationRepo repository.NotificationRepository
	resolver         *directory.Resolver
	mailer           mail.Sender
	logger           *logrus.Logger
}

// NewService 创建通知分发服务
func NewService(
	notificationRepo repository.NotificationRepository,
	resolver *directory.Resolver,
	mailer mail.Sender,
	logger *logrus.Logger,
) Service {
	return &service{
		notificationRepo: notificationRepo,
		resolver:         resolver,
		mailer:           mailer,
		logger:           logger,
	}
}

// Create 创建一条通知
// 先写通知存储(收件箱的事实来源),再异步触发邮件
// 返回通知 ID;必填字段缺失或存储写入失败时返回空 ID 和错误
func (s *service) Create(spec *CreateSpec) (string, error) {
	if spec == nil {
		return "", fmt.Errorf("notification spec is required")
	}

	notification := &model.NotificationModel{
		ID:            uuid.New().String(),
		RecipientID:   spec.RecipientID,
		RecipientRole: spec.RecipientRole,
		Type:          spec.Type,
		Title:         spec.Title,
		Message:       spec.Message,
		EmployeeName:  spec.EmployeeName,
		ActorName:     spec.ActorName,
		ActorRole:     spec.ActorRole,
		IsDismissible: true,
		CreatedAt:     time.Now(),
	}
	if spec.ReportID != "" {
		notification.ReportID = &spec.ReportID
	}
	if spec.EmployeeID != "" {
		notification.EmployeeID = &spec.EmployeeID
	}
	if spec.ActorID != "" {
		notification.ActorID = &spec.ActorID
	}
	if spec.IsDismissible != nil {
		notification.IsDismissible = *spec.IsDismissible
	}
	if spec.WeekStart != nil {
		notification.WeekStart = spec.WeekStart
	}
	if spec.Metadata != nil {
		if err := notification.SetMetadata(spec.Metadata); err != nil {
			return "", fmt.Errorf("failed to encode notification metadata: %w", err)
		}
	}

	if err := notification.Validate(); err != nil {
		return "", fmt.Errorf("invalid notification: %w", err)
	}

	// 1. 先落库,这一步失败才算整体失败
	if err := s.notificationRepo.Save(notification); err != nil {
		return "", fmt.Errorf("failed to save notification: %w", err)
	}

	metrics.RecordNotificationCreated(notification.Type)

	// 2. 邮件异步发送,脱离工作流关键路径
	sendEmail := spec.SendEmail == nil || *spec.SendEmail
	if sendEmail {
		go s.sendEmail(notification)
	}

	return notification.ID, nil
}

// sendEmail 渲染并发送通知邮件
// 任何失败只记日志
func (s *service) sendEmail(notification *model.NotificationModel) {
	email := s.recipientEmail(notification.RecipientID)
	if email == "" {
		s.logger.WithFields(logrus.Fields{
			"notification_id": notification.ID,
			"recipient_id":    notification.RecipientID,
		}).Warn("recipient has no email address, skipping email")
		return
	}

	subject, text, html := mail.RenderNotification(notification)
	if err := s.mailer.Send(email, subject, text, html); err != nil {
		metrics.RecordEmailSent(false)
		s.logger.WithFields(logrus.Fields{
			"notification_id": notification.ID,
			"recipient_id":    notification.RecipientID,
		}).WithError(err).Error("failed to send notification email")
		return
	}
	metrics.RecordEmailSent(true)
}

// recipientEmail 查找收件人邮箱
func (s *service) recipientEmail(recipientID string) string {
	employee, err := s.resolver.Lookup(recipientID)
	if err != nil || employee == nil {
		return ""
	}
	return employee.Email
}

// NotifyReportSubmitted 报告提交通知(发给首位审批人)
func (s *service) NotifyReportSubmitted(report *model.ReportModel, employee *model.EmployeeModel, recipient *model.EmployeeModel) error {
	if recipient == nil {
		s.logger.WithFields(logrus.Fields{
			"report_id":   report.ID,
			"employee_id": employee.ID,
		}).Warn("no recipient resolved for report submission, skipping notification")
		return nil
	}

	_, err := s.Create(&CreateSpec{
		RecipientID:   recipient.ID,
		RecipientRole: recipient.Role,
		Type:          model.NotificationReportSubmitted,
		Title:         "Expense Report Submitted",
		Message:       fmt.Sprintf("%s submitted an expense report for %s.", employee.Name, report.Period()),
		ReportID:      report.ID,
		EmployeeID:    employee.ID,
		EmployeeName:  employee.Name,
		ActorID:       employee.ID,
		ActorName:     employee.Name,
		ActorRole:     employee.Role,
	})
	return err
}

// NotifyRevisionRequested 修订请求通知
// 方向由发起人角色决定:财务发起时发给员工的上级(上级须先复核),
// 上级发起时直接发给员工本人 — 这是刻意保留的业务规则
func (s *service) NotifyRevisionRequested(report *model.ReportModel, employee *model.EmployeeModel, reviewer *model.EmployeeModel, comments string) error {
	var recipient *model.EmployeeModel

	if reviewer.Role == model.RoleFinance {
		supervisor, err := s.resolver.GetSupervisor(employee.ID)
		if err != nil {
			return fmt.Errorf("failed to resolve supervisor: %w", err)
		}
		recipient = supervisor
	} else {
		recipient = employee
	}

	if recipient == nil {
		s.logger.WithFields(logrus.Fields{
			"report_id":   report.ID,
			"employee_id": employee.ID,
			"reviewer":    reviewer.ID,
		}).Warn("no recipient resolved for revision request, skipping notification")
		return nil
	}

	message := fmt.Sprintf("%s requested revisions to the %s expense report of %s.",
		reviewer.Name, report.Period(), employee.Name)
	if comments != "" {
		message = fmt.Sprintf("%s Comments: %s", message, comments)
	}

	_, err := s.Create(&CreateSpec{
		RecipientID:   recipient.ID,
		RecipientRole: recipient.Role,
		Type:          model.NotificationRevisionRequested,
		Title:         "Revision Requested",
		Message:       message,
		ReportID:      report.ID,
		EmployeeID:    employee.ID,
		EmployeeName:  employee.Name,
		ActorID:       reviewer.ID,
		ActorName:     reviewer.Name,
		ActorRole:     reviewer.Role,
	})
	return err
}

// NotifyApprovalNeeded 待审批通知,支持单收件人与多收件人扇出
func (s *service) NotifyApprovalNeeded(report *model.ReportModel, employee *model.EmployeeModel, recipients []*model.EmployeeModel, actor *model.EmployeeModel) error {
	if len(recipients) == 0 {
		s.logger.WithFields(logrus.Fields{
			"report_id": report.ID,
			"stage":     report.CurrentStage,
		}).Warn("no recipients resolved for approval stage, skipping notification")
		return nil
	}

	for _, recipient := range recipients {
		if recipient == nil {
			continue
		}
		_, err := s.Create(&CreateSpec{
			RecipientID:   recipient.ID,
			RecipientRole: recipient.Role,
			Type:          model.NotificationApprovalNeeded,
			Title:         "Approval Needed",
			Message: fmt.Sprintf("The %s expense report of %s is awaiting your approval.",
				report.Period(), employee.Name),
			ReportID:     report.ID,
			EmployeeID:   employee.ID,
			EmployeeName: employee.Name,
			ActorID:      actor.ID,
			ActorName:    actor.Name,
			ActorRole:    actor.Role,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// NotifyReportApproved 报告批准通知(发给报告所属员工)
// 周报与月报使用不同文案
func (s *service) NotifyReportApproved(report *model.ReportModel, employee *model.EmployeeModel, actor *model.EmployeeModel) error {
	var title, message string
	if report.ReportType == model.ReportTypeWeekly {
		title = "Weekly Check-up Approved"
		message = fmt.Sprintf("Your weekly check-up for %s has been approved.", report.Period())
	} else {
		title = "Expense Report Approved"
		message = fmt.Sprintf("Your expense report for %s has been fully approved.", report.Period())
	}

	_, err := s.Create(&CreateSpec{
		RecipientID:   employee.ID,
		RecipientRole: employee.Role,
		Type:          model.NotificationReportApproved,
		Title:         title,
		Message:       message,
		ReportID:      report.ID,
		EmployeeID:    employee.ID,
		EmployeeName:  employee.Name,
		ActorID:       actor.ID,
		ActorName:     actor.Name,
		ActorRole:     actor.Role,
	})
	return err
}

// NotifyHoursAlert 50+ 小时常驻告警(发给员工的上级)
// 同一员工同一周已有未解除告警时不重复创建,返回空 ID
func (s *service) NotifyHoursAlert(employee *model.EmployeeModel, weekStart, weekEnd time.Time, totalHours float64) (string, error) {
	exists, err := s.notificationRepo.HasUnresolvedHoursAlert(employee.ID, weekStart)
	if err != nil {
		return "", fmt.Errorf("failed to check existing hours alert: %w", err)
	}
	if exists {
		return "", nil
	}

	supervisor, err := s.resolver.GetSupervisor(employee.ID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve supervisor: %w", err)
	}
	if supervisor == nil {
		s.logger.WithField("employee_id", employee.ID).
			Warn("employee has no supervisor, skipping hours alert")
		return "", nil
	}

	dismissible := false
	return s.Create(&CreateSpec{
		RecipientID:   supervisor.ID,
		RecipientRole: supervisor.Role,
		Type:          model.NotificationHoursAlert,
		Title:         "50+ Hours Alert",
		Message: fmt.Sprintf("%s has logged %.1f hours for the week of %s through %s.",
			employee.Name, totalHours,
			weekStart.Format("2006-01-02"), weekEnd.Format("2006-01-02")),
		EmployeeID:    employee.ID,
		EmployeeName:  employee.Name,
		IsDismissible: &dismissible,
		WeekStart:     &weekStart,
		Metadata: model.HoursAlertMetadata{
			WeekStart:  weekStart.Format("2006-01-02"),
			WeekEnd:    weekEnd.Format("2006-01-02"),
			TotalHours: totalHours,
		},
	})
}

// NotifyWeeklyReminder 周报提交提醒
func (s *service) NotifyWeeklyReminder(employee *model.EmployeeModel) (string, error) {
	return s.Create(&CreateSpec{
		RecipientID:   employee.ID,
		RecipientRole: employee.Role,
		Type:          model.NotificationSundayReminder,
		Title:         "Weekly Report Reminder",
		Message:       "Don't forget to submit your expense report and time entries for this week.",
		EmployeeID:    employee.ID,
		EmployeeName:  employee.Name,
		Metadata:      model.ReminderMetadata{ReminderType: "weekly_submission"},
	})
}
