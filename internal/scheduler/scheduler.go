package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/expense-gin/internal/model"
	"github.com/mautops/expense-gin/internal/notify"
	"github.com/mautops/expense-gin/internal/repository"
	"github.com/mautops/expense-gin/internal/workflow"
	"github.com/sirupsen/logrus"
)

// Config 调度器配置
type Config struct {
	// ReminderDay 每周提醒日
	ReminderDay time.Weekday

	// ReminderInterval 提醒检查周期
	// 比触发日密集得多(默认每小时),靠幂等检查保证同周不重复
	ReminderInterval time.Duration

	// EscalationInterval 审批超期巡检周期
	EscalationInterval time.Duration

	// HoursThreshold 周工时告警阈值
	HoursThreshold float64
}

// DefaultConfig 返回默认调度器配置
func DefaultConfig() *Config {
	return &Config{
		ReminderDay:        time.Sunday,
		ReminderInterval:   time.Hour,
		EscalationInterval: 24 * time.Hour,
		HoursThreshold:     50,
	}
}

// Scheduler 提醒与升级调度器
// 两个独立职责跑在各自的后台定时器上,不占用请求处理线程:
// 每周提醒员工提交,以及工时写入后的周工时阈值巡检
type Scheduler struct {
	employeeRepo     repository.EmployeeRepository
	notificationRepo repository.NotificationRepository
	timeEntryRepo    repository.TimeEntryRepository
	reportRepo       repository.ReportRepository
	notifier         notify.Service
	logger           *logrus.Logger
	cfg              *Config
	locks            *workflow.KeyedMutex
	stopChan         chan struct{}
}

// NewScheduler 创建调度器
func NewScheduler(
	employeeRepo repository.EmployeeRepository,
	notificationRepo repository.NotificationRepository,
	timeEntryRepo repository.TimeEntryRepository,
	reportRepo repository.ReportRepository,
	notifier notify.Service,
	logger *logrus.Logger,
	cfg *Config,
) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		employeeRepo:     employeeRepo,
		notificationRepo: notificationRepo,
		timeEntryRepo:    timeEntryRepo,
		reportRepo:       reportRepo,
		notifier:         notifier,
		logger:           logger,
		cfg:              cfg,
		locks:            workflow.NewKeyedMutex(),
		stopChan:         make(chan struct{}),
	}
}

// Start 启动调度器
func (s *Scheduler) Start(ctx context.Context) {
	go s.scheduleReminders(ctx)
	go s.scheduleEscalations(ctx)
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// scheduleReminders 周报提醒调度循环
func (s *Scheduler) scheduleReminders(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if time.Now().Weekday() != s.cfg.ReminderDay {
				continue
			}
			if err := s.TriggerWeeklyReminders(); err != nil {
				s.logger.WithError(err).Error("weekly reminder run failed")
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// scheduleEscalations 审批超期巡检循环
func (s *Scheduler) scheduleEscalations(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.EscalationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.EscalateOverdueReports(); err != nil {
				s.logger.WithError(err).Error("escalation run failed")
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// TriggerWeeklyReminders 给所有未退订的在职员工发周报提醒
// 同一自然周内重复调用不会重复发送(以通知存储中本周记录为准,重启也不失效)
// 管理端可按需直接调用
func (s *Scheduler) TriggerWeeklyReminders() error {
	employees, err := s.employeeRepo.FindActive()
	if err != nil {
		return fmt.Errorf("failed to list employees: %w", err)
	}

	weekStart := WeekStart(time.Now())
	sent := 0
	for _, employee := range employees {
		if !employee.RemindersEnabled {
			continue
		}

		count, err := s.notificationRepo.CountRemindersSince(employee.ID, weekStart)
		if err != nil {
			s.logger.WithError(err).WithField("employee_id", employee.ID).
				Warn("failed to check existing reminders")
			continue
		}
		if count > 0 {
			continue
		}

		if _, err := s.notifier.NotifyWeeklyReminder(employee); err != nil {
			s.logger.WithError(err).WithField("employee_id", employee.ID).
				Warn("failed to send weekly reminder")
			continue
		}
		sent++
	}

	s.logger.WithFields(logrus.Fields{
		"eligible": len(employees),
		"sent":     sent,
	}).Info("weekly reminder run completed")
	return nil
}

// CheckWeeklyHoursThreshold 周工时阈值巡检
// 在任意工时写入后同步触发:取该日期所在自然周(周日到周六)的总工时,
// 达到阈值则向员工的上级发常驻告警;同一员工同一周不重复告警
// "查未解除告警 + 创建告警"整段按 员工|周起始日 串行化,防止快速连写竞态
func (s *Scheduler) CheckWeeklyHoursThreshold(employeeID string, date time.Time) error {
	weekStart := WeekStart(date)
	weekEnd := weekStart.AddDate(0, 0, 6)

	key := fmt.Sprintf("%s|%s", employeeID, weekStart.Format("2006-01-02"))
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	total, err := s.timeEntryRepo.SumHours(employeeID, weekStart, weekEnd)
	if err != nil {
		return fmt.Errorf("failed to sum hours: %w", err)
	}
	if total < s.cfg.HoursThreshold {
		return nil
	}

	employee, err := s.employeeRepo.FindByID(employeeID)
	if err != nil {
		return fmt.Errorf("failed to look up employee: %w", err)
	}
	if employee == nil {
		s.logger.WithField("employee_id", employeeID).
			Warn("hours threshold crossed for unknown employee, skipping alert")
		return nil
	}

	id, err := s.notifier.NotifyHoursAlert(employee, weekStart, weekEnd, total)
	if err != nil {
		return fmt.Errorf("failed to raise hours alert: %w", err)
	}
	if id != "" {
		s.logger.WithFields(logrus.Fields{
			"employee_id": employeeID,
			"week_start":  weekStart.Format("2006-01-02"),
			"total_hours": total,
		}).Info("hours alert raised")
	}
	return nil
}

// EscalateOverdueReports 巡检审批超期的报告并重发待审批通知
func (s *Scheduler) EscalateOverdueReports() error {
	reports, err := s.reportRepo.FindPendingOlderThan(time.Now())
	if err != nil {
		return fmt.Errorf("failed to list overdue reports: %w", err)
	}

	for _, report := range reports {
		employee, err := s.employeeRepo.FindByID(report.EmployeeID)
		if err != nil || employee == nil {
			continue
		}

		var recipients []*model.EmployeeModel
		if report.CurrentApproverID != nil {
			approver, err := s.employeeRepo.FindByID(*report.CurrentApproverID)
			if err == nil && approver != nil && !approver.Archived {
				recipients = append(recipients, approver)
			}
		} else if report.CurrentStage == model.StageFinance {
			recipients, _ = s.employeeRepo.FindByRole(model.RoleFinance)
		}

		if err := s.notifier.NotifyApprovalNeeded(report, employee, recipients, employee); err != nil {
			s.logger.WithError(err).WithField("report_id", report.ID).
				Warn("failed to re-notify overdue report")
			continue
		}

		// 顺延下一次超期时间,避免每轮巡检重复打扰
		next := time.Now().Add(s.cfg.EscalationInterval)
		report.EscalationDueAt = &next
		if err := s.reportRepo.Save(report); err != nil {
			s.logger.WithError(err).WithField("report_id", report.ID).
				Warn("failed to reschedule escalation")
		}
	}

	if len(reports) > 0 {
		s.logger.WithField("count", len(reports)).Info("overdue reports escalated")
	}
	return nil
}

// WeekStart 返回日期所在自然周的周日零点(服务器本地时区,按日历日界)
func WeekStart(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return t.AddDate(0, 0, -int(t.Weekday()))
}
