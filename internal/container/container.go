package container

import (
	"fmt"
	"time"

	"github.com/mautops/expense-gin/internal/api"
	"github.com/mautops/expense-gin/internal/config"
	"github.com/mautops/expense-gin/internal/database"
	"github.com/mautops/expense-gin/internal/directory"
	"github.com/mautops/expense-gin/internal/mail"
	"github.com/mautops/expense-gin/internal/notify"
	"github.com/mautops/expense-gin/internal/repository"
	"github.com/mautops/expense-gin/internal/scheduler"
	"github.com/mautops/expense-gin/internal/websocket"
	"github.com/mautops/expense-gin/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、仓储、服务与广播中继
type Container struct {
	db               *gorm.DB
	logger           *logrus.Logger
	employeeRepo     repository.EmployeeRepository
	reportRepo       repository.ReportRepository
	notificationRepo repository.NotificationRepository
	timeEntryRepo    repository.TimeEntryRepository
	resolver         *directory.Resolver
	mailer           *mail.Dispatcher
	notifier         notify.Service
	hub              *websocket.Hub
	relay            *websocket.Relay
	engine           *workflow.Engine
	sched            *scheduler.Scheduler
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. 初始化日志
	logger, err := api.NewLoggerFromConfig(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// 2. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 执行数据库迁移
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 3. 初始化仓储
	employeeRepo := repository.NewEmployeeRepository(db)
	reportRepo := repository.NewReportRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	timeEntryRepo := repository.NewTimeEntryRepository(db)

	// 4. 初始化组织层级解析器
	resolver := directory.NewResolver(employeeRepo, logger)

	// 5. 初始化邮件分发器
	mailer := mail.NewDispatcher(mail.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		Timeout:  time.Duration(cfg.Mail.TimeoutSeconds) * time.Second,
	}, logger)

	// 6. 初始化通知分发服务
	notifier := notify.NewService(notificationRepo, resolver, mailer, logger)

	// 7. 初始化 WebSocket Hub 与广播中继
	hub := websocket.NewHub()
	relay := websocket.NewRelay(hub, logger)

	// 8. 初始化工作流引擎
	workflowCfg := workflow.DefaultConfig()
	if cfg.Workflow.EscalationHours > 0 {
		workflowCfg.EscalationAfter = time.Duration(cfg.Workflow.EscalationHours) * time.Hour
	}
	engine := workflow.NewEngine(reportRepo, resolver, notifier, relay, logger, workflowCfg)

	// 9. 初始化调度器
	schedCfg := scheduler.DefaultConfig()
	if day, ok := parseWeekday(cfg.Scheduler.ReminderDay); ok {
		schedCfg.ReminderDay = day
	}
	if cfg.Scheduler.HoursThreshold > 0 {
		schedCfg.HoursThreshold = cfg.Scheduler.HoursThreshold
	}
	sched := scheduler.NewScheduler(employeeRepo, notificationRepo, timeEntryRepo, reportRepo, notifier, logger, schedCfg)

	return &Container{
		db:               db,
		logger:           logger,
		employeeRepo:     employeeRepo,
		reportRepo:       reportRepo,
		notificationRepo: notificationRepo,
		timeEntryRepo:    timeEntryRepo,
		resolver:         resolver,
		mailer:           mailer,
		notifier:         notifier,
		hub:              hub,
		relay:            relay,
		engine:           engine,
		sched:            sched,
	}, nil
}

// parseWeekday 解析配置中的星期名
func parseWeekday(name string) (time.Weekday, bool) {
	days := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	day, ok := days[name]
	return day, ok
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Logger 获取日志记录器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// EmployeeRepo 获取员工仓储
func (c *Container) EmployeeRepo() repository.EmployeeRepository {
	return c.employeeRepo
}

// ReportRepo 获取报告仓储
func (c *Container) ReportRepo() repository.ReportRepository {
	return c.reportRepo
}

// NotificationRepo 获取通知仓储
func (c *Container) NotificationRepo() repository.NotificationRepository {
	return c.notificationRepo
}

// TimeEntryRepo 获取工时仓储
func (c *Container) TimeEntryRepo() repository.TimeEntryRepository {
	return c.timeEntryRepo
}

// Resolver 获取组织层级解析器
func (c *Container) Resolver() *directory.Resolver {
	return c.resolver
}

// Notifier 获取通知分发服务
func (c *Container) Notifier() notify.Service {
	return c.notifier
}

// Hub 获取 WebSocket Hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// Relay 获取广播中继
func (c *Container) Relay() *websocket.Relay {
	return c.relay
}

// Engine 获取工作流引擎
func (c *Container) Engine() *workflow.Engine {
	return c.engine
}

// Scheduler 获取调度器
func (c *Container) Scheduler() *scheduler.Scheduler {
	return c.sched
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	return nil
}
