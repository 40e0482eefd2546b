package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/expense-gin/internal/config"
	"github.com/mautops/expense-gin/internal/websocket"
	"gorm.io/gorm"
)

// Controllers 路由需要的全部控制器
type Controllers struct {
	Report       *ReportController
	Notification *NotificationController
	TimeEntry    *TimeEntryController
	Admin        *AdminController
}

// SetupRoutes 配置路由
func SetupRoutes(hub *websocket.Hub, db *gorm.DB, controllers *Controllers, cfg *config.Config) *gin.Engine {
	if config.IsProduction(cfg) {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// 中间件
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(SecurityHeadersMiddleware())
	router.Use(CORSMiddleware(&cfg.CORS))
	router.Use(RateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	router.Use(ErrorHandlerMiddleware())

	// 健康检查
	healthController := NewHealthController(db, hub)
	router.GET("/healthz", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	// WebSocket 路由
	if hub != nil {
		router.GET("/ws", websocket.Handler(hub))
	}

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		// 报告工作流路由
		reports := v1.Group("/reports")
		{
			reports.GET("/:id", controllers.Report.Get)
			reports.POST("/:id/submit", controllers.Report.Submit)
			reports.POST("/:id/approve", controllers.Report.Approve)
			reports.POST("/:id/revise", controllers.Report.Revise)
			reports.POST("/:id/reject", controllers.Report.Reject)
		}

		// 通知收件箱路由
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", controllers.Notification.List)
			notifications.POST("/:id/read", controllers.Notification.MarkRead)
			notifications.POST("/:id/dismiss", controllers.Notification.Dismiss)
			notifications.POST("/:id/resolve", controllers.Notification.Resolve)
		}

		// 工时记录路由
		v1.POST("/time-entries", controllers.TimeEntry.Create)

		// 运维触发路由
		admin := v1.Group("/admin")
		{
			admin.POST("/reminders/trigger", controllers.Admin.TriggerReminders)
			admin.POST("/hours-check", controllers.Admin.TriggerHoursCheck)
			admin.POST("/escalations/trigger", controllers.Admin.TriggerEscalations)
		}
	}

	// 未匹配的路由统一返回 JSON 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, 404, "route not found", "the requested route does not exist")
	})

	return router
}
