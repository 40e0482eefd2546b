package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/expense-gin/internal/scheduler"
)

// AdminController 运维触发控制器
// 调度器的两个职责都可按需手工触发,便于排障
type AdminController struct {
	sched *scheduler.Scheduler
}

// NewAdminController 创建运维控制器
func NewAdminController(sched *scheduler.Scheduler) *AdminController {
	return &AdminController{sched: sched}
}

// TriggerReminders 手工触发周报提醒
// 幂等,同一周内不会重复发送
func (c *AdminController) TriggerReminders(ctx *gin.Context) {
	if err := c.sched.TriggerWeeklyReminders(); err != nil {
		Error(ctx, http.StatusInternalServerError, "reminder run failed", err.Error())
		return
	}
	Success(ctx, gin.H{"triggered": true})
}

// HoursCheckRequest 手工触发工时巡检请求
type HoursCheckRequest struct {
	EmployeeID string `json:"employee_id" binding:"required"` // 员工 ID
	Date       string `json:"date"`                           // 日期 YYYY-MM-DD,缺省为今天
}

// TriggerHoursCheck 手工触发周工时阈值巡检
func (c *AdminController) TriggerHoursCheck(ctx *gin.Context) {
	var req HoursCheckRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	date := time.Now()
	if req.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
		if err != nil {
			Error(ctx, http.StatusBadRequest, "invalid date", err.Error())
			return
		}
		date = parsed
	}

	if err := c.sched.CheckWeeklyHoursThreshold(req.EmployeeID, date); err != nil {
		Error(ctx, http.StatusInternalServerError, "hours check failed", err.Error())
		return
	}
	Success(ctx, gin.H{"checked": req.EmployeeID})
}

// TriggerEscalations 手工触发审批超期巡检
func (c *AdminController) TriggerEscalations(ctx *gin.Context) {
	if err := c.sched.EscalateOverdueReports(); err != nil {
		Error(ctx, http.StatusInternalServerError, "escalation run failed", err.Error())
		return
	}
	Success(ctx, gin.H{"triggered": true})
}
