package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mautops/expense-gin/internal/model"
	"github.com/mautops/expense-gin/internal/repository"
	"github.com/mautops/expense-gin/internal/scheduler"
	"github.com/mautops/expense-gin/internal/websocket"
)

// TimeEntryController 工时控制器
// 每次工时写入后同步触发周工时阈值巡检
type TimeEntryController struct {
	timeEntryRepo repository.TimeEntryRepository
	sched         *scheduler.Scheduler
	relay         *websocket.Relay
}

// NewTimeEntryController 创建工时控制器
func NewTimeEntryController(
	timeEntryRepo repository.TimeEntryRepository,
	sched *scheduler.Scheduler,
	relay *websocket.Relay,
) *TimeEntryController {
	return &TimeEntryController{
		timeEntryRepo: timeEntryRepo,
		sched:         sched,
		relay:         relay,
	}
}

// CreateTimeEntryRequest 创建工时记录请求
type CreateTimeEntryRequest struct {
	EmployeeID  string  `json:"employee_id" binding:"required"` // 员工 ID
	Date        string  `json:"date" binding:"required"`        // 日期 YYYY-MM-DD
	Hours       float64 `json:"hours" binding:"required"`       // 工时数
	Description string  `json:"description"`                    // 描述
}

// Create 创建工时记录
func (c *TimeEntryController) Create(ctx *gin.Context) {
	var req CreateTimeEntryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid date", err.Error())
		return
	}

	entry := &model.TimeEntryModel{
		ID:          uuid.New().String(),
		EmployeeID:  req.EmployeeID,
		Date:        date,
		Hours:       req.Hours,
		Description: req.Description,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := entry.Validate(); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid time entry", err.Error())
		return
	}
	if err := c.timeEntryRepo.Save(entry); err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to save time entry", err.Error())
		return
	}

	// 周工时阈值巡检,失败只记日志不影响写入结果
	if err := c.sched.CheckWeeklyHoursThreshold(req.EmployeeID, date); err != nil {
		GetLogger().WithError(err).WithField("employee_id", req.EmployeeID).
			Warn("weekly hours check failed")
	}

	if c.relay != nil {
		c.relay.Publish("time_entry", "created", gin.H{"employee_id": req.EmployeeID})
	}

	Success(ctx, gin.H{"time_entry_id": entry.ID})
}
