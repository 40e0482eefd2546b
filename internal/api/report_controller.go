package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/expense-gin/internal/repository"
	"github.com/mautops/expense-gin/internal/workflow"
	"gorm.io/gorm"
)

// ReportController 报告控制器
// 所有状态变更一律经由工作流引擎,控制器不直接写状态
type ReportController struct {
	engine     *workflow.Engine
	reportRepo repository.ReportRepository
}

// NewReportController 创建报告控制器
func NewReportController(engine *workflow.Engine, reportRepo repository.ReportRepository) *ReportController {
	return &ReportController{
		engine:     engine,
		reportRepo: reportRepo,
	}
}

// SubmitRequest 提交报告请求
type SubmitRequest struct {
	EmployeeID      string `json:"employee_id" binding:"required"` // 提交人 ID
	FirstApproverID string `json:"first_approver_id"`              // 首位审批人覆盖(可选)
}

// ApproveRequest 审批通过请求
type ApproveRequest struct {
	ApproverID string `json:"approver_id" binding:"required"` // 审批人 ID
}

// ReviseRequest 修订请求
type ReviseRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"` // 发起人 ID
	Comments   string `json:"comments"`                       // 批注
}

// RejectRequest 拒绝请求
type RejectRequest struct {
	ApproverID string `json:"approver_id" binding:"required"` // 审批人 ID
	Reason     string `json:"reason"`                         // 拒绝原因
}

// Submit 提交报告
func (c *ReportController) Submit(ctx *gin.Context) {
	var req SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	id := ctx.Param("id")
	err := c.engine.Submit(id, req.EmployeeID, req.FirstApproverID)
	if err != nil {
		// 无审批人:状态已推进,需要管理员介入,对调用方仍算成功
		if errors.Is(err, workflow.ErrNoApprover) {
			SuccessWithWarning(ctx, gin.H{"report_id": id}, err.Error())
			return
		}
		WorkflowError(ctx, err)
		return
	}

	Success(ctx, gin.H{"report_id": id})
}

// Approve 审批通过当前阶段
func (c *ReportController) Approve(ctx *gin.Context) {
	var req ApproveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	id := ctx.Param("id")
	err := c.engine.ApproveStage(id, req.ApproverID)
	if err != nil {
		if errors.Is(err, workflow.ErrNoApprover) {
			SuccessWithWarning(ctx, gin.H{"report_id": id}, err.Error())
			return
		}
		WorkflowError(ctx, err)
		return
	}

	Success(ctx, gin.H{"report_id": id})
}

// Revise 请求修订
func (c *ReportController) Revise(ctx *gin.Context) {
	var req ReviseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	id := ctx.Param("id")
	if err := c.engine.RequestRevision(id, req.ReviewerID, req.Comments); err != nil {
		WorkflowError(ctx, err)
		return
	}

	Success(ctx, gin.H{"report_id": id})
}

// Reject 拒绝报告
func (c *ReportController) Reject(ctx *gin.Context) {
	var req RejectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	id := ctx.Param("id")
	if err := c.engine.RejectStage(id, req.ApproverID, req.Reason); err != nil {
		WorkflowError(ctx, err)
		return
	}

	Success(ctx, gin.H{"report_id": id})
}

// Get 获取报告详情与审批历史
func (c *ReportController) Get(ctx *gin.Context) {
	id := ctx.Param("id")

	report, err := c.reportRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Error(ctx, http.StatusNotFound, "report not found", id)
			return
		}
		Error(ctx, http.StatusInternalServerError, "failed to load report", err.Error())
		return
	}

	steps, err := c.reportRepo.FindSteps(id)
	if err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to load approval history", err.Error())
		return
	}

	Success(ctx, gin.H{
		"report":  report,
		"history": steps,
	})
}
