package workflow

import "errors"

var (
	// ErrInvalidTransition 当前状态不允许此转换,调用方修正后可重试
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConflict 报告已被并发操作推进,调用方应重新加载后再试
	ErrConflict = errors.New("report already transitioned")

	// ErrUnauthorizedApprover 操作者不是当前阶段的审批人
	ErrUnauthorizedApprover = errors.New("actor is not the current approver")

	// ErrNoApprover 下一阶段无法解析出审批人
	// 状态变更仍然提交,调用方应将此情况上报管理员
	ErrNoApprover = errors.New("no approver available")

	// ErrReportNotFound 报告不存在
	ErrReportNotFound = errors.New("report not found")

	// ErrEmployeeNotFound 员工不存在
	ErrEmployeeNotFound = errors.New("employee not found")
)
