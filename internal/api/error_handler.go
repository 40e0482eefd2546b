package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/expense-gin/internal/workflow"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			var apiErr *APIError
			if errors.As(err, &apiErr) {
				Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			} else {
				Error(c, http.StatusInternalServerError, "internal server error", err.Error())
			}
		}
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// WorkflowError 把工作流错误映射为 HTTP 响应
// 校验类 → 400,授权类 → 403,冲突类 → 409,未找到 → 404
func WorkflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workflow.ErrConflict):
		Error(c, http.StatusConflict, "report already transitioned", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		Error(c, http.StatusBadRequest, "invalid state transition", err.Error())
	case errors.Is(err, workflow.ErrUnauthorizedApprover):
		Error(c, http.StatusForbidden, "not the current approver", err.Error())
	case errors.Is(err, workflow.ErrReportNotFound), errors.Is(err, workflow.ErrEmployeeNotFound):
		Error(c, http.StatusNotFound, "not found", err.Error())
	default:
		Error(c, http.StatusInternalServerError, "internal server error", err.Error())
	}
}
