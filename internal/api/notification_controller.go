package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/expense-gin/internal/repository"
	"gorm.io/gorm"
)

// NotificationController 通知收件箱控制器
type NotificationController struct {
	notificationRepo repository.NotificationRepository
}

// NewNotificationController 创建通知控制器
func NewNotificationController(notificationRepo repository.NotificationRepository) *NotificationController {
	return &NotificationController{notificationRepo: notificationRepo}
}

// List 获取收件人的通知列表
func (c *NotificationController) List(ctx *gin.Context) {
	recipientID := ctx.Query("recipient_id")
	if recipientID == "" {
		Error(ctx, http.StatusBadRequest, "recipient_id is required", "")
		return
	}

	filter := &repository.NotificationFilter{
		UnreadOnly:     ctx.Query("unread") == "true",
		PersistentOnly: ctx.Query("persistent") == "true",
	}
	if t := ctx.Query("type"); t != "" {
		filter.Type = &t
	}

	notifications, err := c.notificationRepo.FindByRecipient(recipientID, filter)
	if err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to list notifications", err.Error())
		return
	}

	Success(ctx, notifications)
}

// MarkRead 标记通知已读
func (c *NotificationController) MarkRead(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.notificationRepo.MarkRead(id); err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to mark notification read", err.Error())
		return
	}
	Success(ctx, gin.H{"notification_id": id})
}

// Dismiss 忽略通知
// 常驻告警不可忽略,返回 409
func (c *NotificationController) Dismiss(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.notificationRepo.Dismiss(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Error(ctx, http.StatusConflict, "notification is persistent or missing", id)
			return
		}
		Error(ctx, http.StatusInternalServerError, "failed to dismiss notification", err.Error())
		return
	}
	Success(ctx, gin.H{"notification_id": id})
}

// Resolve 显式解除常驻告警
func (c *NotificationController) Resolve(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.notificationRepo.Resolve(id); err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to resolve notification", err.Error())
		return
	}
	Success(ctx, gin.H{"notification_id": id})
}
