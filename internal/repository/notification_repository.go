package repository

import (
	"time"

	"github.com/mautops/expense-gin/internal/model"
	"gorm.io/gorm"
)

// NotificationRepository 通知仓储接口
type NotificationRepository interface {
	Save(notification *model.NotificationModel) error
	FindByID(id string) (*model.NotificationModel, error)
	FindByRecipient(recipientID string, filter *NotificationFilter) ([]*model.NotificationModel, error)
	MarkRead(id string) error
	Dismiss(id string) error
	Resolve(id string) error
	// HasUnresolvedHoursAlert 判断员工在指定周起始日是否已有未解除的 50+ 小时告警
	HasUnresolvedHoursAlert(employeeID string, weekStart time.Time) (bool, error)
	// CountRemindersSince 统计收件人自某时刻起收到的周报提醒数
	CountRemindersSince(recipientID string, since time.Time) (int64, error)
}

// NotificationFilter 通知查询过滤器
type NotificationFilter struct {
	UnreadOnly     bool
	PersistentOnly bool
	Type           *string
}

// notificationRepository 通知仓储实现
type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓储
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Save 保存通知
func (r *notificationRepository) Save(notification *model.NotificationModel) error {
	return r.db.Save(notification).Error
}

// FindByID 根据 ID 查找通知
func (r *notificationRepository) FindByID(id string) (*model.NotificationModel, error) {
	var notification model.NotificationModel
	if err := r.db.Where("id = ?", id).First(&notification).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

// FindByRecipient 查找收件人的通知
func (r *notificationRepository) FindByRecipient(recipientID string, filter *NotificationFilter) ([]*model.NotificationModel, error) {
	var notifications []*model.NotificationModel
	query := r.db.Where("recipient_id = ?", recipientID)

	if filter != nil {
		if filter.UnreadOnly {
			query = query.Where("is_read = ?", false)
		}
		if filter.PersistentOnly {
			query = query.Where("is_dismissible = ? AND resolved = ?", false, false)
		}
		if filter.Type != nil {
			query = query.Where("type = ?", *filter.Type)
		}
	}

	err := query.Order("created_at DESC").Find(&notifications).Error
	return notifications, err
}

// MarkRead 标记通知已读
func (r *notificationRepository) MarkRead(id string) error {
	now := time.Now()
	return r.db.Model(&model.NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_read": true, "read_at": &now}).Error
}

// Dismiss 忽略通知
// 常驻告警 (is_dismissible=false) 不能通过该方法移除
func (r *notificationRepository) Dismiss(id string) error {
	result := r.db.Model(&model.NotificationModel{}).
		Where("id = ? AND is_dismissible = ?", id, true).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Resolve 显式解除常驻告警
func (r *notificationRepository) Resolve(id string) error {
	return r.db.Model(&model.NotificationModel{}).
		Where("id = ?", id).
		Update("resolved", true).Error
}

// HasUnresolvedHoursAlert 判断员工在指定周是否已有未解除的 50+ 小时告警
// 通过 employee_id + week_start 列精确去重;告警属于哪一周由写入时的周起始日决定,
// 与通知的创建时间无关,补录历史工时触发的告警不会被当前周的告警压掉
func (r *notificationRepository) HasUnresolvedHoursAlert(employeeID string, weekStart time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&model.NotificationModel{}).
		Where("type = ? AND employee_id = ? AND resolved = ? AND week_start = ?",
			model.NotificationHoursAlert, employeeID, false, weekStart).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountRemindersSince 统计收件人自某时刻起收到的周报提醒数
func (r *notificationRepository) CountRemindersSince(recipientID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.NotificationModel{}).
		Where("type = ? AND recipient_id = ? AND created_at >= ?",
			model.NotificationSundayReminder, recipientID, since).
		Count(&count).Error
	return count, err
}
