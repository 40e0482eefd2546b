package websocket

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// Envelope 广播消息信封
// 仅作为刷新提示,客户端必须重新拉取权威数据,不能信任 payload 完整
type Envelope struct {
	Entity    string      `json:"entity"` // report/notification/time_entry
	Action    string      `json:"action"` // created/updated/status_changed
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Relay 实时广播中继
// 至多一次、不重试、无顺序保证的扇出;发送失败绝不反馈为调用方错误
type Relay struct {
	hub    *Hub
	logger *logrus.Logger
}

// NewRelay 创建广播中继
func NewRelay(hub *Hub, logger *logrus.Logger) *Relay {
	return &Relay{hub: hub, logger: logger}
}

// Publish 向所有连接(或指定员工的连接)推送变更提示
func (r *Relay) Publish(entity, action string, payload interface{}, employeeID ...string) {
	envelope := Envelope{
		Entity:    entity,
		Action:    action,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		r.logger.WithError(err).Warn("failed to marshal broadcast envelope")
		return
	}

	if len(employeeID) > 0 && employeeID[0] != "" {
		r.hub.BroadcastToEmployee(employeeID[0], data)
		return
	}

	// 非阻塞投递:Hub 不可用时丢弃而不是卡住调用方
	select {
	case r.hub.Broadcast <- data:
	default:
		r.logger.Warn("broadcast channel full, dropping message")
	}
}
