package websocket_test

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/mautops/expense-gin/internal/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRelay 创建裸 Hub 的测试中继
func newTestRelay(t *testing.T) (*websocket.Relay, *websocket.Hub) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hub := websocket.NewHub()
	return websocket.NewRelay(hub, logger), hub
}

// TestRelay_Publish 测试发布变更提示信封
func TestRelay_Publish(t *testing.T) {
	relay, hub := newTestRelay(t)
	go hub.Run()

	client := newTestClient(hub, "client-001", "emp-001", 256)
	hub.Register <- client
	time.Sleep(100 * time.Millisecond)

	relay.Publish("report", "status_changed", map[string]interface{}{"report_id": "rpt-001"})

	select {
	case data := <-client.Send:
		var envelope websocket.Envelope
		require.NoError(t, json.Unmarshal(data, &envelope))
		assert.Equal(t, "report", envelope.Entity)
		assert.Equal(t, "status_changed", envelope.Action)
		assert.NotZero(t, envelope.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast envelope")
	}
}

// TestRelay_Publish_Targeted 测试定向发布只到达指定员工
func TestRelay_Publish_Targeted(t *testing.T) {
	relay, hub := newTestRelay(t)
	go hub.Run()

	target := newTestClient(hub, "client-001", "emp-001", 256)
	other := newTestClient(hub, "client-002", "emp-002", 256)
	hub.Register <- target
	hub.Register <- other
	time.Sleep(100 * time.Millisecond)

	relay.Publish("notification", "created", nil, "emp-001")

	select {
	case data := <-target.Send:
		var envelope websocket.Envelope
		require.NoError(t, json.Unmarshal(data, &envelope))
		assert.Equal(t, "notification", envelope.Entity)
	case <-time.After(time.Second):
		t.Fatal("expected a targeted envelope")
	}
	assert.Empty(t, other.Send)
}

// TestRelay_Publish_DropsWhenHubUnavailable 测试 Hub 不可用时丢弃不阻塞
// 至多一次语义:没有任何接收方时 Publish 立即返回
func TestRelay_Publish_DropsWhenHubUnavailable(t *testing.T) {
	relay, _ := newTestRelay(t)
	// Hub 未运行,Broadcast 通道无人消费

	done := make(chan struct{})
	go func() {
		relay.Publish("report", "status_changed", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish must not block when the hub is unavailable")
	}
}
