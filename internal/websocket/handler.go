package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该检查 Origin
		return true
	},
}

// Handler WebSocket 处理器
// 按员工 ID 关联连接,供定向刷新提示使用
func Handler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从 query 参数获取员工 ID
		employeeID := c.Query("employee_id")
		if employeeID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing employee_id"})
			return
		}

		// 2. 升级连接
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upgrade connection"})
			return
		}

		// 3. 创建客户端
		client := NewClient(
			uuid.New().String(),
			employeeID,
			hub,
			conn,
		)

		// 4. 注册客户端
		hub.Register <- client

		// 5. 启动 readPump 和 writePump
		go client.ReadPump()
		go client.WritePump()
	}
}
