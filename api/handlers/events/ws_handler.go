package events

import (
	"context"
	"net/http"
	"time"

	"contentstudio/api/handlers/common"
	"contentstudio/internal/notification"
	"contentstudio/internal/studio"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const readTimeout = 2 * time.Minute

// IdeaLookup 确认想法存在
type IdeaLookup interface {
	Open(ctx context.Context, id string) (*studio.Session, error)
}

// WebSocketHandler 推送想法工作流事件的 WebSocket 连接
type WebSocketHandler struct {
	hub      *notification.EventHub
	ideas    IdeaLookup
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建处理器；ideas 为 nil 时不校验想法是否存在
func NewWebSocketHandler(hub *notification.EventHub, ideas IdeaLookup) *WebSocketHandler {
	return &WebSocketHandler{
		hub:   hub,
		ideas: ideas,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect 升级连接并订阅想法事件
// GET /api/v1/ws?idea=<id>
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if h == nil || h.hub == nil {
		common.Fail(c, http.StatusServiceUnavailable, common.CodeUnsupported, "WebSocket 服务未就绪")
		return
	}
	ideaID := c.Query("idea")
	if ideaID == "" {
		common.BadRequest(c, "缺少 idea 参数")
		return
	}
	if h.ideas != nil {
		if _, err := h.ideas.Open(c.Request.Context(), ideaID); err != nil {
			common.FromError(c, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	_ = conn.WriteJSON(gin.H{
		"type":    "connected",
		"ideaId":  ideaID,
		"message": "WebSocket 已连接",
	})

	// 阻塞到连接关闭
	h.hub.Serve(c.Request.Context(), ideaID, conn)
}
