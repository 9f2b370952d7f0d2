package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/Arham-Tahir64/chitty/internal/hub"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const closeGracePeriod = time.Second

// IdentityResolver 把握手令牌换成完整的连接身份。
// 与 HTTP 中间件的纯令牌校验不同，这里允许实现回查存储补全用户名。
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, tokenString string) (domain.Identity, error)
}

// WebSocketHandler 负责 WebSocket 升级、握手认证和客户端注册。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	resolver IdentityResolver
}

func NewWebSocketHandler(h *hub.Hub, resolver IdentityResolver) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if resolver == nil {
		panic("identity resolver cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// TODO: 生产环境按配置校验 Origin
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &WebSocketHandler{
		upgrader: upgrader,
		hub:      h,
		resolver: resolver,
	}
}

// HandleConnection 处理 GET /ws?token=<jwt>。
// 认证失败也先完成升级，再用策略违规关闭帧告知原因，
// 浏览器端因此能读到缺失令牌和无效令牌两种不同的提示。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("WS Handler: Upgrade failed")
		return
	}

	tokenStr := c.Query("token")
	if tokenStr == "" {
		rejectConn(conn, "Missing auth token")
		return
	}

	identity, err := h.resolver.ResolveIdentity(c.Request.Context(), tokenStr)
	if err != nil {
		rejectConn(conn, "Invalid or expired token")
		return
	}

	client := hub.NewClient(h.hub, conn, identity)
	h.hub.Register(client)
	client.Run()
}

// rejectConn 发送 1008 关闭帧并关闭连接。
func rejectConn(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(closeGracePeriod)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	conn.Close()
}
