package handler

import (
	"context"
	"doc-organizer-go/internal/repository"
	"doc-organizer-go/internal/service"
	"doc-organizer-go/pkg/log"
	"doc-organizer-go/pkg/token"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// NotificationHandler 通过 WebSocket 推送文档处理结果等用户通知。
type NotificationHandler struct {
	notifications repository.NotificationRepository
	userService   service.UserService
	blacklist     repository.TokenBlacklist
	jwtManager    *token.JWTManager
}

// NewNotificationHandler 创建一个新的 NotificationHandler。
func NewNotificationHandler(
	notifications repository.NotificationRepository,
	userService service.UserService,
	blacklist repository.TokenBlacklist,
	jwtManager *token.JWTManager,
) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		userService:   userService,
		blacklist:     blacklist,
		jwtManager:    jwtManager,
	}
}

// Handle 处理一个传入的 WebSocket 连接。浏览器无法设置 WebSocket 请求头，token 放在路径中。
func (h *NotificationHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyTyped(c.Param("token"), token.TypeAccess)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}
	if revoked, err := h.blacklist.Contains(c.Request.Context(), claims.ID); err == nil && revoked {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "token 已注销", "data": nil})
		return
	}
	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "用户不存在", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.notifications.Subscribe(ctx, user.ID)
	defer pubsub.Close()
	messages := pubsub.Channel()

	log.Infof("[NotificationHandler] WebSocket 连接已建立，用户: %s", user.Username)

	// 客户端只发送 pong 或关闭帧，读循环用于感知断开
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infof("[NotificationHandler] WebSocket 连接已关闭，用户: %s", user.Username)
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.Warnf("[NotificationHandler] 推送通知失败: %v", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
