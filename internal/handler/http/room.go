package http

import (
	"net/http"
	"strconv"

	"github.com/Arham-Tahir64/chitty/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RoomHandler 封装房间管理与历史查询的 HTTP 处理逻辑。
type RoomHandler struct {
	roomService    *service.RoomService
	messageService *service.MessageService
}

func NewRoomHandler(roomService *service.RoomService, messageService *service.MessageService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	if messageService == nil {
		panic("MessageService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService, messageService: messageService}
}

// CreateRoomRequest 定义建房请求体，房间名可选。
type CreateRoomRequest struct {
	Name string `json:"name" binding:"omitempty,max=100"`
}

// CreateRoom 处理 POST /api/rooms。
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input")
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), userID, req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, gin.H{
		"id":   room.ID,
		"code": room.Code,
		"name": room.Name,
	})
}

// JoinRoom 处理 POST /api/rooms/:code/join。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	room, err := h.roomService.JoinRoom(c.Request.Context(), userID, c.Param("code"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{
		"id":   room.ID,
		"code": room.Code,
		"name": room.Name,
	})
}

// MyRooms 处理 GET /api/me/rooms。
func (h *RoomHandler) MyRooms(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	rooms, err := h.roomService.RoomsForUser(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	out := make([]gin.H, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, gin.H{
			"id":   room.ID,
			"code": room.Code,
			"name": room.Name,
		})
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": out})
}

// Members 处理 GET /api/rooms/:code/members，带在线状态。
func (h *RoomHandler) Members(c *gin.Context) {
	members, err := h.roomService.Members(c.Request.Context(), c.Param("code"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"members": members})
}

// Messages 处理 GET /api/rooms/:code/messages?limit=N。
// 与 WebSocket 加入时的回放走同一条历史查询路径。
func (h *RoomHandler) Messages(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			ErrorResponse(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := h.messageService.History(c.Request.Context(), c.Param("code"), limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"messages": entries})
}

// currentUserID 读取 Auth 中间件放入上下文的用户 ID。
func currentUserID(c *gin.Context) uint {
	v, exists := c.Get("user_id")
	if !exists {
		return 0
	}
	id, ok := v.(uint)
	if !ok {
		return 0
	}
	return id
}
