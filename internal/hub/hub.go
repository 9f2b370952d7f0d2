package hub

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/Arham-Tahir64/chitty/internal/history"
	"github.com/Arham-Tahir64/chitty/internal/presence"
	"github.com/sirupsen/logrus"
)

const (
	// 单条消息内容的字节上限，超出部分静默截断
	maxContentLength = 4000

	// 加入房间时回放的历史条数
	historySeedLimit = 50

	// 意图处理中对存储与总线操作的超时
	intentTimeout = 5 * time.Second
)

// RoomDirectory 按短码解析房间并登记成员资格。
type RoomDirectory interface {
	ResolveRoom(ctx context.Context, code string) (roomID uint, found bool, err error)
	EnsureMembership(ctx context.Context, userID, roomID uint) error
}

// HistorySource 提供房间的近期消息，供加入时回放。
type HistorySource interface {
	History(ctx context.Context, room string, limit int) ([]domain.HistoryEntry, error)
}

// MessageSink 异步落库一条消息，失败不影响投递。
type MessageSink interface {
	PersistAsync(ev domain.ChatEvent, senderID uint)
}

// EventPublisher 把事件发布到跨实例总线。
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.ChatEvent) error
}

// Hub 驱动连接的完整生命周期：注册、加入房间、聊天广播、下线清理。
// 意图在各连接的读协程上同步处理，Hub 本身不串行化全局事件。
type Hub struct {
	registry *Registry
	cache    *history.Cache
	presence *presence.Tracker

	rooms     RoomDirectory
	histSrc   HistorySource
	sink      MessageSink
	publisher EventPublisher
}

func NewHub(registry *Registry, cache *history.Cache, tracker *presence.Tracker, rooms RoomDirectory, histSrc HistorySource, sink MessageSink, publisher EventPublisher) *Hub {
	if registry == nil || cache == nil || tracker == nil {
		panic("hub: registry, cache and tracker are required")
	}
	if rooms == nil || histSrc == nil || sink == nil || publisher == nil {
		panic("hub: room directory, history source, sink and publisher are required")
	}
	return &Hub{
		registry:  registry,
		cache:     cache,
		presence:  tracker,
		rooms:     rooms,
		histSrc:   histSrc,
		sink:      sink,
		publisher: publisher,
	}
}

// Registry 暴露底层注册表，Bridge 用它做本地投递。
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Register 登记一条新连接并标记用户在线。
// 连接此时还不属于任何房间，要等客户端发出 join 意图。
func (h *Hub) Register(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()
	h.presence.Connect(ctx, c.identity.ID)
	logrus.WithFields(logrus.Fields{
		"component": "hub",
		"user_id":   c.identity.ID,
		"username":  c.identity.Username,
	}).Info("Client connected")
}

// Unregister 执行下线清理，任何触发路径重复调用都只生效一次。
func (h *Hub) Unregister(c *Client) {
	c.depart()
}

// depart 摘除房间归属并递减在线计数，departOnce 保证恰好一次。
func (c *Client) depart() {
	c.departOnce.Do(func() {
		room, _ := c.hub.registry.RoomOf(c)
		c.hub.registry.Unregister(c)

		ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
		defer cancel()
		c.hub.presence.Disconnect(ctx, c.identity.ID)

		logrus.WithFields(logrus.Fields{
			"component": "hub",
			"user_id":   c.identity.ID,
			"room":      room,
		}).Info("Client disconnected")
	})
	c.Close()
}

// HandleFrame 解析一帧入站意图并分发处理。
// 由读协程调用，处理完成前不会读取下一帧。
func (h *Hub) HandleFrame(c *Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "hub",
			"user_id":   c.identity.ID,
		}).Warn("Discarding unparseable frame")
		return
	}

	switch frame.Type {
	case "join":
		code := frame.Code
		if code == "" {
			code = frame.Room
		}
		h.handleJoin(c, code)
	case "chat":
		h.handleChat(c, frame.Content)
	default:
		logrus.WithFields(logrus.Fields{
			"component": "hub",
			"user_id":   c.identity.ID,
			"type":      frame.Type,
		}).Warn("Unknown frame type")
	}
}

// handleJoin 处理加入或切换房间。
// 解析失败或存储出错时连接停留在原房间，状态不变。
func (h *Hub) handleJoin(c *Client, code string) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		c.trySend(errorFrame(ErrCodeBadJoin, "Missing room code"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()

	roomID, found, err := h.rooms.ResolveRoom(ctx, code)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "hub",
			"user_id":   c.identity.ID,
			"room":      code,
			"error":     err.Error(),
		}).Error("Failed to resolve room")
		c.trySend(errorFrame(ErrCodeServerError, "Failed to resolve room"))
		return
	}
	if !found {
		c.trySend(errorFrame(ErrCodeNoSuchRoom, "Room does not exist"))
		return
	}

	if err := h.rooms.EnsureMembership(ctx, c.identity.ID, roomID); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "hub",
			"user_id":   c.identity.ID,
			"room":      code,
			"error":     err.Error(),
		}).Error("Failed to record membership")
		c.trySend(errorFrame(ErrCodeServerError, "Failed to join room"))
		return
	}

	h.registry.Move(c, code)
	c.drainPending()
	c.trySend(joinedFrame(code))

	entries, err := h.histSrc.History(ctx, code, historySeedLimit)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "hub",
			"user_id":   c.identity.ID,
			"room":      code,
			"error":     err.Error(),
		}).Warn("History replay unavailable")
	} else if len(entries) > 0 {
		c.trySend(historyFrame(code, entries))
	}

	logrus.WithFields(logrus.Fields{
		"component": "hub",
		"user_id":   c.identity.ID,
		"room":      code,
	}).Info("Client joined room")
}

// handleChat 处理一条聊天消息：缓存、异步落库、本地投递、总线发布。
// 落库和总线都不在交付路径上，失败只降级不阻断。
func (h *Hub) handleChat(c *Client, content string) {
	room, ok := h.registry.RoomOf(c)
	if !ok {
		c.trySend(errorFrame(ErrCodeNotJoined, "Join a room first"))
		return
	}
	if strings.TrimSpace(content) == "" {
		c.trySend(errorFrame(ErrCodeEmptyMessage, "Message content is empty"))
		return
	}
	content = truncateContent(content, maxContentLength)

	ev := domain.ChatEvent{
		Room:    room,
		User:    c.identity.Username,
		Content: content,
		Time:    time.Now().UTC(),
	}

	h.cache.Append(room, ev.HistoryEntry())

	frame, err := ChatFrame(ev)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "hub",
			"room":      room,
			"error":     err.Error(),
		}).Error("Failed to encode chat frame")
		return
	}

	delivered := h.registry.DeliverLocal(room, frame)
	logrus.WithFields(logrus.Fields{
		"component": "hub",
		"room":      room,
		"user_id":   c.identity.ID,
		"delivered": delivered,
	}).Debug("Chat delivered locally")

	// 落库和总线发布都在本地投递之后，不占交付路径
	h.sink.PersistAsync(ev, c.identity.ID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
		defer cancel()
		if err := h.publisher.Publish(ctx, ev); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "hub",
				"room":      room,
				"error":     err.Error(),
			}).Warn("Bus publish failed, local-only delivery")
		}
	}()
}

// truncateContent 按字节上限截断，回退到最近的合法 UTF-8 边界。
func truncateContent(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}
