package hub

import (
	"encoding/json"
	"time"

	"github.com/Arham-Tahir64/chitty/internal/domain"
)

// 客户端可见的错误码
const (
	ErrCodeBadJoin      = "BAD_JOIN"      // join 意图缺少房间短码
	ErrCodeNoSuchRoom   = "NO_SUCH_ROOM"  // 短码在持久存储中不存在
	ErrCodeNotJoined    = "NOT_JOINED"    // 未加入任何房间时发送 chat
	ErrCodeEmptyMessage = "EMPTY_MESSAGE" // chat 内容为空
	ErrCodeServerError  = "SERVER_ERROR"  // 服务端内部错误，连接状态不变
)

// inboundFrame 是客户端发来的 JSON 帧。
// join 同时兼容 {code: ...} 和 {room: ...} 两种字段。
type inboundFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Room    string `json:"room,omitempty"`
	Content string `json:"content,omitempty"`
}

// chatBroadcast 是广播给房间成员的出站帧。
type chatBroadcast struct {
	Type    string    `json:"type"`
	Room    string    `json:"room"`
	User    string    `json:"user"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

type joinedConfirm struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

type historyReplay struct {
	Type     string                `json:"type"`
	Room     string                `json:"room"`
	Messages []domain.HistoryEntry `json:"messages"`
}

type errorNotice struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ChatFrame 序列化一条聊天广播帧。
// 本地投递和 Bridge 转投使用同一帧格式，所以导出给 bridge 包复用。
func ChatFrame(ev domain.ChatEvent) ([]byte, error) {
	return json.Marshal(chatBroadcast{
		Type:    "chat",
		Room:    ev.Room,
		User:    ev.User,
		Content: ev.Content,
		Time:    ev.Time,
	})
}

func joinedFrame(code string) []byte {
	b, _ := json.Marshal(joinedConfirm{Type: "joined", Code: code})
	return b
}

func historyFrame(room string, entries []domain.HistoryEntry) []byte {
	b, _ := json.Marshal(historyReplay{Type: "history", Room: room, Messages: entries})
	return b
}

func errorFrame(code, message string) []byte {
	b, _ := json.Marshal(errorNotice{Type: "error", Code: code, Message: message})
	return b
}
