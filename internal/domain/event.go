package domain

import "time"

// ChatEvent 是扇出的基本单元：一条已通过校验的聊天消息。
// 构造之后不可变。OriginInstance 由 Bridge 在发布时填入本进程的实例标识，
// 订阅端用它来抑制回声（发布实例不会通过总线收到自己的消息第二次）。
type ChatEvent struct {
	Room           string    `json:"room"` // 房间短码
	User           string    `json:"user"` // 发送者用户名
	Content        string    `json:"content"`
	Time           time.Time `json:"time"`
	OriginInstance string    `json:"instance_id,omitempty"`
}

// HistoryEntry 返回该事件在历史缓存中的投影。
func (e ChatEvent) HistoryEntry() HistoryEntry {
	return HistoryEntry{
		Room:      e.Room,
		Sender:    e.User,
		Content:   e.Content,
		CreatedAt: e.Time,
	}
}
