package domain

import "time"

// Message 是持久化到数据库的聊天消息。
// Room 字段存的是房间短码（文本），与原始消息流向保持一致，
// 这样历史查询不需要先把短码换成数字 ID。
type Message struct {
	ID        uint      `gorm:"primaryKey"`
	Room      string    `gorm:"type:varchar(191);index;not null"` // 房间短码
	SenderID  uint      `gorm:"index;not null"`                   // 发送者用户 ID
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

// HistoryEntry 是历史缓存和历史查询 API 使用的非规范化投影。
type HistoryEntry struct {
	Room      string    `json:"room"`
	Sender    string    `json:"sender"` // 发送者用户名（非 ID）
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
