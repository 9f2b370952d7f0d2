package domain

import "time"

// Room 表示一个聊天房间。
// Code 是对外暴露的短邀请码，WebSocket 协议和消息表都以它作为房间标识；
// 数字主键只在数据库内部（membership 外键）使用。
type Room struct {
	ID        uint      `gorm:"primaryKey"`                                      // 房间唯一标识符 (主键)
	Code      string    `gorm:"type:varchar(191);uniqueIndex:idx_code;not null"` // 加入房间的短码，必须唯一
	Name      string    `gorm:"type:varchar(191);not null"`                      // 房间显示名称
	CreatorID uint      `gorm:"index;not null"`                                  // 创建该房间的用户 ID
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Membership 记录用户与房间的成员关系。
// (UserID, RoomID) 上的唯一索引保证 "insert if absent" 的幂等性。
type Membership struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"uniqueIndex:idx_user_room;not null"`
	RoomID    uint      `gorm:"uniqueIndex:idx_user_room;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Member 是成员列表查询的投影（membership JOIN users）。
type Member struct {
	ID       uint   `json:"id"`
	Username string `json:"name"`
	Online   bool   `json:"online"`
}
