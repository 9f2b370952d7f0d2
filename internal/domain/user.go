// Package domain 定义了应用的核心数据模型。
package domain

import "time"

// User 表示一个注册用户。
type User struct {
	ID        uint      `gorm:"primaryKey"`                                          // 用户唯一标识符 (主键)
	Username  string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null"` // 用户名，全局唯一
	Password  string    `gorm:"type:text;not null"`                                  // 存储的是 bcrypt 哈希，不能为空
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Identity 是握手认证后附着在连接上的身份信息。
// 由 JWT 的 claims 还原，连接生命周期内不可变。
type Identity struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}
