package repository

import (
	"context"

	"github.com/Arham-Tahir64/chitty/internal/domain"
)

// MessageRepository 定义了聊天消息的持久化和历史查询。
// 历史缓存未命中时，它是历史数据的最终权威来源。
type MessageRepository interface {
	// Save 持久化一条消息。
	Save(ctx context.Context, msg *domain.Message) error

	// RecentByRoom 查询指定房间最近的消息（messages JOIN users 取用户名），
	// 结果按时间正序（最旧在前），最多 limit 条。
	RecentByRoom(ctx context.Context, code string, limit int) ([]domain.HistoryEntry, error)
}
