package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Arham-Tahir64/chitty/internal/domain"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// Save 实现持久化一条消息
func (r *GormMessageRepository) Save(ctx context.Context, msg *domain.Message) error {
	err := r.db.WithContext(ctx).Create(msg).Error
	if err != nil {
		return fmt.Errorf("gorm: save message (room %s, sender %d): %w", msg.Room, msg.SenderID, err)
	}
	return nil
}

// RecentByRoom 实现查询指定房间的最近消息。
// 先按 id 倒序取 limit 条，再在内存中反转为最旧在前，
// 与缓存的 oldest-first 顺序保持一致。
func (r *GormMessageRepository) RecentByRoom(ctx context.Context, code string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []domain.HistoryEntry
	err := r.db.WithContext(ctx).
		Table("messages").
		Select("messages.room AS room, users.username AS sender, messages.content AS content, messages.created_at AS created_at").
		Joins("JOIN users ON users.id = messages.sender_id").
		Where("messages.room = ?", code).
		Order("messages.id DESC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: recent messages for room '%s': %w", code, err)
	}
	// 反转为最旧在前
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
