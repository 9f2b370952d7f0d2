package repository

import (
	"context"

	"github.com/Arham-Tahir64/chitty/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByCode 根据房间短码查找房间。
	// 如果房间不存在，返回 ErrRoomNotFound。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// Save 保存房间信息。短码冲突时返回 ErrDuplicateEntry。
	Save(ctx context.Context, room *domain.Room) error

	// IsCodeExists 检查房间短码是否已存在。
	IsCodeExists(ctx context.Context, code string) (bool, error)

	// FindByUser 查询用户加入过的全部房间，按创建时间倒序。
	FindByUser(ctx context.Context, userID uint) ([]domain.Room, error)
}

// MembershipRepository 定义了房间成员关系的操作。
type MembershipRepository interface {
	// Ensure 确保成员关系存在，"insert if absent"，幂等。
	Ensure(ctx context.Context, userID, roomID uint) error

	// MembersByRoomCode 按房间短码查询成员列表（用户名升序）。
	// 返回的 Member.Online 由调用方结合 Presence Tracker 填充。
	MembersByRoomCode(ctx context.Context, code string) ([]domain.Member, error)
}
