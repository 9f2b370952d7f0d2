package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/Arham-Tahir64/chitty/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByCode 实现根据房间短码查找房间
func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}
	return &room, nil
}

// Save 实现保存房间信息（创建或更新）
func (r *GormRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).Save(room).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room (id: %d, code: %s): %w", room.ID, room.Code, err)
	}
	return nil
}

// IsCodeExists 实现检查房间短码是否存在
func (r *GormRoomRepository) IsCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	// 只查数量，避免取整行
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}

// FindByUser 实现查询用户加入过的房间列表
func (r *GormRoomRepository) FindByUser(ctx context.Context, userID uint) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.room_id = rooms.id").
		Where("memberships.user_id = ?", userID).
		Order("rooms.created_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find rooms for user %d: %w", userID, err)
	}
	return rooms, nil
}

// GormMembershipRepository 是 MembershipRepository 接口的 GORM 实现
type GormMembershipRepository struct {
	db *gorm.DB
}

// NewGormMembershipRepository 创建 GormMembershipRepository 实例
func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMembershipRepository")
	}
	return &GormMembershipRepository{db: db}
}

// Ensure 实现幂等的成员关系插入 (INSERT ... ON DUPLICATE KEY 忽略)
func (r *GormMembershipRepository) Ensure(ctx context.Context, userID, roomID uint) error {
	m := domain.Membership{UserID: userID, RoomID: roomID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("gorm: ensure membership (user %d, room %d): %w", userID, roomID, err)
	}
	return nil
}

// MembersByRoomCode 实现按房间短码查询成员列表
func (r *GormMembershipRepository) MembersByRoomCode(ctx context.Context, code string) ([]domain.Member, error) {
	var members []domain.Member
	err := r.db.WithContext(ctx).
		Table("memberships").
		Select("users.id AS id, users.username AS username").
		Joins("JOIN users ON users.id = memberships.user_id").
		Joins("JOIN rooms ON rooms.id = memberships.room_id").
		Where("rooms.code = ?", code).
		Order("users.username ASC").
		Scan(&members).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find members for room '%s': %w", code, err)
	}
	return members, nil
}
