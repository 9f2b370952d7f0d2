package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/Arham-Tahir64/chitty/internal/repository"
	"github.com/sirupsen/logrus"
)

// PresenceChecker 查询用户是否在任一实例上在线。
type PresenceChecker interface {
	IsOnlineAnywhere(ctx context.Context, userID uint) bool
}

// RoomService 负责房间的创建、查找和成员管理。
type RoomService struct {
	roomRepo       repository.RoomRepository
	membershipRepo repository.MembershipRepository
	presence       PresenceChecker // 可为 nil，此时成员列表不带在线状态
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, membershipRepo repository.MembershipRepository, presence PresenceChecker) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if membershipRepo == nil {
		panic("MembershipRepository cannot be nil for RoomService")
	}
	return &RoomService{
		roomRepo:       roomRepo,
		membershipRepo: membershipRepo,
		presence:       presence,
	}
}

// CreateRoom 创建一个新房间并把创建者登记为成员。
// 房间名为空时用短码顶替。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uint, name string) (*domain.Room, error) {
	logCtx := logrus.WithField("creator_id", creatorID)

	code, err := s.generateUniqueCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate unique room code")
		return nil, ErrInternalServer
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Room " + code
	}

	room := &domain.Room{
		Code:      code,
		Name:      name,
		CreatorID: creatorID,
	}
	if err := s.roomRepo.Save(ctx, room); err != nil {
		logCtx.WithError(err).WithField("code", code).Error("Failed to save new room")
		return nil, ErrInternalServer
	}

	if err := s.membershipRepo.Ensure(ctx, creatorID, room.ID); err != nil {
		// 创建者的成员资格会在首次 join 时补登记，这里只记日志
		logCtx.WithError(err).WithField("room_id", room.ID).Warn("Failed to record creator membership")
	}

	logCtx.WithFields(logrus.Fields{"room_id": room.ID, "code": code}).Info("Room created successfully")
	return room, nil
}

// JoinRoom 通过短码加入房间并登记成员资格。
func (s *RoomService) JoinRoom(ctx context.Context, userID uint, code string) (*domain.Room, error) {
	code = normalizeCode(code)
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "code": code})

	room, err := s.roomRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("Join failed: room not found")
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Join failed: repository error")
		return nil, ErrInternalServer
	}

	if err := s.membershipRepo.Ensure(ctx, userID, room.ID); err != nil {
		logCtx.WithError(err).Error("Join failed: could not record membership")
		return nil, ErrInternalServer
	}

	logCtx.WithField("room_id", room.ID).Info("User joined room")
	return room, nil
}

// ResolveRoom 把短码解析成房间 ID，不存在不算错误。
func (s *RoomService) ResolveRoom(ctx context.Context, code string) (uint, bool, error) {
	room, err := s.roomRepo.FindByCode(ctx, normalizeCode(code))
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return room.ID, true, nil
}

// EnsureMembership 幂等地登记成员资格。
func (s *RoomService) EnsureMembership(ctx context.Context, userID, roomID uint) error {
	return s.membershipRepo.Ensure(ctx, userID, roomID)
}

// RoomsForUser 返回用户加入过的全部房间。
func (s *RoomService) RoomsForUser(ctx context.Context, userID uint) ([]domain.Room, error) {
	rooms, err := s.roomRepo.FindByUser(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to list rooms for user")
		return nil, ErrInternalServer
	}
	return rooms, nil
}

// Members 返回房间的成员列表，并在配置了 Presence 时填充在线状态。
func (s *RoomService) Members(ctx context.Context, code string) ([]domain.Member, error) {
	code = normalizeCode(code)

	if _, err := s.roomRepo.FindByCode(ctx, code); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, ErrInternalServer
	}

	members, err := s.membershipRepo.MembersByRoomCode(ctx, code)
	if err != nil {
		logrus.WithError(err).WithField("code", code).Error("Failed to list room members")
		return nil, ErrInternalServer
	}

	if s.presence != nil {
		for i := range members {
			members[i].Online = s.presence.IsOnlineAnywhere(ctx, members[i].ID)
		}
	}
	return members, nil
}

// --- 私有辅助函数 ---

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// generateUniqueCode 生成 6 位的唯一房间短码。
func (s *RoomService) generateUniqueCode(ctx context.Context) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const codeLength = 6
	const maxAttempts = 10

	b := make([]byte, codeLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = letters[int(b[i])%len(letters)]
		}
		code := string(b)

		exists, err := s.roomRepo.IsCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("database error checking room code: %w", err)
		}
		if !exists {
			return code, nil
		}
		logrus.WithField("code", code).Warnf("Generated room code already exists, retrying (attempt %d)", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique room code after %d attempts", maxAttempts)
}
