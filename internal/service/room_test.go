package service_test

import (
	"context"
	"testing"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/Arham-Tahir64/chitty/internal/repository"
	"github.com/Arham-Tahir64/chitty/internal/repository/mocks"
	"github.com/Arham-Tahir64/chitty/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubPresence struct {
	online map[uint]bool
}

func (s *stubPresence) IsOnlineAnywhere(_ context.Context, userID uint) bool {
	return s.online[userID]
}

func newRoomService(roomRepo *mocks.RoomRepository, membershipRepo *mocks.MembershipRepository, presence service.PresenceChecker) *service.RoomService {
	return service.NewRoomService(roomRepo, membershipRepo, presence)
}

func TestRoomService_CreateRoom_Success(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockMembershipRepo := new(mocks.MembershipRepository)
	roomService := newRoomService(mockRoomRepo, mockMembershipRepo, nil)

	ctx := context.Background()

	// 短码唯一性检查通过，保存成功并分配 ID
	mockRoomRepo.On("IsCodeExists", ctx, mock.AnythingOfType("string")).
		Return(false, nil).
		Once()
	mockRoomRepo.On("Save", ctx, mock.MatchedBy(func(room *domain.Room) bool {
		assert.Len(t, room.Code, 6, "短码应为 6 位")
		assert.Equal(t, "My Room", room.Name)
		assert.Equal(t, uint(3), room.CreatorID)
		return true
	})).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Room).ID = 42
		}).
		Return(nil).
		Once()
	mockMembershipRepo.On("Ensure", ctx, uint(3), uint(42)).
		Return(nil).
		Once()

	room, err := roomService.CreateRoom(ctx, 3, "My Room")

	assert.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, uint(42), room.ID)
	mockRoomRepo.AssertExpectations(t)
	mockMembershipRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_DefaultName(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockMembershipRepo := new(mocks.MembershipRepository)
	roomService := newRoomService(mockRoomRepo, mockMembershipRepo, nil)

	ctx := context.Background()
	mockRoomRepo.On("IsCodeExists", ctx, mock.AnythingOfType("string")).Return(false, nil).Once()
	mockRoomRepo.On("Save", ctx, mock.MatchedBy(func(room *domain.Room) bool {
		// 空房间名回退为 "Room <短码>"
		return room.Name == "Room "+room.Code
	})).Return(nil).Once()
	mockMembershipRepo.On("Ensure", ctx, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := roomService.CreateRoom(ctx, 3, "   ")
	assert.NoError(t, err)
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_RetriesOnCodeCollision(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockMembershipRepo := new(mocks.MembershipRepository)
	roomService := newRoomService(mockRoomRepo, mockMembershipRepo, nil)

	ctx := context.Background()

	// 第一次生成的短码已存在，第二次成功
	mockRoomRepo.On("IsCodeExists", ctx, mock.AnythingOfType("string")).Return(true, nil).Once()
	mockRoomRepo.On("IsCodeExists", ctx, mock.AnythingOfType("string")).Return(false, nil).Once()
	mockRoomRepo.On("Save", ctx, mock.AnythingOfType("*domain.Room")).Return(nil).Once()
	mockMembershipRepo.On("Ensure", ctx, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := roomService.CreateRoom(ctx, 3, "Retry Room")
	assert.NoError(t, err)
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_JoinRoom_Success(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockMembershipRepo := new(mocks.MembershipRepository)
	roomService := newRoomService(mockRoomRepo, mockMembershipRepo, nil)

	ctx := context.Background()
	room := &domain.Room{ID: 7, Code: "AAAA01", Name: "General"}

	// 小写短码应被归一化
	mockRoomRepo.On("FindByCode", ctx, "AAAA01").Return(room, nil).Once()
	mockMembershipRepo.On("Ensure", ctx, uint(3), uint(7)).Return(nil).Once()

	joined, err := roomService.JoinRoom(ctx, 3, "aaaa01")

	assert.NoError(t, err)
	assert.Equal(t, room, joined)
	mockRoomRepo.AssertExpectations(t)
	mockMembershipRepo.AssertExpectations(t)
}

func TestRoomService_JoinRoom_NotFound(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockMembershipRepo := new(mocks.MembershipRepository)
	roomService := newRoomService(mockRoomRepo, mockMembershipRepo, nil)

	ctx := context.Background()
	mockRoomRepo.On("FindByCode", ctx, "ZZZZ99").Return(nil, repository.ErrRoomNotFound).Once()

	joined, err := roomService.JoinRoom(ctx, 3, "ZZZZ99")

	assert.Nil(t, joined)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	mockMembershipRepo.AssertNotCalled(t, "Ensure", mock.Anything, mock.Anything, mock.Anything)
}

func TestRoomService_ResolveRoom(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockMembershipRepo := new(mocks.MembershipRepository)
	roomService := newRoomService(mockRoomRepo, mockMembershipRepo, nil)

	ctx := context.Background()
	mockRoomRepo.On("FindByCode", ctx, "AAAA01").
		Return(&domain.Room{ID: 7, Code: "AAAA01"}, nil).
		Once()
	mockRoomRepo.On("FindByCode", ctx, "ZZZZ99").
		Return(nil, repository.ErrRoomNotFound).
		Once()

	id, found, err := roomService.ResolveRoom(ctx, "AAAA01")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint(7), id)

	// 房间不存在是正常结果而非错误
	_, found, err = roomService.ResolveRoom(ctx, "ZZZZ99")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestRoomService_Members_WithPresence(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockMembershipRepo := new(mocks.MembershipRepository)
	presence := &stubPresence{online: map[uint]bool{1: true}}
	roomService := newRoomService(mockRoomRepo, mockMembershipRepo, presence)

	ctx := context.Background()
	mockRoomRepo.On("FindByCode", ctx, "AAAA01").
		Return(&domain.Room{ID: 7, Code: "AAAA01"}, nil).
		Once()
	mockMembershipRepo.On("MembersByRoomCode", ctx, "AAAA01").
		Return([]domain.Member{
			{ID: 1, Username: "alice"},
			{ID: 2, Username: "bob"},
		}, nil).
		Once()

	members, err := roomService.Members(ctx, "AAAA01")

	assert.NoError(t, err)
	require.Len(t, members, 2)
	assert.True(t, members[0].Online, "在线用户应被标记")
	assert.False(t, members[1].Online)
}
