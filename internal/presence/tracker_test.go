package presence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Arham-Tahir64/chitty/internal/presence"
)

func TestTracker_ConnectDisconnect(t *testing.T) {
	tr := presence.NewTracker(nil, "")
	ctx := context.Background()

	assert.False(t, tr.IsOnline(1))

	tr.Connect(ctx, 1)
	assert.True(t, tr.IsOnline(1))

	tr.Disconnect(ctx, 1)
	assert.False(t, tr.IsOnline(1))
}

func TestTracker_MultipleConnectionsSameUser(t *testing.T) {
	// 同一用户多条连接：最后一条断开前应保持在线
	tr := presence.NewTracker(nil, "")
	ctx := context.Background()

	tr.Connect(ctx, 7)
	tr.Connect(ctx, 7)
	tr.Disconnect(ctx, 7)
	assert.True(t, tr.IsOnline(7), "还有一条连接存活时应在线")

	tr.Disconnect(ctx, 7)
	assert.False(t, tr.IsOnline(7))
}

func TestTracker_DisconnectUnknownUserIsNoop(t *testing.T) {
	tr := presence.NewTracker(nil, "")
	ctx := context.Background()

	tr.Disconnect(ctx, 99)
	assert.False(t, tr.IsOnline(99))
}

func TestTracker_LocalUsers(t *testing.T) {
	tr := presence.NewTracker(nil, "")
	ctx := context.Background()

	tr.Connect(ctx, 1)
	tr.Connect(ctx, 2)
	tr.Connect(ctx, 2)

	ids := tr.LocalUsers()
	assert.ElementsMatch(t, []uint{1, 2}, ids)
}

func TestTracker_IsOnlineAnywhereWithoutRedis(t *testing.T) {
	// 无 Redis 时退化为本地视图
	tr := presence.NewTracker(nil, "")
	ctx := context.Background()

	tr.Connect(ctx, 3)
	assert.True(t, tr.IsOnlineAnywhere(ctx, 3))
	assert.False(t, tr.IsOnlineAnywhere(ctx, 4))
}
