package hub

import (
	"testing"
	"time"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/Arham-Tahir64/chitty/internal/history"
	"github.com/Arham-Tahir64/chitty/internal/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache() *history.Cache {
	return history.NewCache(history.DefaultCapacity)
}

func newTracker() *presence.Tracker {
	return presence.NewTracker(nil, "test")
}

func newTestHub() *Hub {
	return NewHub(
		NewRegistry(),
		newCache(),
		newTracker(),
		&stubDirectory{rooms: map[string]uint{}},
		&stubHistory{},
		&stubSink{},
		&stubPublisher{},
	)
}

func newTestClient(h *Hub, id uint, name string) *Client {
	return NewClient(h, nil, domain.Identity{ID: id, Username: name})
}

func TestRegistryMoveIsAtomic(t *testing.T) {
	h := newTestHub()
	r := h.registry
	c := newTestClient(h, 1, "alice")

	r.Move(c, "AAAA01")
	room, ok := r.RoomOf(c)
	require.True(t, ok)
	assert.Equal(t, "AAAA01", room)
	assert.Len(t, r.MembersOf("AAAA01"), 1)

	// 切换房间后旧房间不再持有该连接
	r.Move(c, "BBBB02")
	room, ok = r.RoomOf(c)
	require.True(t, ok)
	assert.Equal(t, "BBBB02", room)
	assert.Empty(t, r.MembersOf("AAAA01"))
	assert.Len(t, r.MembersOf("BBBB02"), 1)
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	h := newTestHub()
	r := h.registry
	c := newTestClient(h, 1, "alice")

	r.Move(c, "AAAA01")
	assert.True(t, r.Unregister(c))
	assert.False(t, r.Unregister(c), "重复注销应是无害的空操作")
	_, ok := r.RoomOf(c)
	assert.False(t, ok)
}

func TestRegistryRoomEmptyHook(t *testing.T) {
	h := newTestHub()
	r := h.registry

	var emptied []string
	r.OnRoomEmpty(func(room string) { emptied = append(emptied, room) })

	a := newTestClient(h, 1, "alice")
	b := newTestClient(h, 2, "bob")
	r.Move(a, "AAAA01")
	r.Move(b, "AAAA01")

	r.Unregister(a)
	assert.Empty(t, emptied, "房间尚有成员时不应触发回调")

	r.Unregister(b)
	assert.Equal(t, []string{"AAAA01"}, emptied)
}

func TestRegistryRoomsCountsActiveRooms(t *testing.T) {
	h := newTestHub()
	r := h.registry

	assert.Equal(t, 0, r.Rooms())

	a := newTestClient(h, 1, "alice")
	b := newTestClient(h, 2, "bob")
	r.Move(a, "AAAA01")
	r.Move(b, "BBBB02")
	assert.Equal(t, 2, r.Rooms())

	// 同房间多个连接只算一个房间
	r.Move(b, "AAAA01")
	assert.Equal(t, 1, r.Rooms())

	r.Unregister(a)
	r.Unregister(b)
	assert.Equal(t, 0, r.Rooms(), "空房间应随最后一个连接离开被回收")
}

func TestDeliverLocalSkipsOtherRooms(t *testing.T) {
	h := newTestHub()
	r := h.registry

	a := newTestClient(h, 1, "alice")
	b := newTestClient(h, 2, "bob")
	c := newTestClient(h, 3, "carol")
	r.Move(a, "AAAA01")
	r.Move(b, "AAAA01")
	r.Move(c, "BBBB02")

	delivered := r.DeliverLocal("AAAA01", []byte(`{"type":"chat"}`))
	assert.Equal(t, 2, delivered)
	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 1)
	assert.Empty(t, c.send, "不在房间内的连接不应收到广播")
}

func TestDeliverLocalEvictsDeadClients(t *testing.T) {
	h := newTestHub()
	r := h.registry

	slow := newTestClient(h, 1, "alice")
	r.Move(slow, "AAAA01")

	// 填满出站缓冲，模拟读端停滞的慢客户端
	for i := 0; i < sendBufferSize; i++ {
		slow.send <- []byte("x")
	}

	frame := []byte(`{"type":"chat"}`)
	for i := 0; i < maxSendFailures; i++ {
		assert.Equal(t, 0, r.DeliverLocal("AAAA01", frame))
	}

	// 清理在后台异步进行，广播路径本身不阻塞
	require.Eventually(t, func() bool {
		_, ok := r.RoomOf(slow)
		return !ok
	}, time.Second, 10*time.Millisecond, "死亡连接应被异步摘除")
}

func TestTrySendResetsFailureCount(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, 1, "alice")

	for i := 0; i < sendBufferSize; i++ {
		c.send <- []byte("x")
	}
	assert.False(t, c.trySend([]byte("y")))
	assert.False(t, c.dead(), "单次失败不应判定死亡")

	// 腾出缓冲空间后成功投递，失败计数清零
	<-c.send
	assert.True(t, c.trySend([]byte("y")))
	assert.False(t, c.dead())
}
