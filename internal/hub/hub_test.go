package hub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	mu          sync.Mutex
	rooms       map[string]uint
	resolveErr  error
	memberships [][2]uint
}

func (s *stubDirectory) ResolveRoom(_ context.Context, code string) (uint, bool, error) {
	if s.resolveErr != nil {
		return 0, false, s.resolveErr
	}
	id, ok := s.rooms[code]
	return id, ok, nil
}

func (s *stubDirectory) EnsureMembership(_ context.Context, userID, roomID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships = append(s.memberships, [2]uint{userID, roomID})
	return nil
}

type stubHistory struct {
	entries map[string][]domain.HistoryEntry
}

func (s *stubHistory) History(_ context.Context, room string, limit int) ([]domain.HistoryEntry, error) {
	out := s.entries[room]
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type stubSink struct {
	mu     sync.Mutex
	events []domain.ChatEvent
}

func (s *stubSink) PersistAsync(ev domain.ChatEvent, _ uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

type stubPublisher struct {
	mu     sync.Mutex
	events []domain.ChatEvent
	err    error
}

func (s *stubPublisher) Publish(_ context.Context, ev domain.ChatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *stubPublisher) published() []domain.ChatEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatEvent(nil), s.events...)
}

// readFrame 从出站缓冲取出一帧并解析成通用映射。
func readFrame(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case raw := <-c.send:
		var frame map[string]any
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	default:
		t.Fatal("期望有出站帧但缓冲为空")
		return nil
	}
}

func TestJoinThenChatDeliversToRoom(t *testing.T) {
	dir := &stubDirectory{rooms: map[string]uint{"AAAA01": 7}}
	sink := &stubSink{}
	pub := &stubPublisher{}
	h := NewHub(NewRegistry(), newCache(), newTracker(), dir, &stubHistory{}, sink, pub)

	alice := newTestClient(h, 1, "alice")
	bob := newTestClient(h, 2, "bob")
	h.HandleFrame(alice, []byte(`{"type":"join","code":"AAAA01"}`))
	h.HandleFrame(bob, []byte(`{"type":"join","code":"aaaa01"}`))

	frame := readFrame(t, alice)
	assert.Equal(t, "joined", frame["type"])
	assert.Equal(t, "AAAA01", frame["code"])

	// 短码大小写不敏感，小写输入归一化后加入同一房间
	frame = readFrame(t, bob)
	assert.Equal(t, "joined", frame["type"])
	assert.Equal(t, "AAAA01", frame["code"])

	h.HandleFrame(alice, []byte(`{"type":"chat","content":"hello"}`))

	for _, c := range []*Client{alice, bob} {
		frame = readFrame(t, c)
		assert.Equal(t, "chat", frame["type"])
		assert.Equal(t, "AAAA01", frame["room"])
		assert.Equal(t, "alice", frame["user"])
		assert.Equal(t, "hello", frame["content"])
	}

	// 本地缓存记录了这条消息，落库走异步通道
	assert.Equal(t, 1, h.cache.Len("AAAA01"))
	assert.Len(t, sink.events, 1)
	assert.Equal(t, [][2]uint{{1, 7}, {2, 7}}, dir.memberships)

	// 总线发布在后台协程完成
	require.Eventually(t, func() bool {
		return len(pub.published()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestJoinUnknownRoomLeavesStateUnchanged(t *testing.T) {
	dir := &stubDirectory{rooms: map[string]uint{"AAAA01": 7}}
	h := NewHub(NewRegistry(), newCache(), newTracker(), dir, &stubHistory{}, &stubSink{}, &stubPublisher{})

	c := newTestClient(h, 1, "alice")
	h.HandleFrame(c, []byte(`{"type":"join","code":"AAAA01"}`))
	readFrame(t, c)

	h.HandleFrame(c, []byte(`{"type":"join","code":"ZZZZ99"}`))
	frame := readFrame(t, c)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, ErrCodeNoSuchRoom, frame["code"])

	// 加入失败后仍留在原房间
	room, ok := h.registry.RoomOf(c)
	require.True(t, ok)
	assert.Equal(t, "AAAA01", room)
}

func TestJoinResolveFailureKeepsConnectionAlive(t *testing.T) {
	dir := &stubDirectory{rooms: map[string]uint{}, resolveErr: errors.New("db down")}
	h := NewHub(NewRegistry(), newCache(), newTracker(), dir, &stubHistory{}, &stubSink{}, &stubPublisher{})

	c := newTestClient(h, 1, "alice")
	h.HandleFrame(c, []byte(`{"type":"join","code":"AAAA01"}`))

	frame := readFrame(t, c)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, ErrCodeServerError, frame["code"])
	_, ok := h.registry.RoomOf(c)
	assert.False(t, ok)
}

func TestChatBeforeJoinRejected(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, 1, "alice")

	h.HandleFrame(c, []byte(`{"type":"chat","content":"hello"}`))
	frame := readFrame(t, c)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, ErrCodeNotJoined, frame["code"])
}

func TestEmptyChatRejected(t *testing.T) {
	dir := &stubDirectory{rooms: map[string]uint{"AAAA01": 7}}
	h := NewHub(NewRegistry(), newCache(), newTracker(), dir, &stubHistory{}, &stubSink{}, &stubPublisher{})

	c := newTestClient(h, 1, "alice")
	h.HandleFrame(c, []byte(`{"type":"join","code":"AAAA01"}`))
	readFrame(t, c)

	h.HandleFrame(c, []byte(`{"type":"chat","content":"   "}`))
	frame := readFrame(t, c)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, ErrCodeEmptyMessage, frame["code"])
	assert.Equal(t, 0, h.cache.Len("AAAA01"))
}

func TestChatContentTruncated(t *testing.T) {
	dir := &stubDirectory{rooms: map[string]uint{"AAAA01": 7}}
	h := NewHub(NewRegistry(), newCache(), newTracker(), dir, &stubHistory{}, &stubSink{}, &stubPublisher{})

	c := newTestClient(h, 1, "alice")
	h.HandleFrame(c, []byte(`{"type":"join","code":"AAAA01"}`))
	readFrame(t, c)

	long := strings.Repeat("a", maxContentLength+500)
	raw, err := json.Marshal(map[string]string{"type": "chat", "content": long})
	require.NoError(t, err)
	h.HandleFrame(c, raw)

	frame := readFrame(t, c)
	assert.Equal(t, "chat", frame["type"])
	assert.Len(t, frame["content"], maxContentLength)
}

func TestHistoryReplayOnJoin(t *testing.T) {
	dir := &stubDirectory{rooms: map[string]uint{"AAAA01": 7}}
	hist := &stubHistory{entries: map[string][]domain.HistoryEntry{
		"AAAA01": {
			{Room: "AAAA01", Sender: "bob", Content: "first"},
			{Room: "AAAA01", Sender: "bob", Content: "second"},
		},
	}}
	h := NewHub(NewRegistry(), newCache(), newTracker(), dir, hist, &stubSink{}, &stubPublisher{})

	c := newTestClient(h, 1, "alice")
	h.HandleFrame(c, []byte(`{"type":"join","code":"AAAA01"}`))

	frame := readFrame(t, c)
	assert.Equal(t, "joined", frame["type"])

	frame = readFrame(t, c)
	assert.Equal(t, "history", frame["type"])
	messages, ok := frame["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
	first, ok := messages[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "first", first["content"], "回放应保持从旧到新的顺序")
}

func TestRoomSwitchDrainsPendingFrames(t *testing.T) {
	dir := &stubDirectory{rooms: map[string]uint{"AAAA01": 7, "BBBB02": 8}}
	h := NewHub(NewRegistry(), newCache(), newTracker(), dir, &stubHistory{}, &stubSink{}, &stubPublisher{})

	c := newTestClient(h, 1, "alice")
	h.HandleFrame(c, []byte(`{"type":"join","code":"AAAA01"}`))
	readFrame(t, c)

	// 旧房间的积压帧在切换时被清掉，新房间成员看不到混入的旧消息
	h.registry.DeliverLocal("AAAA01", []byte(`{"type":"chat","room":"AAAA01","content":"stale"}`))
	h.HandleFrame(c, []byte(`{"type":"join","code":"BBBB02"}`))

	frame := readFrame(t, c)
	assert.Equal(t, "joined", frame["type"])
	assert.Equal(t, "BBBB02", frame["code"])
	assert.Empty(t, c.send)
}

func TestMalformedFrameIgnored(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, 1, "alice")

	h.HandleFrame(c, []byte(`{not json`))
	h.HandleFrame(c, []byte(`{"type":"dance"}`))
	assert.Empty(t, c.send, "无法解析的帧应被丢弃而不是断开连接")
}

func TestTruncateContentKeepsUTF8Boundary(t *testing.T) {
	s := strings.Repeat("a", maxContentLength-1) + "世界"
	out := truncateContent(s, maxContentLength)
	assert.LessOrEqual(t, len(out), maxContentLength)
	assert.Equal(t, strings.Repeat("a", maxContentLength-1), out, "截断应回退到完整的多字节边界")
}
