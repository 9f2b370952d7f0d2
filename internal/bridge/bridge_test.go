package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRouter struct {
	deliveries map[string][][]byte
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{deliveries: make(map[string][][]byte)}
}

func (f *fakeRouter) DeliverLocal(room string, payload []byte) int {
	f.deliveries[room] = append(f.deliveries[room], payload)
	return 1
}

func TestPublishRejectedWhenBusNotReady(t *testing.T) {
	b := New(nil, newFakeRouter())

	err := b.Publish(context.Background(), domain.ChatEvent{Room: "AAAA01", Content: "hi"})
	assert.ErrorIs(t, err, ErrBusUnavailable)
	assert.False(t, b.Ready())
}

func TestHandlePayloadRelaysRemoteEvent(t *testing.T) {
	router := newFakeRouter()
	b := New(nil, router)

	ev := domain.ChatEvent{
		Room:           "AAAA01",
		User:           "bob",
		Content:        "hello from afar",
		Time:           time.Now().UTC(),
		OriginInstance: "other-instance",
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	b.handlePayload("room:AAAA01", payload)

	require.Len(t, router.deliveries["AAAA01"], 1)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(router.deliveries["AAAA01"][0], &frame))
	assert.Equal(t, "chat", frame["type"])
	assert.Equal(t, "AAAA01", frame["room"])
	assert.Equal(t, "bob", frame["user"])
	assert.Equal(t, "hello from afar", frame["content"])
	// 实例标记只在总线上传输，不出现在客户端帧里
	assert.NotContains(t, frame, "instance_id")
}

func TestHandlePayloadDropsOwnEcho(t *testing.T) {
	router := newFakeRouter()
	b := New(nil, router)

	ev := domain.ChatEvent{
		Room:           "AAAA01",
		User:           "alice",
		Content:        "hello",
		OriginInstance: b.InstanceID(),
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	b.handlePayload("room:AAAA01", payload)
	assert.Empty(t, router.deliveries, "来自本实例的回声不应二次投递")
}

func TestHandlePayloadToleratesMalformedPayload(t *testing.T) {
	router := newFakeRouter()
	b := New(nil, router)

	b.handlePayload("room:AAAA01", []byte(`{broken`))
	assert.Empty(t, router.deliveries)
}

func TestHandlePayloadFallsBackToChannelRoom(t *testing.T) {
	router := newFakeRouter()
	b := New(nil, router)

	payload, err := json.Marshal(domain.ChatEvent{User: "bob", Content: "hi", OriginInstance: "other"})
	require.NoError(t, err)

	b.handlePayload("room:BBBB02", payload)
	require.Len(t, router.deliveries["BBBB02"], 1)
}

func TestInstanceIDIsUniquePerBridge(t *testing.T) {
	a := New(nil, newFakeRouter())
	b := New(nil, newFakeRouter())
	assert.NotEqual(t, a.InstanceID(), b.InstanceID())
	assert.NotEmpty(t, a.InstanceID())
}

func TestRunWithoutClientReturnsImmediately(t *testing.T) {
	b := New(nil, newFakeRouter())

	done := make(chan struct{})
	go func() {
		b.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("无总线配置时 Run 应立即返回")
	}
}
