package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/Arham-Tahir64/chitty/internal/hub"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// 房间频道前缀，每个房间一个频道
	channelPrefix = "room:"

	// 重连退避的起点与上限
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// ErrBusUnavailable 表示总线当前不可用，调用方降级为本地投递。
var ErrBusUnavailable = errors.New("bridge: bus unavailable")

// LocalRouter 把帧投递给本实例的房间成员。
type LocalRouter interface {
	DeliverLocal(room string, payload []byte) int
}

// Bridge 通过 Redis pub/sub 在实例间转发聊天事件。
// 每个进程持有随机实例 ID，发布时盖戳，消费时丢弃自己的回声。
// 订阅成功之前 Publish 一律拒绝，保证不会发出自己收不到的事件。
type Bridge struct {
	client     *redis.Client
	router     LocalRouter
	instanceID string

	ready atomic.Bool
}

// New 创建 Bridge。client 传 nil 时总线停用，进程以单实例模式运行。
func New(client *redis.Client, router LocalRouter) *Bridge {
	if router == nil {
		panic("bridge: local router is required")
	}
	return &Bridge{
		client:     client,
		router:     router,
		instanceID: uuid.NewString(),
	}
}

func (b *Bridge) InstanceID() string {
	return b.instanceID
}

// Ready 报告订阅是否就绪。
func (b *Bridge) Ready() bool {
	return b.ready.Load()
}

// Publish 把事件发布到房间频道，发布前盖上本实例的 ID。
// 订阅未就绪时返回 ErrBusUnavailable，消息仍然完成了本地投递。
func (b *Bridge) Publish(ctx context.Context, ev domain.ChatEvent) error {
	if !b.ready.Load() {
		return ErrBusUnavailable
	}
	ev.OriginInstance = b.instanceID
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+ev.Room, payload).Err()
}

// Run 维持对 room:* 的模式订阅直到 ctx 取消。
// 订阅断开后指数退避重连，期间 Publish 被拒绝，投递退化为本地。
func (b *Bridge) Run(ctx context.Context) {
	if b.client == nil {
		logrus.WithField("component", "bridge").Warn("Bus disabled, running in single-instance mode")
		return
	}

	backoff := initialBackoff
	for {
		wasReady := b.ready.Load()
		err := b.consume(ctx)
		b.ready.Store(false)
		if ctx.Err() != nil {
			return
		}
		if wasReady {
			backoff = initialBackoff
		}
		logrus.WithFields(logrus.Fields{
			"component": "bridge",
			"error":     err.Error(),
			"backoff":   backoff.String(),
		}).Warn("Bus subscription lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (b *Bridge) consume(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	// 等到订阅确认才放行 Publish
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.ready.Store(true)
	logrus.WithFields(logrus.Fields{
		"component":   "bridge",
		"instance_id": b.instanceID,
	}).Info("Subscribed to room channels")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			b.handlePayload(msg.Channel, []byte(msg.Payload))
		}
	}
}

// handlePayload 消费一条总线消息并转投给本地成员。
// 自己发布的事件按实例 ID 丢弃，坏载荷只记日志不中断订阅。
// 远端事件不写本地历史缓存，历史以事件源头实例的缓存为准。
func (b *Bridge) handlePayload(channel string, payload []byte) {
	var ev domain.ChatEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "bridge",
			"channel":   channel,
		}).Warn("Discarding malformed bus payload")
		return
	}
	if ev.OriginInstance == b.instanceID {
		return
	}
	if ev.Room == "" {
		ev.Room = strings.TrimPrefix(channel, channelPrefix)
	}

	frame, err := hub.ChatFrame(ev)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "bridge",
			"room":      ev.Room,
			"error":     err.Error(),
		}).Error("Failed to encode relayed frame")
		return
	}
	delivered := b.router.DeliverLocal(ev.Room, frame)
	logrus.WithFields(logrus.Fields{
		"component": "bridge",
		"room":      ev.Room,
		"delivered": delivered,
	}).Debug("Relayed remote chat event")
}
