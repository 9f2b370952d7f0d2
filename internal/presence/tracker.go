// Package presence 跟踪当前在线的用户身份。
//
// 本地集合只反映连到本实例的连接，是本实例的权威视图；
// 多实例部署下通过 Redis 中带 TTL 的 per-user key 聚合成
// "在任意实例在线" 的视图。Redis 镜像是尽力而为的：
// 写入失败只记日志，本地视图不受影响。
package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// onlineTTL 是 Redis 在线标记的存活时间。
	// 必须大于 Reconcile 的刷新周期，实例崩溃后标记最多存活一个 TTL。
	onlineTTL = 90 * time.Second
)

// Tracker 维护本实例的在线用户集合。
type Tracker struct {
	mu     sync.Mutex
	local  map[uint]int // user id -> 本实例存活连接数

	client    *redis.Client // 可为 nil（纯本地模式，单实例部署/测试）
	keyPrefix string
}

// NewTracker 创建 Tracker。client 为 nil 时跳过所有 Redis 镜像操作。
func NewTracker(client *redis.Client, keyPrefix string) *Tracker {
	return &Tracker{
		local:     make(map[uint]int),
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (t *Tracker) onlineKey(userID uint) string {
	return fmt.Sprintf("%spresence:user:%d", t.keyPrefix, userID)
}

// Connect 记录用户的一条新连接。
// 同一用户可以有多条并发连接（多标签页），按计数维护。
func (t *Tracker) Connect(ctx context.Context, userID uint) {
	t.mu.Lock()
	t.local[userID]++
	t.mu.Unlock()

	if t.client == nil {
		return
	}
	if err := t.client.Set(ctx, t.onlineKey(userID), "1", onlineTTL).Err(); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Presence: failed to mirror online flag to Redis")
	}
}

// Disconnect 记录用户的一条连接断开。
// 用户在本实例的最后一条连接断开时，尽力清除 Redis 标记；
// 该用户若仍连在其他实例上，对方的 Reconcile 会在一个刷新周期内恢复标记。
func (t *Tracker) Disconnect(ctx context.Context, userID uint) {
	t.mu.Lock()
	if n, ok := t.local[userID]; ok {
		if n <= 1 {
			delete(t.local, userID)
		} else {
			t.local[userID] = n - 1
		}
	}
	_, stillLocal := t.local[userID]
	t.mu.Unlock()

	if stillLocal || t.client == nil {
		return
	}
	if err := t.client.Del(ctx, t.onlineKey(userID)).Err(); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Presence: failed to clear online flag in Redis")
	}
}

// IsOnline 返回用户当前是否连在本实例上。
func (t *Tracker) IsOnline(userID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local[userID] > 0
}

// LocalUsers 返回当前连在本实例上的全部用户 ID。
func (t *Tracker) LocalUsers() []uint {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]uint, 0, len(t.local))
	for id := range t.local {
		ids = append(ids, id)
	}
	return ids
}

// IsOnlineAnywhere 返回用户是否连在任意实例上。
// 本地在线直接短路；否则查 Redis 标记。Redis 不可用时退化为本地视图。
func (t *Tracker) IsOnlineAnywhere(ctx context.Context, userID uint) bool {
	if t.IsOnline(userID) {
		return true
	}
	if t.client == nil {
		return false
	}
	_, err := t.client.Get(ctx, t.onlineKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.WithError(err).WithField("user_id", userID).Warn("Presence: Redis lookup failed, falling back to local view")
		}
		return false
	}
	return true
}

// Reconcile 为所有本地在线用户刷新 Redis 标记的 TTL。
// 由周期性后台任务调用，弥补 Disconnect 时的跨实例误删和偶发的写失败。
func (t *Tracker) Reconcile(ctx context.Context) error {
	if t.client == nil {
		return nil
	}
	ids := t.LocalUsers()
	if len(ids) == 0 {
		return nil
	}

	pipe := t.client.Pipeline()
	for _, id := range ids {
		pipe.Set(ctx, t.onlineKey(id), "1", onlineTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: reconcile %d users: %w", len(ids), err)
	}
	return nil
}
