// Package history 实现每个房间的有界最近消息缓存。
// 缓存只是最近消息的快照，数据库才是历史的权威来源：
// 缓存未命中时调用方应回退到 MessageRepository。
package history

import (
	"sync"

	"github.com/Arham-Tahir64/chitty/internal/domain"
)

// DefaultCapacity 是每个房间缓存的默认容量。
const DefaultCapacity = 500

// Cache 是按房间分桶的有界历史缓存。
// 外层锁只保护房间 map；每个房间持有自己的锁，
// 不同房间的读写互不阻塞。
type Cache struct {
	mu       sync.RWMutex
	rooms    map[string]*roomBuffer
	capacity int
}

// roomBuffer 是单个房间的定长缓冲。
// 超出容量时从头部淘汰最旧的条目（FIFO，类似 Redis LTRIM）。
type roomBuffer struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

// NewCache 创建一个 Cache。capacity <= 0 时使用 DefaultCapacity。
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		rooms:    make(map[string]*roomBuffer),
		capacity: capacity,
	}
}

// Append 追加一条历史到指定房间的缓冲尾部，必要时淘汰最旧的条目。
// 这是缓存唯一的写入口。
func (c *Cache) Append(room string, entry domain.HistoryEntry) {
	buf := c.bufferFor(room, true)

	buf.mu.Lock()
	// 时间戳在锁外捕获，并发的追加可能乱序到达；
	// 夹紧到尾部时间戳，缓冲内保持单调不减
	if n := len(buf.entries); n > 0 && entry.CreatedAt.Before(buf.entries[n-1].CreatedAt) {
		entry.CreatedAt = buf.entries[n-1].CreatedAt
	}
	buf.entries = append(buf.entries, entry)
	if len(buf.entries) > c.capacity {
		// 淘汰头部并整体前移，避免底层数组无限增长
		n := copy(buf.entries, buf.entries[len(buf.entries)-c.capacity:])
		buf.entries = buf.entries[:n]
	}
	buf.mu.Unlock()
}

// Recent 返回指定房间最近 limit 条历史的快照，最旧在前。
// 返回的切片是副本，后续 Append 不会影响它。
// 房间在本实例没有缓存时返回空切片，调用方应回退到数据库。
func (c *Cache) Recent(room string, limit int) []domain.HistoryEntry {
	buf := c.bufferFor(room, false)
	if buf == nil {
		return nil
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	n := len(buf.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.HistoryEntry, limit)
	copy(out, buf.entries[n-limit:])
	return out
}

// Len 返回指定房间当前缓存的条目数。
func (c *Cache) Len(room string) int {
	buf := c.bufferFor(room, false)
	if buf == nil {
		return 0
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return len(buf.entries)
}

// Drop 丢弃指定房间的缓冲。
// 房间的本地成员清空后由 Registry 的回收钩子调用，
// 防止大量短命房间的缓冲无限堆积。
func (c *Cache) Drop(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// bufferFor 返回房间对应的缓冲。create 为 true 时按需创建。
func (c *Cache) bufferFor(room string, create bool) *roomBuffer {
	c.mu.RLock()
	buf, ok := c.rooms[room]
	c.mu.RUnlock()
	if ok || !create {
		return buf
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if buf, ok = c.rooms[room]; ok {
		return buf
	}
	buf = &roomBuffer{entries: make([]domain.HistoryEntry, 0, 64)}
	c.rooms[room] = buf
	return buf
}
