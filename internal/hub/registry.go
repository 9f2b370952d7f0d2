package hub

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry 维护本实例的连接与房间归属。
// 单把读写锁保护两张映射，换房间的摘除与挂接因此是原子的，
// 连接不会被同一条广播命中两次。
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]bool
	byConn map[*Client]string

	onRoomEmpty func(room string)
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[*Client]bool),
		byConn: make(map[*Client]string),
	}
}

// OnRoomEmpty 注册房间本地清空时的回调，用于释放房间级资源。
// 必须在并发使用 Registry 之前设置。
func (r *Registry) OnRoomEmpty(fn func(room string)) {
	r.onRoomEmpty = fn
}

// Move 把连接挂到目标房间，如有旧房间先原子地摘除。
// 首次加入与切换房间走同一条路径。
func (r *Registry) Move(c *Client, room string) {
	var emptied string

	r.mu.Lock()
	if old, ok := r.byConn[c]; ok {
		delete(r.rooms[old], c)
		if len(r.rooms[old]) == 0 {
			delete(r.rooms, old)
			emptied = old
		}
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[*Client]bool)
	}
	r.rooms[room][c] = true
	r.byConn[c] = room
	r.mu.Unlock()

	if emptied != "" && emptied != room && r.onRoomEmpty != nil {
		r.onRoomEmpty(emptied)
	}
}

// Unregister 把连接从注册表中移除，重复调用是无害的空操作。
// 返回是否实际发生了移除。
func (r *Registry) Unregister(c *Client) bool {
	var emptied string

	r.mu.Lock()
	room, ok := r.byConn[c]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.rooms[room], c)
	if len(r.rooms[room]) == 0 {
		delete(r.rooms, room)
		emptied = room
	}
	delete(r.byConn, c)
	r.mu.Unlock()

	if emptied != "" && r.onRoomEmpty != nil {
		r.onRoomEmpty(emptied)
	}
	return true
}

// RoomOf 返回连接当前所在的房间。
func (r *Registry) RoomOf(c *Client) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.byConn[c]
	return room, ok
}

// MembersOf 返回房间成员的快照。
func (r *Registry) MembersOf(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]*Client, 0, len(r.rooms[room]))
	for c := range r.rooms[room] {
		members = append(members, c)
	}
	return members
}

// Rooms 返回本地有成员的房间数，只用于日志与探活。
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// DeliverLocal 把帧投递给房间的本地成员，返回成功投递的条数。
// 投递失败累计到阈值的连接判定为死亡，交给后台异步清理，
// 不在投递路径上持写锁摘除。
func (r *Registry) DeliverLocal(room string, payload []byte) int {
	members := r.MembersOf(room)

	var delivered int
	var dead []*Client
	for _, c := range members {
		if c.trySend(payload) {
			delivered++
		} else if c.dead() {
			dead = append(dead, c)
		}
	}

	if len(dead) > 0 {
		go func() {
			for _, c := range dead {
				logrus.WithFields(logrus.Fields{
					"component": "hub",
					"room":      room,
					"user_id":   c.identity.ID,
				}).Warn("Evicting unresponsive client")
				c.depart()
			}
		}()
	}
	return delivered
}
