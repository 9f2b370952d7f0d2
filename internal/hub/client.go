package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// 写操作的最长等待时间
	writeWait = 10 * time.Second

	// 距上一次 pong 的最长等待时间，超时视为连接死亡
	pongWait = 60 * time.Second

	// ping 周期，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	// 入站帧大小上限，留出内容上限之外的 JSON 包装空间
	maxMessageSize = 8192

	// 出站缓冲容量，写满即视为一次投递失败
	sendBufferSize = 256

	// 连续投递失败达到该次数后判定接收端死亡
	maxSendFailures = 3
)

// Client 代表一条已认证的 WebSocket 连接。
// 读协程串行处理该连接的全部入站意图，保证单连接内的处理顺序；
// 写协程独占底层连接的写端。
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity domain.Identity

	send chan []byte
	done chan struct{}

	closed    atomic.Bool
	sendFails int32

	closeOnce  sync.Once
	departOnce sync.Once
}

func NewClient(h *Hub, conn *websocket.Conn, identity domain.Identity) *Client {
	return &Client{
		hub:      h,
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) Identity() domain.Identity {
	return c.identity
}

// Run 启动读写协程，连接任一方向出错都会触发完整的下线清理。
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// Close 幂等地关闭连接，可以从任意协程调用。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// trySend 非阻塞投递一帧，缓冲写满时累计失败计数。
// 成功投递会清零计数，偶发的缓冲抖动不会误杀慢客户端。
func (c *Client) trySend(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		atomic.StoreInt32(&c.sendFails, 0)
		return true
	default:
		atomic.AddInt32(&c.sendFails, 1)
		return false
	}
}

// dead 判断接收端是否已无法继续投递。
func (c *Client) dead() bool {
	return c.closed.Load() || atomic.LoadInt32(&c.sendFails) >= maxSendFailures
}

// drainPending 丢弃尚未写出的帧，切换房间时调用，
// 避免新房间的成员看到旧房间的残留消息。
func (c *Client) drainPending() {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

// readPump 从连接读取入站帧并交给 Hub 处理。
// 意图在本协程内同步处理完才读下一帧，单连接的顺序由此保证。
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logrus.WithFields(logrus.Fields{
					"component": "hub",
					"user_id":   c.identity.ID,
					"error":     err.Error(),
				}).Warn("Unexpected websocket close")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.HandleFrame(c, message)
	}
}

// writePump 独占连接写端，周期性发送 ping 保活。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
