package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型
const (
	TypeMessagePersist    = "message:persist"
	TypePresenceReconcile = "presence:reconcile"
)

// MessagePersistPayload 是消息落库任务的载荷。
type MessagePersistPayload struct {
	Room     string    `json:"room"`
	SenderID uint      `json:"sender_id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
}

// NewMessagePersistTask 创建消息落库任务。
func NewMessagePersistTask(p MessagePersistPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMessagePersist, payload, asynq.MaxRetry(3), asynq.Queue("default")), nil
}

// NewPresenceReconcileTask 创建在线状态续期任务，由调度器周期触发。
func NewPresenceReconcileTask() *asynq.Task {
	return asynq.NewTask(TypePresenceReconcile, nil, asynq.Queue("low"))
}
