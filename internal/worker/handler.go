package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Arham-Tahir64/chitty/internal/presence"
	"github.com/Arham-Tahir64/chitty/internal/service"
	"github.com/Arham-Tahir64/chitty/internal/tasks"
)

// MessagePersistHandler 处理消息落库任务。
type MessagePersistHandler struct {
	messageService *service.MessageService
}

func NewMessagePersistHandler(messageService *service.MessageService) *MessagePersistHandler {
	if messageService == nil {
		panic("MessageService cannot be nil for MessagePersistHandler")
	}
	return &MessagePersistHandler{messageService: messageService}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *MessagePersistHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	retryCount, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"component": "worker",
		"task_type": t.Type(),
		"retry":     retryCount,
	})

	var payload tasks.MessagePersistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal persist payload")
		// 载荷坏了重试也无济于事
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.messageService.PersistNow(ctx, payload); err != nil {
		logCtx.WithError(err).WithField("room", payload.Room).Error("Failed to persist message")
		return fmt.Errorf("failed to persist message in room %s: %w", payload.Room, err)
	}

	logCtx.WithField("room", payload.Room).Debug("Message persisted")
	return nil
}

// PresenceReconcileHandler 续期本实例在线用户的 Redis 标记。
// 周期性执行，避免用户标记因 TTL 到期而被误判下线。
type PresenceReconcileHandler struct {
	tracker *presence.Tracker
}

func NewPresenceReconcileHandler(tracker *presence.Tracker) *PresenceReconcileHandler {
	if tracker == nil {
		panic("presence tracker cannot be nil for PresenceReconcileHandler")
	}
	return &PresenceReconcileHandler{tracker: tracker}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *PresenceReconcileHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if err := h.tracker.Reconcile(ctx); err != nil {
		logrus.WithError(err).WithField("component", "worker").Warn("Presence reconcile failed")
		return err
	}
	return nil
}
