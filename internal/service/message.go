package service

import (
	"context"
	"time"

	"github.com/Arham-Tahir64/chitty/internal/domain"
	"github.com/Arham-Tahir64/chitty/internal/history"
	"github.com/Arham-Tahir64/chitty/internal/repository"
	"github.com/Arham-Tahir64/chitty/internal/tasks"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const persistTimeout = 5 * time.Second

// MessageService 负责消息的异步落库和历史查询。
// 落库与投递解耦：正常路径走 asynq 任务队列，队列不可用时
// 退化为进程内协程直写数据库，两条路都不会阻塞消息投递。
type MessageService struct {
	messageRepo repository.MessageRepository
	cache       *history.Cache
	asynqClient *asynq.Client // 可为 nil，此时全部走直写
}

// NewMessageService 创建 MessageService 实例。
func NewMessageService(messageRepo repository.MessageRepository, cache *history.Cache, asynqClient *asynq.Client) *MessageService {
	if messageRepo == nil {
		panic("MessageRepository cannot be nil for MessageService")
	}
	if cache == nil {
		panic("history cache cannot be nil for MessageService")
	}
	return &MessageService{
		messageRepo: messageRepo,
		cache:       cache,
		asynqClient: asynqClient,
	}
}

// PersistAsync 异步持久化一条消息，立即返回。
// 入队本身是一次 Redis 往返，和直写一样放在后台协程里执行，
// Redis 卡顿时调用方（投递路径）不受影响。
// 入队失败降级为直写，直写再失败只记日志，消息此时已完成投递。
func (s *MessageService) PersistAsync(ev domain.ChatEvent, senderID uint) {
	payload := tasks.MessagePersistPayload{
		Room:     ev.Room,
		SenderID: senderID,
		Content:  ev.Content,
		SentAt:   ev.Time,
	}

	go func() {
		if s.asynqClient != nil {
			task, err := tasks.NewMessagePersistTask(payload)
			if err == nil {
				if _, err = s.asynqClient.Enqueue(task); err == nil {
					return
				}
			}
			logrus.WithError(err).WithField("room", payload.Room).Warn("Failed to enqueue persist task, falling back to direct write")
		}

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.PersistNow(ctx, payload); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"room":      payload.Room,
				"sender_id": payload.SenderID,
			}).Error("Failed to persist message")
		}
	}()
}

// PersistNow 同步写库，asynq worker 的任务处理函数也调用它。
func (s *MessageService) PersistNow(ctx context.Context, p tasks.MessagePersistPayload) error {
	msg := &domain.Message{
		Room:      p.Room,
		SenderID:  p.SenderID,
		Content:   p.Content,
		CreatedAt: p.SentAt,
	}
	return s.messageRepo.Save(ctx, msg)
}

// History 返回房间的近期消息，从旧到新。
// 缓存命中直接返回；本实例缓存为空时回源数据库，
// 保证进程重启后加入者仍能看到历史。
func (s *MessageService) History(ctx context.Context, room string, limit int) ([]domain.HistoryEntry, error) {
	if entries := s.cache.Recent(room, limit); len(entries) > 0 {
		return entries, nil
	}

	entries, err := s.messageRepo.RecentByRoom(ctx, room, limit)
	if err != nil {
		logrus.WithError(err).WithField("room", room).Error("Failed to load history from store")
		return nil, ErrInternalServer
	}
	return entries, nil
}
