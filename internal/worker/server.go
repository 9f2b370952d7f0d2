package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Arham-Tahir64/chitty/internal/presence"
	"github.com/Arham-Tahir64/chitty/internal/service"
	"github.com/Arham-Tahir64/chitty/internal/tasks"
)

// WorkerServer 封装 asynq Worker 的启动和关闭。
type WorkerServer struct {
	server         *asynq.Server
	scheduler      *asynq.Scheduler
	log            *logrus.Entry
	messageService *service.MessageService
	tracker        *presence.Tracker
}

// NewWorkerServer 创建 WorkerServer 实例。
// reconcileSpec 是在线状态续期任务的 cron 表达式，如 "@every 30s"。
func NewWorkerServer(redisOpt asynq.RedisClientOpt, messageService *service.MessageService, tracker *presence.Tracker, reconcileSpec string) *WorkerServer {
	logEntry := logrus.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register(reconcileSpec, tasks.NewPresenceReconcileTask()); err != nil {
		logEntry.WithError(err).Fatal("Failed to register presence reconcile schedule")
	}

	return &WorkerServer{
		server:         server,
		scheduler:      scheduler,
		log:            logEntry,
		messageService: messageService,
		tracker:        tracker,
	}
}

// Start 运行 Worker 和调度器，应在独立协程中调用。
func (ws *WorkerServer) Start() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeMessagePersist, NewMessagePersistHandler(ws.messageService).ProcessTask)
	mux.HandleFunc(tasks.TypePresenceReconcile, NewPresenceReconcileHandler(ws.tracker).ProcessTask)

	go func() {
		if err := ws.scheduler.Run(); err != nil {
			ws.log.WithError(err).Error("Scheduler stopped unexpectedly")
		}
	}()

	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(mux); err != nil {
		if !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		}
		ws.log.Info("Worker server stopped.")
	}
}

// Shutdown 停止 Worker 和调度器。
func (ws *WorkerServer) Shutdown() {
	ws.scheduler.Shutdown()
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down")
}
