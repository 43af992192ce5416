package worker

import (
	"context"

	"contentstudio/internal/config"
	"contentstudio/internal/worker/handlers"
	"contentstudio/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

func NewServer(
	redisOpt asynq.RedisConnOpt,
	cfg config.WorkerConfig,
	runner handlers.StudioRunner,
	logger *zap.Logger,
) *Server {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = map[string]int{
			tasks.QueueGenerate: 6,
			tasks.QueuePublish:  3,
			"default":           1,
		}
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("任务执行失败",
				zap.String("type", task.Type()),
				zap.Int("retried", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err),
			)
		}),
	})

	return &Server{
		server: srv,
		mux:    NewMux(runner, logger),
		logger: logger,
	}
}

// NewMux 注册会话相关任务的处理器
func NewMux(runner handlers.StudioRunner, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	h := handlers.NewStudioHandler(runner, logger)
	mux.HandleFunc(tasks.TypeGenerate, h.HandleGenerate)
	mux.HandleFunc(tasks.TypePublish, h.HandlePublish)
	return mux
}

// Run 启动 Worker 服务器
func (s *Server) Run() error {
	s.logger.Info("Worker 服务器启动中...")
	return s.server.Run(s.mux)
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.server.Shutdown()
}
