package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"contentstudio/internal/metrics"
	"contentstudio/internal/publish"
	"contentstudio/internal/studio"
	"contentstudio/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// StudioRunner 会话服务中供后台任务调用的部分，便于注入 mock
type StudioRunner interface {
	RunGenerate(ctx context.Context, ideaID string) error
	RunPublish(ctx context.Context, ideaID string, flags publish.Flags) error
}

type StudioHandler struct {
	runner StudioRunner
	logger *zap.Logger
}

func NewStudioHandler(runner StudioRunner, logger *zap.Logger) *StudioHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudioHandler{
		runner: runner,
		logger: logger,
	}
}

func (h *StudioHandler) HandleGenerate(ctx context.Context, t *asynq.Task) error {
	var p tasks.GeneratePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return h.reject(t, fmt.Errorf("json unmarshal failed: %w: %w", err, asynq.SkipRetry))
	}

	h.logger.Info("开始后台生成", zap.String("idea_id", p.IdeaID))
	err := h.runner.RunGenerate(ctx, p.IdeaID)
	return h.finish(t, p.IdeaID, err)
}

func (h *StudioHandler) HandlePublish(ctx context.Context, t *asynq.Task) error {
	var p tasks.PublishPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return h.reject(t, fmt.Errorf("json unmarshal failed: %w: %w", err, asynq.SkipRetry))
	}

	h.logger.Info("开始定时发布", zap.String("idea_id", p.IdeaID))
	err := h.runner.RunPublish(ctx, p.IdeaID, p.Flags)
	return h.finish(t, p.IdeaID, err)
}

func (h *StudioHandler) finish(t *asynq.Task, ideaID string, err error) error {
	if err == nil {
		metrics.WorkerTasksTotal.WithLabelValues(t.Type(), "success").Inc()
		h.logger.Info("后台任务完成", zap.String("type", t.Type()), zap.String("idea_id", ideaID))
		return nil
	}
	// 想法已删除时重试没有意义
	if errors.Is(err, studio.ErrSessionNotFound) {
		err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	metrics.WorkerTasksTotal.WithLabelValues(t.Type(), "failed").Inc()
	h.logger.Error("后台任务失败",
		zap.String("type", t.Type()),
		zap.String("idea_id", ideaID),
		zap.Error(err),
	)
	return err
}

func (h *StudioHandler) reject(t *asynq.Task, err error) error {
	metrics.WorkerTasksTotal.WithLabelValues(t.Type(), "invalid").Inc()
	h.logger.Error("任务载荷无效", zap.String("type", t.Type()), zap.Error(err))
	return err
}
