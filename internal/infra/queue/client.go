package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contentstudio/internal/publish"
	"contentstudio/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// enqueuer asynq.Client 中用到的部分
type enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// inspector asynq.Inspector 中用到的部分
type inspector interface {
	DeleteTask(queue, id string) error
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// Client 会话后台任务投递，实现 studio.Scheduler
type Client struct {
	client    enqueuer
	inspector inspector
	logger    *zap.Logger
}

// NewClient 创建任务队列客户端
func NewClient(opt asynq.RedisConnOpt, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		logger:    logger,
	}
}

// EnqueueGenerate 投递整体生成任务
func (c *Client) EnqueueGenerate(ideaID string) error {
	payload, err := json.Marshal(tasks.GeneratePayload{IdeaID: ideaID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	// 生成可能调用多次模型，超时放宽
	info, err := c.client.Enqueue(asynq.NewTask(tasks.TypeGenerate, payload),
		asynq.MaxRetry(2),
		asynq.Timeout(15*time.Minute),
		asynq.Queue(tasks.QueueGenerate),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	c.logger.Info("已投递生成任务", zap.String("idea_id", ideaID), zap.String("task_id", info.ID))
	return nil
}

// EnqueuePublish 投递到期执行的发布任务，替换该想法之前的定时发布
func (c *Client) EnqueuePublish(ideaID string, req publish.Request, at time.Time) error {
	payload, err := json.Marshal(tasks.PublishPayload{IdeaID: ideaID, Flags: req.Flags})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	id := tasks.PublishTaskID(ideaID)
	if c.inspector != nil {
		if err := c.inspector.DeleteTask(tasks.QueuePublish, id); err != nil &&
			!errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			return fmt.Errorf("remove previous publish task failed: %w", err)
		}
	}

	info, err := c.client.Enqueue(asynq.NewTask(tasks.TypePublish, payload),
		asynq.TaskID(id),
		asynq.ProcessAt(at),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(tasks.QueuePublish),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	c.logger.Info("已投递定时发布任务",
		zap.String("idea_id", ideaID),
		zap.String("task_id", info.ID),
		zap.Time("process_at", at),
	)
	return nil
}

// CancelPublish 取消想法的定时发布
func (c *Client) CancelPublish(ideaID string) error {
	if c.inspector == nil {
		return nil
	}
	err := c.inspector.DeleteTask(tasks.QueuePublish, tasks.PublishTaskID(ideaID))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

// QueueStats 队列统计
type QueueStats struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Paused    bool   `json:"paused"`
}

// Stats 各队列的当前统计
func (c *Client) Stats() ([]QueueStats, error) {
	if c.inspector == nil {
		return nil, nil
	}
	names, err := c.inspector.Queues()
	if err != nil {
		return nil, err
	}
	out := make([]QueueStats, 0, len(names))
	for _, name := range names {
		info, err := c.inspector.GetQueueInfo(name)
		if err != nil {
			return nil, err
		}
		out = append(out, QueueStats{
			Queue:     info.Queue,
			Size:      info.Size,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Processed: info.Processed,
			Failed:    info.Failed,
			Paused:    info.Paused,
		})
	}
	return out, nil
}

func (c *Client) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	errs = append(errs, c.client.Close())
	return errors.Join(errs...)
}
