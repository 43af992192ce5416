package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/internal/metrics"
	"contentstudio/internal/persistence"
	"contentstudio/internal/platform"
	"contentstudio/internal/visual"
	"contentstudio/internal/workflow"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// StatusWriter 发布终态写入
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id string, update persistence.StatusUpdate) (*workflow.IdeaRecord, error)
}

// PlaceholderSource 模板图片占位符顺序
type PlaceholderSource interface {
	PlaceholderOrder(ctx context.Context, templateID string) ([]string, error)
}

// Dispatcher 按格式、平台扇出发布，单个组合失败不影响其余组合
type Dispatcher struct {
	registry    *platform.Registry
	connections platform.ConnectionStore
	authorizer  *platform.Authorizer
	records     StatusWriter
	logs        LogStore
	slots       PlaceholderSource
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option 配置项
type Option func(*Dispatcher)

// WithLogStore 写入发布日志
func WithLogStore(s LogStore) Option {
	return func(d *Dispatcher) { d.logs = s }
}

// WithPlaceholderSource 按模板占位符顺序解析媒体
func WithPlaceholderSource(s PlaceholderSource) Option {
	return func(d *Dispatcher) { d.slots = s }
}

// WithAuthorizer 使用共享的令牌会话
func WithAuthorizer(a *platform.Authorizer) Option {
	return func(d *Dispatcher) { d.authorizer = a }
}

// NewDispatcher 创建发布调度器
func NewDispatcher(registry *platform.Registry, connections platform.ConnectionStore, records StatusWriter, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		registry:    registry,
		connections: connections,
		records:     records,
		logger:      logger,
		tracer:      otel.Tracer("contentstudio/internal/publish"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.authorizer == nil {
		d.authorizer = platform.NewAuthorizer(nil, connections, logger)
	}
	return d
}

// Publish 进入 publish 步骤并尝试全部启用的组合
// 定时发布只记录 scheduled 状态，由后台任务到期后再次调用
func (d *Dispatcher) Publish(ctx context.Context, c *workflow.Container, req Request) (*Summary, error) {
	ctx, span := d.tracer.Start(ctx, "publish.Publish")
	defer span.End()
	span.SetAttributes(attribute.String("idea_id", c.ID()))

	if err := c.GoTo(workflow.StepPublish); err != nil {
		return nil, err
	}

	summary := &Summary{IdeaID: c.ID()}
	if req.ScheduledAt != nil && req.ScheduledAt.After(d.now()) {
		at := *req.ScheduledAt
		if err := c.CompletePublish(workflow.StatusScheduled, nil, &at); err != nil {
			return nil, err
		}
		summary.ScheduledAt = &at
		summary.Status = d.finish(ctx, c)
		d.logger.Info("发布已排期", zap.String("idea_id", c.ID()), zap.Time("scheduled_at", at))
		return summary, nil
	}

	var posts []workflow.PostRecord
	for _, plan := range c.Plans() {
		for _, res := range d.publishFormat(ctx, c, plan, req.Flags) {
			summary.add(res)
			if res.Outcome == OutcomeSucceeded {
				posts = append(posts, workflow.PostRecord{
					Format:   res.Format,
					Platform: res.Platform,
					PostID:   res.PostID,
					URL:      res.URL,
					PostedAt: *res.PostedAt,
				})
			}
		}
	}

	var outcome workflow.Status
	if summary.Succeeded > 0 {
		outcome = workflow.StatusPosted
	}
	if err := c.CompletePublish(outcome, posts, nil); err != nil {
		return nil, err
	}
	summary.Status = d.finish(ctx, c)
	d.appendLogs(ctx, summary)

	span.SetAttributes(
		attribute.Int("succeeded", summary.Succeeded),
		attribute.Int("failed", summary.Failed),
		attribute.Int("skipped", summary.Skipped),
	)
	if summary.Failed > 0 {
		span.SetStatus(codes.Error, "partial failure")
	}
	d.logger.Info("发布完成",
		zap.String("idea_id", c.ID()),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

// finish 写入终态；写入失败只记录日志
func (d *Dispatcher) finish(ctx context.Context, c *workflow.Container) workflow.Status {
	rec := c.Snapshot()
	if d.records != nil {
		_, err := d.records.UpdateStatus(ctx, rec.ID, persistence.StatusUpdate{
			Status:         rec.Status,
			PublishOutcome: rec.PublishOutcome,
			ScheduledAt:    rec.ScheduledAt,
			Posts:          rec.Posts,
		})
		if err != nil {
			d.logger.Error("写入发布状态失败",
				zap.String("idea_id", rec.ID),
				zap.Error(&persistence.PersistenceError{IdeaID: rec.ID, Err: err}))
		}
	}
	return rec.Status
}

func (d *Dispatcher) publishFormat(ctx context.Context, c *workflow.Container, plan workflow.FormatPlan, flags Flags) []Result {
	desc, ok := catalog.Get(plan.Format)
	if !ok {
		return nil
	}
	var enabled []catalog.PlatformID
	for _, p := range desc.Platforms {
		if flags.Enabled(plan.Format, p) {
			enabled = append(enabled, p)
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	post, verr := d.buildPost(ctx, c, desc, plan)
	results := make([]Result, 0, len(enabled))
	for _, p := range enabled {
		if err := ctx.Err(); err != nil {
			results = append(results, failed(plan.Format, p, err))
			continue
		}
		if verr != nil {
			results = append(results, failed(plan.Format, p, verr))
			continue
		}
		results = append(results, d.publishOne(ctx, plan.Format, p, post))
	}
	return results
}

// buildPost 解析正文、话题标签与最终媒体
func (d *Dispatcher) buildPost(ctx context.Context, c *workflow.Container, desc catalog.Descriptor, plan workflow.FormatPlan) (*platform.Post, error) {
	generated, ok := c.Content(plan.Format)
	if !ok {
		return nil, &ValidationError{Format: plan.Format, Problems: []string{"尚未生成文案"}}
	}

	var order []string
	if d.slots != nil && plan.TemplateID != "" {
		ids, err := d.slots.PlaceholderOrder(ctx, plan.TemplateID)
		if err != nil {
			d.logger.Warn("读取模板占位符失败，按 ID 排序", zap.String("template_id", plan.TemplateID), zap.Error(err))
		}
		order = ids
	}
	media := visual.ResolveMedia(c.Snapshot(), plan.Format, order)
	if desc.NeedsVisuals() && len(media) == 0 {
		return nil, &ValidationError{Format: plan.Format, Problems: []string{"该格式需要视觉素材，但没有可用媒体"}}
	}

	post := &platform.Post{
		Format:   plan.Format,
		Text:     generated.Body(),
		Hashtags: content.NormalizeHashtags(generated.Tags()),
		Media:    media,
	}
	if thread, ok := generated.(*content.Thread); ok {
		post.Parts = append([]string(nil), thread.Tweets...)
	}
	return post, nil
}

func (d *Dispatcher) publishOne(ctx context.Context, format catalog.FormatID, p catalog.PlatformID, post *platform.Post) Result {
	adapter, err := d.registry.Get(p)
	if err != nil {
		return failed(format, p, err)
	}

	conn, err := d.connections.Find(ctx, p, true)
	if err != nil {
		if errors.Is(err, platform.ErrConnectionNotFound) {
			return Result{Format: format, Platform: p, Outcome: OutcomeSkipped, Reason: "未连接平台账号"}
		}
		return failed(format, p, err)
	}

	conn, err = d.authorizer.Authorize(ctx, adapter, conn)
	if err != nil {
		return failed(format, p, err)
	}

	check := adapter.ValidateContent(post)
	if !check.Valid {
		res := failed(format, p, &ValidationError{Format: format, Platform: p, Problems: check.Errors})
		res.Warnings = check.Warnings
		return res
	}

	var posted *platform.PostResult
	err = metrics.RecordPublish(string(p), func() error {
		r, err := adapter.Post(ctx, conn, post)
		if err == nil && r == nil {
			return ErrEmptyPostResult
		}
		posted = r
		return err
	})
	if err != nil {
		d.logger.Warn("平台发布失败",
			zap.String("format", string(format)),
			zap.String("platform", string(p)),
			zap.Error(err))
		res := failed(format, p, &PublishError{Format: format, Platform: p, Err: err})
		res.Warnings = check.Warnings
		return res
	}

	at := posted.PostedAt
	return Result{
		Format:   format,
		Platform: p,
		Outcome:  OutcomeSucceeded,
		PostID:   posted.PostID,
		URL:      posted.URL,
		PostedAt: &at,
		Warnings: check.Warnings,
	}
}

func failed(format catalog.FormatID, p catalog.PlatformID, err error) Result {
	return Result{Format: format, Platform: p, Outcome: OutcomeFailed, Reason: err.Error(), Err: err}
}

func (d *Dispatcher) appendLogs(ctx context.Context, s *Summary) {
	if d.logs == nil || len(s.Results) == 0 {
		return
	}
	entries := make([]LogEntry, 0, len(s.Results))
	for _, r := range s.Results {
		entries = append(entries, LogEntry{
			IdeaID:   s.IdeaID,
			Format:   r.Format,
			Platform: r.Platform,
			Outcome:  r.Outcome,
			PostID:   r.PostID,
			URL:      r.URL,
			Reason:   r.Reason,
		})
	}
	if err := d.logs.Append(ctx, entries); err != nil {
		d.logger.Warn("写入发布日志失败", zap.String("idea_id", s.IdeaID), zap.Error(err))
	}
}

// Status 查询已发布帖子的状态
func (d *Dispatcher) Status(ctx context.Context, p catalog.PlatformID, postID string) (*platform.PostStatus, error) {
	adapter, conn, err := d.connect(ctx, p)
	if err != nil {
		return nil, err
	}
	return adapter.GetPostStatus(ctx, conn, postID)
}

// Delete 删除已发布帖子；平台不支持时返回 CapabilityError
func (d *Dispatcher) Delete(ctx context.Context, p catalog.PlatformID, postID string) (bool, error) {
	adapter, conn, err := d.connect(ctx, p)
	if err != nil {
		return false, err
	}
	return adapter.DeletePost(ctx, conn, postID)
}

func (d *Dispatcher) connect(ctx context.Context, p catalog.PlatformID) (platform.Adapter, *platform.Connection, error) {
	adapter, err := d.registry.Get(p)
	if err != nil {
		return nil, nil, err
	}
	conn, err := d.connections.Find(ctx, p, true)
	if err != nil {
		return nil, nil, err
	}
	conn, err = d.authorizer.Authorize(ctx, adapter, conn)
	if err != nil {
		return nil, nil, fmt.Errorf("平台 %s 授权失败: %w", p, err)
	}
	return adapter, conn, nil
}
