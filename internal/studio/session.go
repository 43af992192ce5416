package studio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/internal/generation"
	"contentstudio/internal/persistence"
	"contentstudio/internal/publish"
	"contentstudio/internal/workflow"

	"go.uber.org/zap"
)

// Session 一个想法的编辑会话
// 变更立即作用于内存状态，持久化由自动保存合并写入
type Session struct {
	svc    *Service
	c      *workflow.Container
	saver  *persistence.AutoSaver
	ctx    context.Context
	cancel context.CancelFunc

	// 串行化生成与发布这类长耗时操作
	opMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newSession(svc *Service, c *workflow.Container) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{svc: svc, c: c, ctx: ctx, cancel: cancel}
	s.saver = persistence.NewAutoSaver(svc.store, c.Snapshot, svc.debounce, svc.logger)
	c.Observe(s.onChange)
	return s
}

func (s *Session) onChange(ch workflow.Change) {
	s.saver.Touch()
	if ch.Op == workflow.OpStepChanged {
		step := s.c.CurrentStep()
		s.svc.emit(workflow.Event{Type: workflow.EventStepChanged, IdeaID: s.c.ID(), Step: step})
	}
}

// bind 调用方取消或会话关闭时都会取消
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) alive() error {
	if s.ctx.Err() != nil {
		return fmt.Errorf("%w: %s", ErrSessionClosed, s.c.ID())
	}
	return nil
}

// ID 想法 ID
func (s *Session) ID() string {
	return s.c.ID()
}

// Record 当前状态快照
func (s *Session) Record() *workflow.IdeaRecord {
	return s.c.Snapshot()
}

// UpdateIdea 修改想法输入
func (s *Session) UpdateIdea(input workflow.IdeaInput) error {
	if err := s.alive(); err != nil {
		return err
	}
	return s.c.UpdateIdea(input)
}

// Selection 一个格式的选择
type Selection struct {
	Format     catalog.FormatID `json:"format"`
	TemplateID string           `json:"templateId,omitempty"`
	Options    catalog.Options  `json:"options,omitempty"`
}

// SelectFormats 按给定顺序设置格式选择；不在列表中的格式被移除
func (s *Session) SelectFormats(list []Selection) error {
	if err := s.alive(); err != nil {
		return err
	}
	keep := make(map[catalog.FormatID]bool, len(list))
	for _, sel := range list {
		if !catalog.Known(sel.Format) {
			return fmt.Errorf("%w: %s", workflow.ErrUnknownFormat, sel.Format)
		}
		if _, err := catalog.ResolveOptions(sel.Format, sel.Options); err != nil {
			return err
		}
		keep[sel.Format] = true
	}
	for _, id := range s.c.Snapshot().SelectedFormats {
		if !keep[id] {
			if err := s.c.RemoveFormat(id); err != nil {
				return err
			}
		}
	}
	for _, sel := range list {
		if err := s.c.SelectFormat(sel.Format, sel.TemplateID, sel.Options); err != nil {
			return err
		}
	}
	return nil
}

// RemoveFormat 移除格式及其全部状态
func (s *Session) RemoveFormat(format catalog.FormatID) error {
	if err := s.alive(); err != nil {
		return err
	}
	return s.c.RemoveFormat(format)
}

// EditContent 保存用户手动修改的文案
func (s *Session) EditContent(format catalog.FormatID, edited content.Content) error {
	if err := s.alive(); err != nil {
		return err
	}
	return s.c.PutContent(format, edited)
}

// Generate 按选择顺序生成全部格式
func (s *Session) Generate(ctx context.Context) (*generation.Report, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, cancel := s.bind(ctx)
	defer cancel()

	return s.svc.generator.GenerateAll(ctx, s.c, func(res generation.FormatResult) {
		switch {
		case res.Dropped:
		case res.Err != nil:
			s.svc.emit(workflow.Event{Type: workflow.EventGenerationFailed, IdeaID: s.ID(), Format: res.Format, Message: res.Err.Error()})
		default:
			s.svc.emit(workflow.Event{Type: workflow.EventFormatGenerated, IdeaID: s.ID(), Format: res.Format, Data: res.Content})
		}
	})
}

// GenerateAsync 投递后台生成任务
func (s *Session) GenerateAsync() error {
	if err := s.alive(); err != nil {
		return err
	}
	if s.svc.scheduler == nil {
		return fmt.Errorf("未配置后台任务队列")
	}
	return s.svc.scheduler.EnqueueGenerate(s.ID())
}

// Regenerate 按反馈重新生成目标部分
func (s *Session) Regenerate(ctx context.Context, format catalog.FormatID, target, feedback string) (*workflow.RegenerationEntry, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, cancel := s.bind(ctx)
	defer cancel()

	entry, err := s.svc.generator.Regenerate(ctx, s.c, format, target, feedback)
	if err != nil {
		s.svc.emit(workflow.Event{Type: workflow.EventGenerationFailed, IdeaID: s.ID(), Format: format, Message: err.Error()})
		return nil, err
	}
	generated, _ := s.c.Content(format)
	s.svc.emit(workflow.Event{Type: workflow.EventFormatGenerated, IdeaID: s.ID(), Format: format, Data: generated})
	return entry, nil
}

// ChooseVisualMethod 选择格式的视觉方式
func (s *Session) ChooseVisualMethod(format catalog.FormatID, method workflow.VisualMethod, style string) error {
	if err := s.alive(); err != nil {
		return err
	}
	return s.svc.visuals.ChooseMethod(s.c, format, method, style)
}

// GenerateVisuals AI 生成格式的图片
func (s *Session) GenerateVisuals(ctx context.Context, format catalog.FormatID) ([]string, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, cancel := s.bind(ctx)
	defer cancel()

	urls, err := s.svc.visuals.Generate(ctx, s.c, format)
	if len(urls) > 0 {
		s.svc.emit(workflow.Event{Type: workflow.EventVisualsReady, IdeaID: s.ID(), Format: format, Data: urls})
	}
	if err != nil {
		s.svc.emit(workflow.Event{Type: workflow.EventGenerationFailed, IdeaID: s.ID(), Format: format, Message: err.Error()})
	}
	return urls, err
}

// AssignMedia 绑定已有媒体
func (s *Session) AssignMedia(ctx context.Context, format catalog.FormatID, placeholderID, url string) error {
	if err := s.alive(); err != nil {
		return err
	}
	return s.svc.visuals.Assign(ctx, s.c, format, placeholderID, url)
}

// UploadMedia 上传并绑定媒体
func (s *Session) UploadMedia(ctx context.Context, format catalog.FormatID, placeholderID, name string, r io.Reader) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	return s.svc.visuals.Upload(ctx, s.c, format, placeholderID, name, r)
}

// SaveEditorScene 保存交互式设计结果
func (s *Session) SaveEditorScene(format catalog.FormatID, scene workflow.EditorScene) error {
	if err := s.alive(); err != nil {
		return err
	}
	return s.svc.visuals.SaveEditorScene(s.c, format, scene)
}

// GoTo 跳转到步骤
func (s *Session) GoTo(step workflow.Step) error {
	if err := s.alive(); err != nil {
		return err
	}
	return s.c.GoTo(step)
}

// Advance 前进一步
func (s *Session) Advance() (workflow.Step, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	return s.c.Advance()
}

// Publish 发布或排期；排期时投递到期执行的后台任务
func (s *Session) Publish(ctx context.Context, req publish.Request) (*publish.Summary, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, cancel := s.bind(ctx)
	defer cancel()

	summary, err := s.svc.publisher.Publish(ctx, s.c, req)
	if err != nil {
		return nil, err
	}
	if summary.ScheduledAt != nil {
		if s.svc.scheduler == nil {
			s.svc.logger.Warn("未配置后台任务队列，排期发布不会自动执行", zap.String("idea_id", s.ID()))
		} else if err := s.svc.scheduler.EnqueuePublish(s.ID(), req, *summary.ScheduledAt); err != nil {
			return summary, fmt.Errorf("投递定时发布任务失败: %w", err)
		}
	}
	s.svc.emit(workflow.Event{Type: workflow.EventPublishCompleted, IdeaID: s.ID(), Step: workflow.StepPublish, Data: summary})
	return summary, nil
}

// Flush 立即写入未保存的变更
func (s *Session) Flush(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

func (s *Session) close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancel()
		flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s.closeErr = s.saver.Stop(flushCtx)
		s.svc.logger.Info("关闭想法会话", zap.String("idea_id", s.ID()))
	})
	return s.closeErr
}
