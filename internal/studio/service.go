package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"contentstudio/internal/generation"
	"contentstudio/internal/metrics"
	"contentstudio/internal/persistence"
	"contentstudio/internal/publish"
	"contentstudio/internal/visual"
	"contentstudio/internal/workflow"

	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("工作流会话不存在")
	ErrSessionClosed   = errors.New("工作流会话已关闭")
)

// Scheduler 后台任务投递
type Scheduler interface {
	EnqueueGenerate(ideaID string) error
	EnqueuePublish(ideaID string, req publish.Request, at time.Time) error
}

// Service 管理工作流会话：创建、恢复、关闭
type Service struct {
	store     persistence.RecordStore
	generator *generation.Dispatcher
	visuals   *visual.Resolver
	publisher *publish.Dispatcher
	sink      workflow.EventSink
	scheduler Scheduler
	debounce  time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option 配置项
type Option func(*Service)

// WithEventSink 设置事件接收方
func WithEventSink(sink workflow.EventSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithScheduler 设置后台任务投递
func WithScheduler(sch Scheduler) Option {
	return func(s *Service) { s.scheduler = sch }
}

// WithAutosaveDebounce 设置自动保存防抖时间
func WithAutosaveDebounce(d time.Duration) Option {
	return func(s *Service) { s.debounce = d }
}

// NewService 创建会话服务
func NewService(
	store persistence.RecordStore,
	generator *generation.Dispatcher,
	visuals *visual.Resolver,
	publisher *publish.Dispatcher,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     store,
		generator: generator,
		visuals:   visuals,
		publisher: publisher,
		sink:      workflow.NopSink{},
		debounce:  persistence.DefaultDebounce,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create 创建新想法并打开会话
func (s *Service) Create(ctx context.Context, input workflow.IdeaInput) (*Session, error) {
	rec := workflow.NewIdea(input).Snapshot()
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("创建想法", zap.String("idea_id", rec.ID))
	return s.register(workflow.Restore(rec)), nil
}

// Open 打开会话；不在内存中时从存储恢复
func (s *Service) Open(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}
	s.logger.Info("恢复想法会话", zap.String("idea_id", id), zap.String("step", string(rec.CurrentStep)))
	return s.register(workflow.Restore(rec)), nil
}

func (s *Service) register(c *workflow.Container) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	// 并发 Open 时保留先注册的会话
	if existing, ok := s.sessions[c.ID()]; ok {
		return existing
	}
	sess := newSession(s, c)
	s.sessions[c.ID()] = sess
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return sess
}

// Close 写入未保存的变更并关闭会话，取消会话内进行中的外部调用
func (s *Service) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.close(ctx)
}

// Shutdown 关闭全部会话
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	list := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		list = append(list, sess)
		delete(s.sessions, id)
	}
	metrics.ActiveSessions.Set(0)
	s.mu.Unlock()

	var errs []error
	for _, sess := range list {
		if err := sess.close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunGenerate 后台任务：整体生成并立即保存
func (s *Service) RunGenerate(ctx context.Context, ideaID string) error {
	sess, err := s.Open(ctx, ideaID)
	if err != nil {
		return err
	}
	_, genErr := sess.Generate(ctx)
	if err := sess.Flush(ctx); err != nil {
		return err
	}
	return genErr
}

// RunPublish 后台任务：到期的定时发布
func (s *Service) RunPublish(ctx context.Context, ideaID string, flags publish.Flags) error {
	sess, err := s.Open(ctx, ideaID)
	if err != nil {
		return err
	}
	if _, err := sess.Publish(ctx, publish.Request{Flags: flags}); err != nil {
		return err
	}
	return sess.Flush(ctx)
}

func (s *Service) emit(e workflow.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.sink.Publish(e)
}
