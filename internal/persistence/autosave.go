package persistence

import (
	"context"
	"sync"
	"time"

	"contentstudio/internal/metrics"
	"contentstudio/internal/workflow"

	"go.uber.org/zap"
)

// DefaultDebounce 默认防抖时间
const DefaultDebounce = time.Second

// Saver 执行一次整条写入
type Saver interface {
	Save(ctx context.Context, rec *workflow.IdeaRecord) error
}

// AutoSaver 合并式自动保存：每次变更重置计时器，计时器触发时只写入当时的状态
type AutoSaver struct {
	store    Saver
	snapshot func() *workflow.IdeaRecord
	delay    time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool

	// 串行化写入，保证后一次写入使用更新的快照
	writeMu sync.Mutex
}

// NewAutoSaver 创建自动保存器，snapshot 返回待保存状态的拷贝
func NewAutoSaver(store Saver, snapshot func() *workflow.IdeaRecord, delay time.Duration, logger *zap.Logger) *AutoSaver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoSaver{
		store:    store,
		snapshot: snapshot,
		delay:    delay,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

// Touch 记录一次变更并重新计时
func (a *AutoSaver) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.pending = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
}

// Pending 是否有尚未写入的变更
func (a *AutoSaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

func (a *AutoSaver) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	_ = a.write(ctx)
}

// Flush 立即写入尚未保存的变更；没有变更时不写入
func (a *AutoSaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
	return a.write(ctx)
}

// Stop 写入剩余变更并停止接收新的变更
func (a *AutoSaver) Stop(ctx context.Context) error {
	err := a.Flush(ctx)
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	return err
}

func (a *AutoSaver) write(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	if !a.pending {
		a.mu.Unlock()
		return nil
	}
	a.pending = false
	a.mu.Unlock()

	rec := a.snapshot()
	if err := a.store.Save(ctx, rec); err != nil {
		perr := &PersistenceError{IdeaID: rec.ID, Err: err}
		metrics.AutosaveWritesTotal.WithLabelValues("failed").Inc()
		a.logger.Error("自动保存失败", zap.String("idea_id", rec.ID), zap.Error(err))
		return perr
	}
	metrics.AutosaveWritesTotal.WithLabelValues("success").Inc()
	a.logger.Debug("自动保存完成",
		zap.String("idea_id", rec.ID),
		zap.String("step", string(rec.CurrentStep)))
	return nil
}
