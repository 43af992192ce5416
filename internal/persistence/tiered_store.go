package persistence

import (
	"context"

	"contentstudio/internal/workflow"

	"go.uber.org/zap"
)

// TieredStore 持久存储为准，快照缓存只加速读取
type TieredStore struct {
	durable RecordStore
	cache   SnapshotCache
	logger  *zap.Logger
}

// NewTieredStore 创建分层存储；cache 可为 nil
func NewTieredStore(durable RecordStore, cache SnapshotCache, logger *zap.Logger) *TieredStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TieredStore{durable: durable, cache: cache, logger: logger}
}

// Create 创建记录
func (t *TieredStore) Create(ctx context.Context, rec *workflow.IdeaRecord) error {
	return t.durable.Create(ctx, rec)
}

// Get 优先读取快照缓存
func (t *TieredStore) Get(ctx context.Context, id string) (*workflow.IdeaRecord, error) {
	if t.cache != nil {
		rec, err := t.cache.LoadSnapshot(ctx, id)
		if err == nil {
			return rec, nil
		}
		if err != ErrRecordNotFound {
			t.logger.Warn("读取快照失败，回退到数据库", zap.String("idea_id", id), zap.Error(err))
		}
	}
	return t.durable.Get(ctx, id)
}

// Save 先写数据库再刷新快照；快照失败只记录日志
func (t *TieredStore) Save(ctx context.Context, rec *workflow.IdeaRecord) error {
	if err := t.durable.Save(ctx, rec); err != nil {
		return err
	}
	if t.cache != nil {
		if err := t.cache.SaveSnapshot(ctx, rec); err != nil {
			t.logger.Warn("刷新快照失败", zap.String("idea_id", rec.ID), zap.Error(err))
		}
	}
	return nil
}

// UpdateStatus 写入终态并让快照失效
func (t *TieredStore) UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*workflow.IdeaRecord, error) {
	rec, err := t.durable.UpdateStatus(ctx, id, update)
	if err != nil {
		return nil, err
	}
	if t.cache != nil {
		if err := t.cache.DeleteSnapshot(ctx, id); err != nil {
			t.logger.Warn("删除快照失败", zap.String("idea_id", id), zap.Error(err))
		}
	}
	return rec, nil
}
