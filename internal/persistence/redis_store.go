package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contentstudio/internal/workflow"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache 会话快照缓存
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, rec *workflow.IdeaRecord) error
	LoadSnapshot(ctx context.Context, id string) (*workflow.IdeaRecord, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// RedisSnapshotStore 把会话快照保存在 Redis，用于快速恢复
type RedisSnapshotStore struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

// NewRedisSnapshotStore 创建快照存储，ttl 为 0 时保存 24 小时
func NewRedisSnapshotStore(client redis.UniversalClient, ttl time.Duration) *RedisSnapshotStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSnapshotStore{redis: client, ttl: ttl}
}

// SaveSnapshot 保存快照
func (s *RedisSnapshotStore) SaveSnapshot(ctx context.Context, rec *workflow.IdeaRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}
	if err := s.redis.Set(ctx, snapshotKey(rec.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("保存快照失败: %w", err)
	}
	return nil
}

// LoadSnapshot 读取快照，不存在时返回 ErrRecordNotFound
func (s *RedisSnapshotStore) LoadSnapshot(ctx context.Context, id string) (*workflow.IdeaRecord, error) {
	data, err := s.redis.Get(ctx, snapshotKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("获取快照失败: %w", err)
	}
	var rec workflow.IdeaRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("解析快照失败: %w", err)
	}
	return &rec, nil
}

// DeleteSnapshot 删除快照
func (s *RedisSnapshotStore) DeleteSnapshot(ctx context.Context, id string) error {
	return s.redis.Del(ctx, snapshotKey(id)).Err()
}

func snapshotKey(id string) string {
	return fmt.Sprintf("studio:idea:%s", id)
}
