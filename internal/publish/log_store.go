package publish

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LogStore 发布日志存储
type LogStore interface {
	Append(ctx context.Context, entries []LogEntry) error
}

// GormLogStore 基于 GORM 的发布日志
type GormLogStore struct {
	db *gorm.DB
}

// NewGormLogStore 创建发布日志存储
func NewGormLogStore(db *gorm.DB) *GormLogStore {
	return &GormLogStore{db: db}
}

// AutoMigrate 创建表结构
func (s *GormLogStore) AutoMigrate() error {
	return s.db.AutoMigrate(&LogEntry{})
}

// Append 批量写入
func (s *GormLogStore) Append(ctx context.Context, entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.New().String()
		}
	}
	if err := s.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return fmt.Errorf("写入发布日志失败: %w", err)
	}
	return nil
}

// ListByIdea 按时间顺序列出想法的发布日志
func (s *GormLogStore) ListByIdea(ctx context.Context, ideaID string) ([]LogEntry, error) {
	var list []LogEntry
	err := s.db.WithContext(ctx).
		Where("idea_id = ?", ideaID).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("查询发布日志失败: %w", err)
	}
	return list, nil
}
