package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contentstudio/internal/workflow"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordStore 想法记录的持久化存储
type RecordStore interface {
	Create(ctx context.Context, rec *workflow.IdeaRecord) error
	Get(ctx context.Context, id string) (*workflow.IdeaRecord, error)
	Save(ctx context.Context, rec *workflow.IdeaRecord) error
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*workflow.IdeaRecord, error)
}

// StatusUpdate 发布完成后的终态写入
type StatusUpdate struct {
	Status         workflow.Status
	PublishOutcome workflow.Status
	ScheduledAt    *time.Time
	Posts          []workflow.PostRecord // 完整列表，覆盖已有记录
}

// GormStore 基于 GORM 的记录存储
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建 GormStore 实例
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate 创建表结构
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&workflow.IdeaRecord{})
}

// Create 创建记录
func (s *GormStore) Create(ctx context.Context, rec *workflow.IdeaRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("创建想法记录失败: %w", err)
	}
	return nil
}

// Get 查询记录
func (s *GormStore) Get(ctx context.Context, id string) (*workflow.IdeaRecord, error) {
	var rec workflow.IdeaRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("查询想法记录失败: %w", err)
	}
	return &rec, nil
}

// Save 整条覆盖写入（幂等）
func (s *GormStore) Save(ctx context.Context, rec *workflow.IdeaRecord) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("保存想法记录失败: %w", err)
	}
	return nil
}

// UpdateStatus 只更新发布相关字段
func (s *GormStore) UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*workflow.IdeaRecord, error) {
	var rec *workflow.IdeaRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur workflow.IdeaRecord
		if err := tx.Where("id = ?", id).First(&cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
			}
			return err
		}
		cur.Status = update.Status
		cur.CurrentStep = workflow.StepPublish
		cur.PublishOutcome = update.PublishOutcome
		cur.ScheduledAt = update.ScheduledAt
		cur.Posts = update.Posts

		if err := tx.Model(&cur).Select("status", "current_step", "publish_outcome", "scheduled_at", "posts", "updated_at").
			Updates(&cur).Error; err != nil {
			return err
		}
		rec = &cur
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("更新发布状态失败: %w", err)
	}
	return rec, nil
}

// ListRecent 按更新时间倒序列出记录
func (s *GormStore) ListRecent(ctx context.Context, limit int) ([]*workflow.IdeaRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []*workflow.IdeaRecord
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("查询想法列表失败: %w", err)
	}
	return list, nil
}
