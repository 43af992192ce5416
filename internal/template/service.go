package template

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contentstudio/internal/cache"
	"contentstudio/internal/content"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTemplateNotFound 模板不存在
var ErrTemplateNotFound = errors.New("模板不存在")

// Store 模板读取接口
type Store interface {
	Get(ctx context.Context, templateID string) (*Template, error)
}

// TemplateService 视觉模板存储服务
type TemplateService struct {
	db    *gorm.DB
	cache *cache.LFU[*Template]
}

// Option 服务选项
type Option func(*TemplateService)

// WithCache 为 Get 加一层内存 LFU 缓存，Upsert 时失效
func WithCache(capacity int, ttl time.Duration) Option {
	return func(s *TemplateService) {
		s.cache = cache.NewLFU[*Template]("template", capacity, ttl)
	}
}

// NewTemplateService 创建 TemplateService 实例
func NewTemplateService(db *gorm.DB, opts ...Option) *TemplateService {
	s := &TemplateService{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate 创建表结构
func (s *TemplateService) AutoMigrate() error {
	return s.db.AutoMigrate(&Template{})
}

// Get 查询单个模板
func (s *TemplateService) Get(ctx context.Context, templateID string) (*Template, error) {
	if s.cache != nil {
		if t, ok := s.cache.Get(templateID); ok {
			return t, nil
		}
	}
	var tmpl Template
	if err := s.db.WithContext(ctx).Where("id = ?", templateID).First(&tmpl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
		}
		return nil, fmt.Errorf("查询模板失败: %w", err)
	}
	if s.cache != nil {
		s.cache.Set(templateID, &tmpl)
	}
	return &tmpl, nil
}

// ListForFormat 查询适用于某格式的模板
func (s *TemplateService) ListForFormat(ctx context.Context, formatID string) ([]*Template, error) {
	var all []*Template
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("查询模板列表失败: %w", err)
	}
	if formatID == "" {
		return all, nil
	}
	out := make([]*Template, 0, len(all))
	for _, t := range all {
		if t.AppliesTo(formatID) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Upsert 创建或覆盖模板
func (s *TemplateService) Upsert(ctx context.Context, tmpl *Template) error {
	if tmpl.ID == "" {
		return fmt.Errorf("模板 ID 不能为空")
	}
	if err := validatePlaceholders(tmpl.Placeholders); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(tmpl).Error
	if err != nil {
		return fmt.Errorf("保存模板失败: %w", err)
	}
	if s.cache != nil {
		s.cache.Delete(tmpl.ID)
	}
	return nil
}

// Seed 批量写入内置模板
func (s *TemplateService) Seed(ctx context.Context, templates []*Template) error {
	for _, t := range templates {
		if err := s.Upsert(ctx, t); err != nil {
			return fmt.Errorf("写入模板 %s 失败: %w", t.ID, err)
		}
	}
	return nil
}

func validatePlaceholders(list []Placeholder) error {
	seen := make(map[string]struct{}, len(list))
	for _, p := range list {
		if p.ID == "" {
			return fmt.Errorf("占位符 ID 不能为空")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("占位符 ID 重复: %s", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Type != PlaceholderText && p.Type != PlaceholderImage {
			return fmt.Errorf("占位符 %s 类型无效: %q", p.ID, p.Type)
		}
		if p.Type == PlaceholderText && !content.ValidFieldName(p.ID) {
			return fmt.Errorf("文本占位符 ID 无效或为保留字段: %q", p.ID)
		}
	}
	return nil
}
