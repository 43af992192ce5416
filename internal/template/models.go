package template

import (
	"time"

	"gorm.io/datatypes"
)

// PlaceholderType 占位符类型
type PlaceholderType string

const (
	PlaceholderText  PlaceholderType = "text"
	PlaceholderImage PlaceholderType = "image"
)

// Placeholder 模板中的命名插槽
type Placeholder struct {
	ID           string          `json:"id" yaml:"id"`
	Label        string          `json:"label" yaml:"label"`
	Type         PlaceholderType `json:"type" yaml:"type"`
	Required     bool            `json:"required" yaml:"required"`
	DefaultValue string          `json:"defaultValue,omitempty" yaml:"default_value"`
}

// Template 可复用的视觉设计模板
type Template struct {
	ID   string `json:"id" gorm:"primaryKey;size:64"`
	Name string `json:"name" gorm:"size:255;not null"`

	// 适用格式，空表示不限
	FormatIDs []string `json:"formatIds" gorm:"type:jsonb;serializer:json"`

	Placeholders []Placeholder `json:"placeholders" gorm:"type:jsonb;serializer:json"`

	// 设计工具的原始场景数据，引擎只透传
	BaseScene datatypes.JSON `json:"baseScene" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TableName 表名
func (Template) TableName() string {
	return "visual_templates"
}

// TextPlaceholders 文本占位符（保持模板顺序）
func (t *Template) TextPlaceholders() []Placeholder {
	return t.placeholdersOf(PlaceholderText)
}

// ImagePlaceholders 图片占位符（保持模板顺序）
func (t *Template) ImagePlaceholders() []Placeholder {
	return t.placeholdersOf(PlaceholderImage)
}

func (t *Template) placeholdersOf(kind PlaceholderType) []Placeholder {
	var out []Placeholder
	for _, p := range t.Placeholders {
		if p.Type == kind {
			out = append(out, p)
		}
	}
	return out
}

// AppliesTo 判断模板是否适用于指定格式
func (t *Template) AppliesTo(formatID string) bool {
	if len(t.FormatIDs) == 0 {
		return true
	}
	for _, id := range t.FormatIDs {
		if id == formatID {
			return true
		}
	}
	return false
}
