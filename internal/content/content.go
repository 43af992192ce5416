package content

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Kind 生成内容的变体标签
type Kind string

const (
	KindCarousel       Kind = "carousel"
	KindThread         Kind = "thread"
	KindTemplateFields Kind = "template_fields"
	KindSimple         Kind = "simple"
)

// Content 单个格式的生成结果（带标签的联合类型）
// 变体值视为不可变：修改一律通过 Splice 产生新值
type Content interface {
	Kind() Kind
	// Body 发布时使用的正文
	Body() string
	// Tags 不带 # 的话题标签
	Tags() []string
	isContent()
}

// Slide 轮播中的一页，字段名由模板占位符或默认结构决定
type Slide map[string]string

// Carousel 轮播内容
type Carousel struct {
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
	Slides   []Slide  `json:"slides"`
}

func (c *Carousel) Kind() Kind     { return KindCarousel }
func (c *Carousel) Body() string   { return c.Caption }
func (c *Carousel) Tags() []string { return c.Hashtags }
func (c *Carousel) isContent()     {}

// Thread 推文串
type Thread struct {
	Tweets   []string `json:"tweets"`
	Hashtags []string `json:"hashtags"`
}

func (t *Thread) Kind() Kind     { return KindThread }
func (t *Thread) Body() string   { return strings.Join(t.Tweets, "\n\n") }
func (t *Thread) Tags() []string { return t.Hashtags }
func (t *Thread) isContent()     {}

// TemplateFields 按模板文本占位符生成的字段集合
// JSON 形式为扁平对象：占位符字段与 caption、hashtags 并列
type TemplateFields struct {
	Fields   map[string]string
	Caption  string
	Hashtags []string
}

func (f *TemplateFields) Kind() Kind     { return KindTemplateFields }
func (f *TemplateFields) Body() string   { return f.Caption }
func (f *TemplateFields) Tags() []string { return f.Hashtags }
func (f *TemplateFields) isContent()     {}

// FieldNames 按字母序返回字段名
func (f *TemplateFields) FieldNames() []string {
	names := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON 扁平化输出
func (f *TemplateFields) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(f.Fields)+2)
	for k, v := range f.Fields {
		flat[k] = v
	}
	flat["caption"] = f.Caption
	hashtags := f.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	flat["hashtags"] = hashtags
	return json.Marshal(flat)
}

// UnmarshalJSON 从扁平对象解析
func (f *TemplateFields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Fields = make(map[string]string, len(raw))
	for k, v := range raw {
		switch k {
		case "caption":
			if err := json.Unmarshal(v, &f.Caption); err != nil {
				return fmt.Errorf("caption 字段类型错误: %w", err)
			}
		case "hashtags":
			if err := json.Unmarshal(v, &f.Hashtags); err != nil {
				return fmt.Errorf("hashtags 字段类型错误: %w", err)
			}
		default:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("字段 %s 需要字符串: %w", k, err)
			}
			f.Fields[k] = s
		}
	}
	return nil
}

// Simple 简单文案，caption 与 content 二选一（由格式目录的 BodyField 决定）
type Simple struct {
	Caption  string   `json:"caption,omitempty"`
	Content  string   `json:"content,omitempty"`
	Hashtags []string `json:"hashtags"`
}

func (s *Simple) Kind() Kind { return KindSimple }
func (s *Simple) Body() string {
	if s.Caption != "" {
		return s.Caption
	}
	return s.Content
}
func (s *Simple) Tags() []string { return s.Hashtags }
func (s *Simple) isContent()     {}

// BodyField 当前使用的正文字段名
func (s *Simple) BodyField() string {
	if s.Content != "" && s.Caption == "" {
		return "content"
	}
	return "caption"
}

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Marshal 序列化为 {kind, data} 信封
func Marshal(c Content) ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: c.Kind(), Data: data})
}

// Unmarshal 从信封反序列化
func Unmarshal(data []byte) (Content, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("解析内容信封失败: %w", err)
	}
	return Decode(env.Kind, env.Data)
}

// Decode 按变体标签解析内容
func Decode(kind Kind, data []byte) (Content, error) {
	var c Content
	switch kind {
	case KindCarousel:
		c = &Carousel{}
	case KindThread:
		c = &Thread{}
	case KindTemplateFields:
		c = &TemplateFields{}
	case KindSimple:
		c = &Simple{}
	default:
		return nil, fmt.Errorf("未知的内容类型: %q", kind)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("解析 %s 内容失败: %w", kind, err)
	}
	return c, nil
}

// Text 将内容或其子片段渲染为便于比较的文本
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case Slide:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, val[k])
		}
		return b.String()
	default:
		data, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
