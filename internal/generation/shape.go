package generation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/internal/template"
	"contentstudio/pkg/aiinterface"
)

// HeadlineMaxWords 画面文字的最大词数
const HeadlineMaxWords = 25

var headlinePattern = regexp.MustCompile(`(?i)(title|headline|heading|hook|tagline|quote|placeholder|标题)`)

// IsHeadline 标识或标签看起来是画面标题类占位符时返回 true
func IsHeadline(id, label string) bool {
	return headlinePattern.MatchString(id) || headlinePattern.MatchString(label)
}

// FieldSpec 模板驱动内容中的单个字段
type FieldSpec struct {
	Name     string
	Label    string
	Headline bool
	Default  string
}

// Shape 一次生成调用的输出结构
type Shape struct {
	Category    catalog.Category
	Count       int         // 轮播页数或推文数
	SlideFields []FieldSpec // 轮播每页的字段
	Fields      []FieldSpec // 模板文本占位符
	BodyField   string      // 简单格式的正文字段
}

var defaultSlideFields = []FieldSpec{
	{Name: "title", Label: "Slide title", Headline: true},
	{Name: "body", Label: "Slide body"},
}

// ShapeFor 由格式描述、绑定的模板和选项确定生成结构
func ShapeFor(desc catalog.Descriptor, tmpl *template.Template, opts catalog.Options) Shape {
	shape := Shape{Category: desc.ResolveCategory(tmpl != nil)}
	switch shape.Category {
	case catalog.CategoryCarousel:
		shape.Count, _ = opts.Int("slide_count")
		shape.SlideFields = defaultSlideFields
		if tmpl != nil {
			if fields := placeholderFields(tmpl); len(fields) > 0 {
				shape.SlideFields = fields
			}
		}
	case catalog.CategoryThread:
		shape.Count, _ = opts.Int("tweet_count")
	case catalog.CategoryTemplateDriven:
		shape.Fields = placeholderFields(tmpl)
	default:
		shape.BodyField = desc.BodyField
		if shape.BodyField == "" {
			shape.BodyField = "caption"
		}
	}
	return shape
}

func placeholderFields(tmpl *template.Template) []FieldSpec {
	var fields []FieldSpec
	for _, p := range tmpl.TextPlaceholders() {
		fields = append(fields, FieldSpec{
			Name:     p.ID,
			Label:    p.Label,
			Headline: IsHeadline(p.ID, p.Label),
			Default:  p.DefaultValue,
		})
	}
	return fields
}

// ShapeFromContent 按现有内容自身的字段集合推导结构，用于整体重新生成
func ShapeFromContent(c content.Content) Shape {
	switch v := c.(type) {
	case *content.Carousel:
		seen := map[string]struct{}{}
		var names []string
		for _, slide := range v.Slides {
			for k := range slide {
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					names = append(names, k)
				}
			}
		}
		sort.Strings(names)
		fields := make([]FieldSpec, 0, len(names))
		for _, n := range names {
			fields = append(fields, FieldSpec{Name: n, Label: n, Headline: IsHeadline(n, "")})
		}
		return Shape{Category: catalog.CategoryCarousel, Count: len(v.Slides), SlideFields: fields}
	case *content.Thread:
		return Shape{Category: catalog.CategoryThread, Count: len(v.Tweets)}
	case *content.TemplateFields:
		fields := make([]FieldSpec, 0, len(v.Fields))
		for _, n := range v.FieldNames() {
			fields = append(fields, FieldSpec{Name: n, Label: n, Headline: IsHeadline(n, "")})
		}
		return Shape{Category: catalog.CategoryTemplateDriven, Fields: fields}
	case *content.Simple:
		return Shape{Category: catalog.CategorySimple, BodyField: v.BodyField()}
	}
	return Shape{Category: catalog.CategorySimple, BodyField: "caption"}
}

// SchemaName 传给生成服务的 Schema 名称
func (s Shape) SchemaName() string {
	return string(s.Category)
}

// Schema 生成严格模式的 JSON Schema
func (s Shape) Schema() map[string]any {
	switch s.Category {
	case catalog.CategoryCarousel:
		slide := objectSchema(fieldProperties(s.SlideFields)...)
		return objectSchema(
			prop{"caption", stringSchema("Post caption shown under the carousel")},
			prop{"hashtags", hashtagsSchema()},
			prop{"slides", arraySchema(slide, s.Count, fmt.Sprintf("Exactly %d slides", s.Count))},
		)
	case catalog.CategoryThread:
		tweet := stringSchema("One tweet, at most 280 characters")
		return objectSchema(
			prop{"tweets", arraySchema(tweet, s.Count, fmt.Sprintf("Exactly %d tweets in order", s.Count))},
			prop{"hashtags", hashtagsSchema()},
		)
	case catalog.CategoryTemplateDriven:
		props := fieldProperties(s.Fields)
		props = append(props,
			prop{"caption", stringSchema("Post caption")},
			prop{"hashtags", hashtagsSchema()},
		)
		return objectSchema(props...)
	default:
		return objectSchema(
			prop{s.BodyField, stringSchema("Post " + s.BodyField)},
			prop{"hashtags", hashtagsSchema()},
		)
	}
}

// Decode 校验生成结果并转换为内容变体；缺失必填字段时返回 ErrSchemaMismatch
func (s Shape) Decode(obj map[string]any) (content.Content, error) {
	switch s.Category {
	case catalog.CategoryCarousel:
		caption, err := requireString(obj, "caption")
		if err != nil {
			return nil, err
		}
		tags, err := decodeHashtags(obj)
		if err != nil {
			return nil, err
		}
		items, err := requireArray(obj, "slides", s.Count)
		if err != nil {
			return nil, err
		}
		slides := make([]content.Slide, 0, len(items))
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, mismatch("slides[%d] 不是对象", i)
			}
			slide, err := decodeFields(m, s.SlideFields)
			if err != nil {
				return nil, fmt.Errorf("slides[%d]: %w", i, err)
			}
			slides = append(slides, content.Slide(slide))
		}
		return &content.Carousel{Caption: caption, Hashtags: tags, Slides: slides}, nil

	case catalog.CategoryThread:
		items, err := requireArray(obj, "tweets", s.Count)
		if err != nil {
			return nil, err
		}
		tweets := make([]string, 0, len(items))
		for i, item := range items {
			tweet, ok := item.(string)
			if !ok || strings.TrimSpace(tweet) == "" {
				return nil, mismatch("tweets[%d] 不是非空字符串", i)
			}
			tweets = append(tweets, tweet)
		}
		tags, err := decodeHashtags(obj)
		if err != nil {
			return nil, err
		}
		return &content.Thread{Tweets: tweets, Hashtags: tags}, nil

	case catalog.CategoryTemplateDriven:
		fields, err := decodeFields(obj, s.Fields)
		if err != nil {
			return nil, err
		}
		caption, err := requireString(obj, "caption")
		if err != nil {
			return nil, err
		}
		tags, err := decodeHashtags(obj)
		if err != nil {
			return nil, err
		}
		return &content.TemplateFields{Fields: fields, Caption: caption, Hashtags: tags}, nil

	default:
		body, err := requireString(obj, s.BodyField)
		if err != nil {
			return nil, err
		}
		tags, err := decodeHashtags(obj)
		if err != nil {
			return nil, err
		}
		out := &content.Simple{Hashtags: tags}
		if s.BodyField == "content" {
			out.Content = body
		} else {
			out.Caption = body
		}
		return out, nil
	}
}

func decodeFields(obj map[string]any, specs []FieldSpec) (map[string]string, error) {
	out := make(map[string]string, len(specs))
	for _, f := range specs {
		raw, present := obj[f.Name]
		val, ok := raw.(string)
		if !present || !ok || strings.TrimSpace(val) == "" {
			if f.Default == "" {
				return nil, mismatch("缺少字段 %s", f.Name)
			}
			val = f.Default
		}
		if f.Headline {
			val = limitWords(val, HeadlineMaxWords)
		}
		out[f.Name] = val
	}
	return out, nil
}

// decodeHashtags 规范化话题标签：少于下限视为不合格，超过上限截断
func decodeHashtags(obj map[string]any) ([]string, error) {
	items, ok := obj["hashtags"].([]any)
	if !ok {
		return nil, mismatch("缺少字段 hashtags")
	}
	raw := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			raw = append(raw, s)
		}
	}
	tags := content.NormalizeHashtags(raw)
	if len(tags) < content.MinHashtags {
		return nil, mismatch("话题标签数量不足: %d < %d", len(tags), content.MinHashtags)
	}
	if len(tags) > content.MaxHashtags {
		tags = tags[:content.MaxHashtags]
	}
	return tags, nil
}

func requireString(obj map[string]any, key string) (string, error) {
	s, ok := obj[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", mismatch("缺少字段 %s", key)
	}
	return s, nil
}

// requireArray 数量不足视为不合格，超出部分截断
func requireArray(obj map[string]any, key string, want int) ([]any, error) {
	items, ok := obj[key].([]any)
	if !ok {
		return nil, mismatch("缺少字段 %s", key)
	}
	if want > 0 {
		if len(items) < want {
			return nil, mismatch("%s 数量不足: %d < %d", key, len(items), want)
		}
		items = items[:want]
	}
	return items, nil
}

func limitWords(s string, max int) string {
	words := strings.Fields(s)
	if len(words) <= max {
		return s
	}
	return strings.Join(words[:max], " ")
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", aiinterface.ErrSchemaMismatch, fmt.Sprintf(format, args...))
}

type prop struct {
	name   string
	schema map[string]any
}

func objectSchema(props ...prop) map[string]any {
	properties := make(map[string]any, len(props))
	required := make([]string, 0, len(props))
	for _, p := range props {
		properties[p.name] = p.schema
		required = append(required, p.name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldProperties(fields []FieldSpec) []prop {
	props := make([]prop, 0, len(fields))
	for _, f := range fields {
		desc := f.Label
		if desc == "" {
			desc = f.Name
		}
		if f.Headline {
			desc = fmt.Sprintf("%s. Short, high-impact on-image text, at most %d words", desc, HeadlineMaxWords)
		} else {
			desc += ". Narrative copy"
		}
		props = append(props, prop{f.Name, stringSchema(desc)})
	}
	return props
}

func stringSchema(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func arraySchema(items map[string]any, count int, desc string) map[string]any {
	schema := map[string]any{"type": "array", "items": items, "description": desc}
	if count > 0 {
		schema["minItems"] = count
		schema["maxItems"] = count
	}
	return schema
}

func hashtagsSchema() map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"minItems":    content.MinHashtags,
		"maxItems":    content.MaxHashtags,
		"description": "Relevant hashtags without the leading # symbol",
	}
}
