package content

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TargetKind 重新生成的目标类型
type TargetKind string

const (
	TargetWhole   TargetKind = ""
	TargetSlide   TargetKind = "slide"
	TargetTweet   TargetKind = "tweet"
	TargetCaption TargetKind = "caption"
	TargetField   TargetKind = "field"
)

var (
	ErrTargetNotFound    = errors.New("重新生成目标不存在")
	ErrTargetUnsupported = errors.New("该内容类型不支持此目标")
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

// ValidFieldName 能否作为模板字段名：可被定向重新生成，且不与 caption、hashtags 冲突
func ValidFieldName(name string) bool {
	switch name {
	case "caption", "hashtags":
		return false
	}
	return fieldNamePattern.MatchString(name)
}

// Target 内容内的子路径
type Target struct {
	Kind  TargetKind
	Index int
	Field string
}

// Whole 整个格式
var Whole = Target{}

// ParseTarget 解析 "slide:i"、"tweet:i"、"caption"、"field:name"、裸字段名或空串
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Whole, nil
	case s == "caption":
		return Target{Kind: TargetCaption}, nil
	case strings.HasPrefix(s, "slide:"):
		i, err := parseIndex(strings.TrimPrefix(s, "slide:"))
		if err != nil {
			return Target{}, err
		}
		return Target{Kind: TargetSlide, Index: i}, nil
	case strings.HasPrefix(s, "tweet:"):
		i, err := parseIndex(strings.TrimPrefix(s, "tweet:"))
		if err != nil {
			return Target{}, err
		}
		return Target{Kind: TargetTweet, Index: i}, nil
	case strings.HasPrefix(s, "field:"):
		name := strings.TrimPrefix(s, "field:")
		if !fieldNamePattern.MatchString(name) {
			return Target{}, fmt.Errorf("无效的字段名: %q", name)
		}
		return Target{Kind: TargetField, Field: name}, nil
	case fieldNamePattern.MatchString(s):
		return Target{Kind: TargetField, Field: s}, nil
	}
	return Target{}, fmt.Errorf("无法解析的目标: %q", s)
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("无效的索引: %q", s)
	}
	return i, nil
}

// IsWhole 是否为整个格式
func (t Target) IsWhole() bool { return t.Kind == TargetWhole }

func (t Target) String() string {
	switch t.Kind {
	case TargetWhole:
		return ""
	case TargetSlide, TargetTweet:
		return fmt.Sprintf("%s:%d", t.Kind, t.Index)
	case TargetCaption:
		return "caption"
	default:
		return "field:" + t.Field
	}
}

// Value 读取目标当前值：Slide、string 或整个 Content
func Value(c Content, t Target) (any, error) {
	if c == nil {
		return nil, ErrTargetNotFound
	}
	if t.IsWhole() {
		return c, nil
	}

	switch v := c.(type) {
	case *Carousel:
		switch t.Kind {
		case TargetCaption:
			return v.Caption, nil
		case TargetSlide:
			if t.Index >= len(v.Slides) {
				return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, t)
			}
			return v.Slides[t.Index], nil
		}
	case *Thread:
		if t.Kind == TargetTweet {
			if t.Index >= len(v.Tweets) {
				return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, t)
			}
			return v.Tweets[t.Index], nil
		}
	case *TemplateFields:
		switch t.Kind {
		case TargetCaption:
			return v.Caption, nil
		case TargetField:
			val, ok := v.Fields[t.Field]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, t)
			}
			return val, nil
		}
	case *Simple:
		switch {
		case t.Kind == TargetCaption, t.Kind == TargetField && t.Field == v.BodyField():
			return v.Body(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s 不支持 %s", ErrTargetUnsupported, c.Kind(), t)
}

// Splice 仅替换目标路径上的值，返回新内容；其余字段与原值共享引用
func Splice(c Content, t Target, value any) (Content, error) {
	if t.IsWhole() {
		next, ok := value.(Content)
		if !ok || next == nil {
			return nil, fmt.Errorf("整体替换需要 Content 值")
		}
		if c != nil && next.Kind() != c.Kind() {
			return nil, fmt.Errorf("内容类型不一致: %s != %s", next.Kind(), c.Kind())
		}
		return next, nil
	}
	if _, err := Value(c, t); err != nil {
		return nil, err
	}

	switch v := c.(type) {
	case *Carousel:
		out := *v
		switch t.Kind {
		case TargetCaption:
			s, err := asString(value)
			if err != nil {
				return nil, err
			}
			out.Caption = s
		case TargetSlide:
			slide, ok := value.(Slide)
			if !ok {
				return nil, fmt.Errorf("slide 目标需要 Slide 值，实际 %T", value)
			}
			out.Slides = make([]Slide, len(v.Slides))
			copy(out.Slides, v.Slides)
			out.Slides[t.Index] = slide
		}
		return &out, nil
	case *Thread:
		s, err := asString(value)
		if err != nil {
			return nil, err
		}
		out := *v
		out.Tweets = make([]string, len(v.Tweets))
		copy(out.Tweets, v.Tweets)
		out.Tweets[t.Index] = s
		return &out, nil
	case *TemplateFields:
		s, err := asString(value)
		if err != nil {
			return nil, err
		}
		out := *v
		if t.Kind == TargetCaption {
			out.Caption = s
			return &out, nil
		}
		out.Fields = make(map[string]string, len(v.Fields))
		for k, val := range v.Fields {
			out.Fields[k] = val
		}
		out.Fields[t.Field] = s
		return &out, nil
	case *Simple:
		s, err := asString(value)
		if err != nil {
			return nil, err
		}
		out := *v
		if v.BodyField() == "content" {
			out.Content = s
		} else {
			out.Caption = s
		}
		return &out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrTargetUnsupported, c)
}

func asString(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("目标需要字符串值，实际 %T", value)
	}
	return s, nil
}
