package content

import (
	"strings"
	"unicode"
)

// 每次生成的话题标签数量范围
const (
	MinHashtags = 5
	MaxHashtags = 10
)

// NormalizeHashtags 去掉前导 #、空白，大小写不敏感去重，丢弃空值
func NormalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimLeft(strings.TrimSpace(tag), "#")
		tag = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// NormalizeTags 返回话题标签规范化后的内容；已经规范时原样返回
func NormalizeTags(c Content) Content {
	if c == nil {
		return nil
	}
	tags := NormalizeHashtags(c.Tags())
	if equalTags(tags, c.Tags()) {
		return c
	}
	switch v := c.(type) {
	case *Carousel:
		cp := *v
		cp.Hashtags = tags
		return &cp
	case *Thread:
		cp := *v
		cp.Hashtags = tags
		return &cp
	case *TemplateFields:
		cp := *v
		cp.Hashtags = tags
		return &cp
	case *Simple:
		cp := *v
		cp.Hashtags = tags
		return &cp
	}
	return c
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RenderHashtags 发布时加上 # 前缀
func RenderHashtags(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, tag := range NormalizeHashtags(tags) {
		parts = append(parts, "#"+tag)
	}
	return strings.Join(parts, " ")
}
