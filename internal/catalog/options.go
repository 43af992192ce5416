package catalog

import (
	"encoding/json"
	"fmt"
	"math"
)

// OptionType 选项类型
type OptionType string

const (
	OptionInt  OptionType = "int"
	OptionEnum OptionType = "enum"
	OptionBool OptionType = "bool"
)

// OptionSpec 选项定义（带类型与边界）
type OptionSpec struct {
	Key     string     `json:"key"`
	Label   string     `json:"label"`
	Type    OptionType `json:"type"`
	Min     int        `json:"min,omitempty"`
	Max     int        `json:"max,omitempty"`
	Choices []string   `json:"choices,omitempty"`
	Default any        `json:"default"`
}

// Options 格式选项取值
type Options map[string]any

// Int 读取整数选项，兼容 JSON 反序列化后的 float64
func (o Options) Int(key string) (int, bool) {
	v, ok := o[key]
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// String 读取字符串选项
func (o Options) String(key string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return ""
}

// Bool 读取布尔选项
func (o Options) Bool(key string) bool {
	v, _ := o[key].(bool)
	return v
}

// Clone 浅拷贝
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// OptionError 选项取值不合法
type OptionError struct {
	Format FormatID
	Key    string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("格式 %s 的选项 %s 无效: %s", e.Format, e.Key, e.Reason)
}

// ResolveOptions 按选项定义校验用户输入并补齐默认值
// 未声明的键会被丢弃
func ResolveOptions(id FormatID, input Options) (Options, error) {
	d, ok := Get(id)
	if !ok {
		return nil, fmt.Errorf("未知格式: %s", id)
	}

	resolved := make(Options, len(d.OptionSchema))
	for _, spec := range d.OptionSchema {
		raw, present := input[spec.Key]
		if !present || raw == nil {
			resolved[spec.Key] = spec.Default
			continue
		}

		switch spec.Type {
		case OptionInt:
			n, ok := toInt(raw)
			if !ok {
				return nil, &OptionError{Format: id, Key: spec.Key, Reason: "需要整数"}
			}
			if n < spec.Min || n > spec.Max {
				return nil, &OptionError{Format: id, Key: spec.Key, Reason: fmt.Sprintf("取值范围 %d-%d", spec.Min, spec.Max)}
			}
			resolved[spec.Key] = n
		case OptionEnum:
			s, ok := raw.(string)
			if !ok || !contains(spec.Choices, s) {
				return nil, &OptionError{Format: id, Key: spec.Key, Reason: fmt.Sprintf("可选值 %v", spec.Choices)}
			}
			resolved[spec.Key] = s
		case OptionBool:
			b, ok := raw.(bool)
			if !ok {
				return nil, &OptionError{Format: id, Key: spec.Key, Reason: "需要布尔值"}
			}
			resolved[spec.Key] = b
		}
	}
	return resolved, nil
}

// DefaultOptions 返回格式的默认选项
func DefaultOptions(id FormatID) Options {
	opts, err := ResolveOptions(id, nil)
	if err != nil {
		return Options{}
	}
	return opts
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
