package content

import (
	"encoding/json"

	"contentstudio/internal/catalog"
)

// Set 按格式保存的生成内容
type Set map[catalog.FormatID]Content

// MarshalJSON 每个值以信封形式输出
func (s Set) MarshalJSON() ([]byte, error) {
	out := make(map[catalog.FormatID]json.RawMessage, len(s))
	for id, c := range s {
		if c == nil {
			continue
		}
		data, err := Marshal(c)
		if err != nil {
			return nil, err
		}
		out[id] = data
	}
	return json.Marshal(out)
}

// UnmarshalJSON 解析信封映射
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw map[catalog.FormatID]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Set, len(raw))
	for id, v := range raw {
		if string(v) == "null" {
			continue
		}
		c, err := Unmarshal(v)
		if err != nil {
			return err
		}
		out[id] = c
	}
	*s = out
	return nil
}
