package template

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

// packFile 模板包文件结构
type packFile struct {
	Templates map[string]*packTemplate `yaml:"templates"`
}

type packTemplate struct {
	Name         string         `yaml:"name"`
	Formats      []string       `yaml:"formats"`
	Placeholders []Placeholder  `yaml:"placeholders"`
	BaseScene    map[string]any `yaml:"base_scene"`
}

// LoadFile 从 YAML 文件加载模板包
func LoadFile(path string) ([]*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取模板包失败: %w", err)
	}
	return Parse(data)
}

// LoadDirectory 加载目录下全部 *.yaml 模板包
func LoadDirectory(dir string) ([]*Template, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("遍历模板目录失败: %w", err)
	}
	var all []*Template
	for _, file := range files {
		list, err := LoadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(file), err)
		}
		all = append(all, list...)
	}
	return all, nil
}

// Parse 解析模板包内容
func Parse(data []byte) ([]*Template, error) {
	var pack packFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("解析模板包失败: %w", err)
	}

	ids := make([]string, 0, len(pack.Templates))
	for id := range pack.Templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Template, 0, len(ids))
	for _, id := range ids {
		pt := pack.Templates[id]
		if pt == nil {
			continue
		}
		if err := validatePlaceholders(pt.Placeholders); err != nil {
			return nil, fmt.Errorf("模板 %s: %w", id, err)
		}
		scene := datatypes.JSON("{}")
		if pt.BaseScene != nil {
			raw, err := json.Marshal(pt.BaseScene)
			if err != nil {
				return nil, fmt.Errorf("模板 %s 场景数据无法序列化: %w", id, err)
			}
			scene = datatypes.JSON(raw)
		}
		out = append(out, &Template{
			ID:           id,
			Name:         pt.Name,
			FormatIDs:    pt.Formats,
			Placeholders: pt.Placeholders,
			BaseScene:    scene,
		})
	}
	return out, nil
}
