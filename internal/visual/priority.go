package visual

import (
	"sort"

	"contentstudio/internal/catalog"
	"contentstudio/internal/workflow"
)

// ResolveMedia 按固定优先级选出一个格式的最终媒体集合：
// 编辑器预览 > 占位符映射 > 上传素材池 > AI 生成结果
// placeholderOrder 为模板图片占位符顺序，为空时按占位符 ID 排序
func ResolveMedia(rec *workflow.IdeaRecord, format catalog.FormatID, placeholderOrder []string) []string {
	if scene := rec.EditorScenes[format]; scene != nil && scene.PreviewURL != "" {
		return []string{scene.PreviewURL}
	}

	if setup := rec.VisualSetup[format]; setup != nil {
		if urls := mappedURLs(setup.PlaceholderMapping, placeholderOrder); len(urls) > 0 {
			return urls
		}
		if len(setup.UploadedURLs) > 0 {
			return append([]string(nil), setup.UploadedURLs...)
		}
	}

	if generated := rec.GeneratedVisuals[format]; len(generated) > 0 {
		return append([]string(nil), generated...)
	}
	return nil
}

func mappedURLs(mapping map[string]string, order []string) []string {
	if len(mapping) == 0 {
		return nil
	}
	var urls []string
	used := make(map[string]bool, len(mapping))
	for _, id := range order {
		if url := mapping[id]; url != "" {
			urls = append(urls, url)
			used[id] = true
		}
	}
	// 不在模板顺序中的占位符排在后面，按 ID 排序保证确定性
	var rest []string
	for id, url := range mapping {
		if !used[id] && url != "" {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		urls = append(urls, mapping[id])
	}
	return urls
}
