package tasks

import "contentstudio/internal/publish"

// Task Types
const (
	TypeGenerate = "studio:generate"
	TypePublish  = "studio:publish"
)

// 队列名称
const (
	QueueGenerate = "generate"
	QueuePublish  = "publish"
)

// GeneratePayload 整体生成任务载荷
type GeneratePayload struct {
	IdeaID string `json:"idea_id"`
}

// PublishPayload 定时发布任务载荷
type PublishPayload struct {
	IdeaID string        `json:"idea_id"`
	Flags  publish.Flags `json:"flags"`
}

// PublishTaskID 同一想法只保留一个待执行的定时发布
func PublishTaskID(ideaID string) string {
	return "publish:" + ideaID
}
