package ideas

import (
	"encoding/json"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/internal/generation"
	"contentstudio/internal/studio"
	"contentstudio/internal/workflow"
)

// SelectFormatsRequest 格式选择请求
type SelectFormatsRequest struct {
	Formats []studio.Selection `json:"formats"`
}

// RegenerateRequest 局部重新生成请求
type RegenerateRequest struct {
	Format   catalog.FormatID `json:"format" binding:"required"`
	Target   string           `json:"target"`
	Feedback string           `json:"feedback"`
}

// VisualMethodRequest 视觉方式选择
type VisualMethodRequest struct {
	Method workflow.VisualMethod `json:"method" binding:"required"`
	Style  string                `json:"style"`
}

// AssignMediaRequest 绑定已有媒体 URL
type AssignMediaRequest struct {
	PlaceholderID string `json:"placeholderId"`
	URL           string `json:"url" binding:"required"`
}

// StepRequest 步骤导航；Advance 为 true 时忽略 Step
type StepRequest struct {
	Step    workflow.Step `json:"step"`
	Advance bool          `json:"advance"`
}

// FormatOutcome 单个格式的生成结果
type FormatOutcome struct {
	Format  catalog.FormatID `json:"format"`
	Content json.RawMessage  `json:"content,omitempty"` // {kind, data} 信封
	Error   string           `json:"error,omitempty"`
	Dropped bool             `json:"dropped,omitempty"`
}

// GenerateResponse 整体生成结果
type GenerateResponse struct {
	Results []FormatOutcome     `json:"results"`
	Idea    *workflow.IdeaRecord `json:"idea"`
}

func newGenerateResponse(report *generation.Report, rec *workflow.IdeaRecord) GenerateResponse {
	resp := GenerateResponse{Idea: rec, Results: make([]FormatOutcome, 0, len(report.Results))}
	for _, res := range report.Results {
		out := FormatOutcome{Format: res.Format, Dropped: res.Dropped}
		if res.Content != nil {
			out.Content, _ = content.Marshal(res.Content)
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		resp.Results = append(resp.Results, out)
	}
	return resp
}

// RegenerateResponse 重新生成结果
type RegenerateResponse struct {
	Entry *workflow.RegenerationEntry `json:"entry"`
	Idea  *workflow.IdeaRecord         `json:"idea"`
}

// VisualsResponse 生成的图片
type VisualsResponse struct {
	URLs  []string `json:"urls"`
	Error string   `json:"error,omitempty"`
}
