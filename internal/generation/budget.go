package generation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// PromptBudget 限制拼入提示词的背景资料长度（按 Token 计）
// nil 值不做任何裁剪
type PromptBudget struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
}

// NewPromptBudget 按模型选择编码；未识别的模型回退到 cl100k_base
func NewPromptBudget(model string, maxTokens int) (*PromptBudget, error) {
	if maxTokens <= 0 {
		return nil, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("加载 tiktoken 编码失败: %w", err)
		}
	}
	return &PromptBudget{enc: enc, maxTokens: maxTokens}, nil
}

// Count 计算文本 Token 数
func (b *PromptBudget) Count(text string) int {
	if b == nil {
		return 0
	}
	return len(b.enc.Encode(text, nil, nil))
}

// Trim 超出预算时截断到预算长度
func (b *PromptBudget) Trim(text string) string {
	if b == nil || text == "" {
		return text
	}
	tokens := b.enc.Encode(text, nil, nil)
	if len(tokens) <= b.maxTokens {
		return text
	}
	return b.enc.Decode(tokens[:b.maxTokens])
}
