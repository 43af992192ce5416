package aiinterface

import (
	"context"
	"errors"
)

// ErrSchemaMismatch 模型响应无法满足请求的 JSON Schema
var ErrSchemaMismatch = errors.New("模型响应不符合 JSON Schema")

// Message 消息结构
type Message struct {
	Role    string `json:"role"`    // system, user, assistant
	Content string `json:"content"` // 消息内容
}

// Usage Token 使用情况
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`     // 输入 Token 数
	CompletionTokens int `json:"completion_tokens"` // 输出 Token 数
	TotalTokens      int `json:"total_tokens"`      // 总 Token 数
}

// StructuredRequest 结构化生成请求
type StructuredRequest struct {
	Messages    []Message      `json:"messages"`
	SchemaName  string         `json:"schema_name"` // Schema 名称（仅字母数字下划线）
	Schema      map[string]any `json:"schema"`      // JSON Schema
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens"`
}

// StructuredResponse 结构化生成响应
type StructuredResponse struct {
	Model  string         `json:"model"`
	Object map[string]any `json:"object"` // 解析后的 JSON 对象
	Raw    string         `json:"raw"`    // 原始响应文本
	Usage  Usage          `json:"usage"`
}

// TextGenerator 文本生成服务
// 响应无法满足 Schema 时返回的错误必须可以用 errors.Is(err, ErrSchemaMismatch) 识别
type TextGenerator interface {
	GenerateStructured(ctx context.Context, req *StructuredRequest) (*StructuredResponse, error)
}

// ImageRequest 图片生成请求
type ImageRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"` // 如 1024x1024
	Style  string `json:"style,omitempty"`
}

// ImageGenerator 图片生成服务，返回媒体 URL
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *ImageRequest) (string, error)
}

// ClientConfig 客户端配置
type ClientConfig struct {
	Provider   string // 提供商
	APIKey     string // API Key
	BaseURL    string // 基础 URL
	Model      string // 文本模型
	ImageModel string // 图片模型
	OrgID      string // 组织 ID（OpenAI）
	MaxRetries int    // 最大重试次数
	Timeout    int    // 超时时间（秒）
}

// ErrorType 错误类型
type ErrorType string

const (
	ErrorTypeAuth           ErrorType = "auth"            // 认证错误
	ErrorTypeRateLimit      ErrorType = "rate_limit"      // 速率限制
	ErrorTypeInvalidParams  ErrorType = "invalid_params"  // 参数错误
	ErrorTypeServerError    ErrorType = "server_error"    // 服务器错误
	ErrorTypeNetwork        ErrorType = "network"         // 网络错误
	ErrorTypeSchemaMismatch ErrorType = "schema_mismatch" // 响应不符合 Schema
	ErrorTypeUnknown        ErrorType = "unknown"         // 未知错误
)

// ClientError 客户端错误
type ClientError struct {
	Type    ErrorType // 错误类型
	Message string    // 错误消息
	Err     error     // 原始错误
}

// Error 实现 error 接口
func (e *ClientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 返回原始错误
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is Schema 不匹配的客户端错误等同于 ErrSchemaMismatch
func (e *ClientError) Is(target error) bool {
	return target == ErrSchemaMismatch && e.Type == ErrorTypeSchemaMismatch
}

// IsRetryable 判断错误是否可重试
func (e *ClientError) IsRetryable() bool {
	return e.Type == ErrorTypeRateLimit || e.Type == ErrorTypeNetwork || e.Type == ErrorTypeServerError
}
