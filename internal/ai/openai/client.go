package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"contentstudio/pkg/aiinterface"

	openai "github.com/sashabaranov/go-openai"
)

// Client OpenAI 客户端适配器，同时提供结构化文本生成与图片生成
type Client struct {
	client     *openai.Client
	modelID    string
	imageModel string
	maxRetries int
	backoff    func(attempt int) time.Duration
}

// NewClient 创建 OpenAI 客户端
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeAuth,
			Message: "OpenAI API Key 不能为空",
		}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(config.Timeout) * time.Second}
	}

	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	model := config.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	imageModel := config.ImageModel
	if imageModel == "" {
		imageModel = openai.CreateImageModelDallE3
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		modelID:    model,
		imageModel: imageModel,
		maxRetries: maxRetries,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}, nil
}

// schemaMarshaler 让 map 形式的 Schema 满足 json.Marshaler
type schemaMarshaler map[string]any

func (s schemaMarshaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// GenerateStructured 以 json_schema 响应格式调用对话补全
func (c *Client) GenerateStructured(ctx context.Context, req *aiinterface.StructuredRequest) (*aiinterface.StructuredResponse, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	name := req.SchemaName
	if name == "" {
		name = "content"
	}
	openaiReq := openai.ChatCompletionRequest{
		Model:       c.modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: schemaMarshaler(req.Schema),
				Strict: true,
			},
		},
	}

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, openaiReq)
		return callErr
	})
	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeServerError,
			Message: "API 返回空响应",
		}
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeSchemaMismatch,
			Message: "模型拒绝生成: " + choice.Message.Refusal,
		}
	}
	if choice.FinishReason == openai.FinishReasonLength {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeSchemaMismatch,
			Message: "响应被截断",
		}
	}

	raw := choice.Message.Content
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeSchemaMismatch,
			Message: "响应不是合法的 JSON 对象",
			Err:     err,
		}
	}

	return &aiinterface.StructuredResponse{
		Model:  resp.Model,
		Object: obj,
		Raw:    raw,
		Usage: aiinterface.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// GenerateImage 生成单张图片并返回 URL
func (c *Client) GenerateImage(ctx context.Context, req *aiinterface.ImageRequest) (string, error) {
	prompt := req.Prompt
	if req.Style != "" {
		prompt = fmt.Sprintf("%s\n\nStyle: %s", prompt, req.Style)
	}
	size := req.Size
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}

	imageReq := openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageModel,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	}

	var resp openai.ImageResponse
	err := c.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = c.client.CreateImage(ctx, imageReq)
		return callErr
	})
	if err != nil {
		return "", wrapError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeServerError,
			Message: "图片 API 未返回 URL",
		}
	}
	return resp.Data[0].URL, nil
}

// Name 返回客户端名称
func (c *Client) Name() string {
	return "openai"
}

// withRetry 可重试错误按指数退避重试
func (c *Client) withRetry(ctx context.Context, call func() error) error {
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		err = call()
		if err == nil || !isRetryableError(err) {
			return err
		}
		if i < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(i)):
			}
		}
	}
	return err
}

// statusCode 提取 HTTP 状态码
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch code := statusCode(err); {
	case code == http.StatusTooManyRequests, code >= 500:
		return true
	case code != 0:
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection")
}

// wrapError 包装错误
func wrapError(err error) *aiinterface.ClientError {
	var errType aiinterface.ErrorType
	code := statusCode(err)
	msg := strings.ToLower(err.Error())
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		errType = aiinterface.ErrorTypeAuth
	case code == http.StatusTooManyRequests:
		errType = aiinterface.ErrorTypeRateLimit
	case code == http.StatusBadRequest:
		errType = aiinterface.ErrorTypeInvalidParams
	case code >= 500:
		errType = aiinterface.ErrorTypeServerError
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection"):
		errType = aiinterface.ErrorTypeNetwork
	default:
		errType = aiinterface.ErrorTypeUnknown
	}

	return &aiinterface.ClientError{
		Type:    errType,
		Message: "OpenAI API 错误",
		Err:     err,
	}
}
