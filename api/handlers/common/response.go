package common

import (
	"errors"
	"net/http"

	"contentstudio/internal/catalog"
	"contentstudio/internal/generation"
	"contentstudio/internal/logger"
	"contentstudio/internal/persistence"
	"contentstudio/internal/platform"
	"contentstudio/internal/publish"
	"contentstudio/internal/studio"
	"contentstudio/internal/template"
	"contentstudio/internal/visual"
	"contentstudio/internal/workflow"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 错误码
const (
	CodeBadRequest    = "bad_request"
	CodeNotFound      = "not_found"
	CodeConflict      = "conflict"
	CodeInvalidOption = "invalid_option"
	CodeInvalidStep   = "invalid_step"
	CodeValidation    = "validation_failed"
	CodeGeneration    = "generation_failed"
	CodeUnsupported   = "unsupported"
	CodeUpstream      = "upstream_error"
	CodeInternal      = "internal_error"
)

// OK 200 成功响应
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// Created 201 成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// Accepted 202 已受理
func Accepted(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusAccepted, APIResponse{Success: true, Message: message, Data: data})
}

// Fail 写入错误响应并中止
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Success: false, Code: code, Message: message})
}

// BadRequest 400
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, CodeBadRequest, message)
}

// FromError 按领域错误类型映射 HTTP 状态
func FromError(c *gin.Context, err error) {
	status, code := Classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), nil).Error("请求处理失败",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	Fail(c, status, code, err.Error())
}

// Classify 错误到 (HTTP 状态, 错误码) 的映射
func Classify(err error) (int, string) {
	var (
		optErr     *catalog.OptionError
		stepErr    *workflow.StepError
		valErr     *publish.ValidationError
		genErr     *generation.GenerationError
		capErr     *platform.CapabilityError
		platErr    *platform.UnsupportedPlatformError
		refreshErr *platform.TokenRefreshError
	)
	switch {
	case errors.Is(err, studio.ErrSessionNotFound),
		errors.Is(err, persistence.ErrRecordNotFound),
		errors.Is(err, template.ErrTemplateNotFound),
		errors.Is(err, platform.ErrConnectionNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, studio.ErrSessionClosed):
		return http.StatusConflict, CodeConflict
	case errors.As(err, &optErr):
		return http.StatusBadRequest, CodeInvalidOption
	case errors.As(err, &stepErr):
		return http.StatusConflict, CodeInvalidStep
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity, CodeValidation
	case errors.Is(err, workflow.ErrUnknownFormat),
		errors.Is(err, generation.ErrNoFormats),
		errors.Is(err, workflow.ErrFormatNotSelected),
		errors.Is(err, workflow.ErrInvalidMethod),
		errors.Is(err, workflow.ErrContentKind),
		errors.Is(err, visual.ErrNoVisuals),
		errors.Is(err, visual.ErrUnknownPlaceholder),
		errors.Is(err, visual.ErrUnsupportedMedia),
		errors.As(err, &platErr):
		return http.StatusBadRequest, CodeBadRequest
	case errors.As(err, &capErr):
		return http.StatusNotImplemented, CodeUnsupported
	case errors.As(err, &genErr):
		return http.StatusBadGateway, CodeGeneration
	case errors.As(err, &refreshErr):
		return http.StatusBadGateway, CodeUpstream
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
