package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"contentstudio/internal/catalog"
	"contentstudio/internal/generation"
	"contentstudio/internal/platform"
	"contentstudio/internal/publish"
	"contentstudio/internal/studio"
	"contentstudio/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"会话不存在", fmt.Errorf("open: %w", studio.ErrSessionNotFound), http.StatusNotFound, CodeNotFound},
		{"会话已关闭", studio.ErrSessionClosed, http.StatusConflict, CodeConflict},
		{"选项越界", &catalog.OptionError{Format: catalog.FormatThread, Key: "tweet_count", Reason: "out of range"}, http.StatusBadRequest, CodeInvalidOption},
		{"步骤非法", &workflow.StepError{From: workflow.StepIdeaDevelopment, To: workflow.StepPublish}, http.StatusConflict, CodeInvalidStep},
		{"校验失败", &publish.ValidationError{Format: catalog.FormatCarousel, Problems: []string{"missing media"}}, http.StatusUnprocessableEntity, CodeValidation},
		{"未选择格式", fmt.Errorf("%w: reel", workflow.ErrFormatNotSelected), http.StatusBadRequest, CodeBadRequest},
		{"内容类型不匹配", fmt.Errorf("%w: thread", workflow.ErrContentKind), http.StatusBadRequest, CodeBadRequest},
		{"生成失败", &generation.GenerationError{Format: catalog.FormatThread, Err: errors.New("timeout")}, http.StatusBadGateway, CodeGeneration},
		{"令牌刷新失败", &platform.TokenRefreshError{Platform: catalog.PlatformTwitter, Err: errors.New("401")}, http.StatusBadGateway, CodeUpstream},
		{"平台不支持", &platform.CapabilityError{Platform: catalog.PlatformTwitter, Capability: "delete"}, http.StatusNotImplemented, CodeUnsupported},
		{"未知错误", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := Classify(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestFromErrorWritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ideas/x", nil)

	FromError(c, studio.ErrSessionNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, c.IsAborted())
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, CodeNotFound, body.Code)
	assert.Equal(t, studio.ErrSessionNotFound.Error(), body.Message)
}
