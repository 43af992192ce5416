package templates

import (
	"context"

	"contentstudio/api/handlers/common"
	"contentstudio/internal/template"

	"github.com/gin-gonic/gin"
)

// TemplateStore 视觉模板存储
type TemplateStore interface {
	Get(ctx context.Context, templateID string) (*template.Template, error)
	ListForFormat(ctx context.Context, formatID string) ([]*template.Template, error)
	Upsert(ctx context.Context, tmpl *template.Template) error
}

// TemplateHandler 视觉模板 Handler
type TemplateHandler struct {
	service TemplateStore
}

// NewTemplateHandler 创建 TemplateHandler 实例
func NewTemplateHandler(service TemplateStore) *TemplateHandler {
	return &TemplateHandler{service: service}
}

// ListTemplates 查询模板列表
// GET /api/v1/templates?format=carousel
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	list, err := h.service.ListForFormat(c.Request.Context(), c.Query("format"))
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, common.ListResponse{Items: list, Total: len(list)})
}

// GetTemplate 查询单个模板
// GET /api/v1/templates/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	tmpl, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, tmpl)
}

// PutTemplate 创建或覆盖模板
// PUT /api/v1/templates/:id
func (h *TemplateHandler) PutTemplate(c *gin.Context) {
	var tmpl template.Template
	if err := c.ShouldBindJSON(&tmpl); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	tmpl.ID = c.Param("id")

	if err := h.service.Upsert(c.Request.Context(), &tmpl); err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	common.OK(c, &tmpl)
}
