package ideas

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"contentstudio/api/handlers/common"
	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/internal/logger"
	"contentstudio/internal/platform"
	"contentstudio/internal/publish"
	"contentstudio/internal/studio"
	"contentstudio/internal/workflow"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionService 会话管理
type SessionService interface {
	Create(ctx context.Context, input workflow.IdeaInput) (*studio.Session, error)
	Open(ctx context.Context, id string) (*studio.Session, error)
	Close(ctx context.Context, id string) error
}

// PostManager 已发布帖子的查询与删除
type PostManager interface {
	Status(ctx context.Context, p catalog.PlatformID, postID string) (*platform.PostStatus, error)
	Delete(ctx context.Context, p catalog.PlatformID, postID string) (bool, error)
}

// PublishLogReader 发布日志查询
type PublishLogReader interface {
	ListByIdea(ctx context.Context, ideaID string) ([]publish.LogEntry, error)
}

// IdeaHandler 想法工作流 Handler
type IdeaHandler struct {
	sessions SessionService
	posts    PostManager
	logs     PublishLogReader
	logger   *zap.Logger
}

// NewIdeaHandler 创建 IdeaHandler；posts 和 logs 可为 nil
func NewIdeaHandler(sessions SessionService, posts PostManager, logs PublishLogReader, logger *zap.Logger) *IdeaHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdeaHandler{sessions: sessions, posts: posts, logs: logs, logger: logger}
}

// open 打开路径中的会话，失败时已写入响应
func (h *IdeaHandler) open(c *gin.Context) (*studio.Session, bool) {
	id := c.Param("id")
	c.Request = c.Request.WithContext(logger.WithIdeaID(c.Request.Context(), id))
	sess, err := h.sessions.Open(c.Request.Context(), id)
	if err != nil {
		common.FromError(c, err)
		return nil, false
	}
	return sess, true
}

// CreateIdea 创建想法
// POST /api/v1/ideas
func (h *IdeaHandler) CreateIdea(c *gin.Context) {
	var input workflow.IdeaInput
	if err := c.ShouldBindJSON(&input); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	if input.OriginalInput == "" {
		common.BadRequest(c, "originalInput 不能为空")
		return
	}
	sess, err := h.sessions.Create(c.Request.Context(), input)
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Created(c, sess.Record())
}

// GetIdea 查询想法当前状态
// GET /api/v1/ideas/:id
func (h *IdeaHandler) GetIdea(c *gin.Context) {
	sess, ok := h.open(c)
	if !ok {
		return
	}
	common.OK(c, sess.Record())
}

// UpdateIdea 修改想法输入
// PUT /api/v1/ideas/:id
func (h *IdeaHandler) UpdateIdea(c *gin.Context) {
	var input workflow.IdeaInput
	if err := c.ShouldBindJSON(&input); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	sess, ok := h.open(c)
	if !ok {
		return
	}
	if err := sess.UpdateIdea(input); err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, sess.Record())
}

// CloseSession 保存并关闭编辑会话
// DELETE /api/v1/ideas/:id/session
func (h *IdeaHandler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
		common.FromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Flush 立即保存
// POST /api/v1/ideas/:id/flush
func (h *IdeaHandler) Flush(c *gin.Context) {
	sess, ok := h.open(c)
	if !ok {
		return
	}
	if err := sess.Flush(c.Request.Context()); err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, sess.Record())
}

// SelectFormats 替换格式选择
// PUT /api/v1/ideas/:id/formats
func (h *IdeaHandler) SelectFormats(c *gin.Context) {
	var req SelectFormatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	sess, ok := h.open(c)
	if !ok {
		return
	}
	if err := sess.SelectFormats(req.Formats); err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, sess.Record())
}

// RemoveFormat 移除单个格式
// DELETE /api/v1/ideas/:id/formats/:format
func (h *IdeaHandler) RemoveFormat(c *gin.Context) {
	sess, ok := h.open(c)
	if !ok {
		return
	}
	if err := sess.RemoveFormat(catalog.FormatID(c.Param("format"))); err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, sess.Record())
}

// Generate 生成全部格式的文案；async=true 时投递后台任务
// POST /api/v1/ideas/:id/generate
func (h *IdeaHandler) Generate(c *gin.Context) {
	sess, ok := h.open(c)
	if !ok {
		return
	}
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if err := sess.GenerateAsync(); err != nil {
			common.FromError(c, err)
			return
		}
		common.Accepted(c, "生成任务已提交", gin.H{"ideaId": sess.ID()})
		return
	}

	report, err := sess.Generate(c.Request.Context())
	if report == nil {
		common.FromError(c, err)
		return
	}
	if err != nil {
		h.logger.Warn("部分格式生成失败", zap.String("idea_id", sess.ID()), zap.Error(err))
	}
	common.OK(c, newGenerateResponse(report, sess.Record()))
}

// Regenerate 按反馈重新生成目标部分
// POST /api/v1/ideas/:id/regenerate
func (h *IdeaHandler) Regenerate(c *gin.Context) {
	var req RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	sess, ok := h.open(c)
	if !ok {
		return
	}
	entry, err := sess.Regenerate(c.Request.Context(), req.Format, req.Target, req.Feedback)
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, RegenerateResponse{Entry: entry, Idea: sess.Record()})
}

// EditContent 保存手动修改的文案，请求体为 {kind, data} 信封
// PUT /api/v1/ideas/:id/content/:format
func (h *IdeaHandler) EditContent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		common.BadRequest(c, "读取请求体失败")
		return
	}
	edited, err := content.Unmarshal(body)
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	sess, ok := h.open(c)
	if !ok {
		return
	}
	if err := sess.EditContent(catalog.FormatID(c.Param("format")), edited); err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, sess.Record())
}

// ChooseVisualMethod 选择视觉方式
// PUT /api/v1/ideas/:id/visuals/:format
func (h *IdeaHandler) ChooseVisualMethod(c *gin.Context) {
	var req VisualMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	sess, ok := h.open(c)
	if !ok {
		return
	}
	if err := sess.ChooseVisualMethod(catalog.FormatID(c.Param("format")), req.Method, req.Style); err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, sess.Record())
}

// GenerateVisuals AI 生成图片；部分失败时返回已完成的图片和错误
// POST /api/v1/ideas/:id/visuals/:format/generate
func (h *IdeaHandler) GenerateVisuals(c *gin.Context) {
	sess, ok := h.open(c)
	if !ok {
		return
	}
	urls, err := sess.GenerateVisuals(c.Request.Context(), catalog.FormatID(c.Param("format")))
	if err != nil && len(urls) == 0 {
		common.FromError(c, err)
		return
	}
	resp := VisualsResponse{URLs: urls}
	if err != nil {
		resp.Error = err.Error()
	}
	common.OK(c, resp)
}

// AttachMedia 上传文件（multipart）或绑定已有 URL（JSON）
// POST /api/v1/ideas/:id/visuals/:format/media
func (h *IdeaHandler) AttachMedia(c *gin.Context) {
	format := catalog.FormatID(c.Param("format"))

	file, err := c.FormFile("file")
	switch {
	case err == nil:
		h.upload(c, format, file)
		return
	case !errors.Is(err, http.ErrNotMultipart) && !errors.Is(err, http.ErrMissingFile):
		common.BadRequest(c, "解析上传文件失败: "+err.Error())
		return
	}

	var req AssignMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	sess, ok := h.open(c)
	if !ok {
		return
	}
	if err := sess.AssignMedia(c.Request.Context(), format, req.PlaceholderID, req.URL); err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, gin.H{"url": req.URL, "idea": sess.Record()})
}

func (h *IdeaHandler) upload(c *gin.Context, format catalog.FormatID, file *multipart.FileHeader) {
	sess, ok := h.open(c)
	if !ok {
		return
	}
	f, err := file.Open()
	if err != nil {
		common.BadRequest(c, "读取上传文件失败")
		return
	}
	defer f.Close()
	url, err := sess.UploadMedia(c.Request.Context(), format, c.PostForm("placeholderId"), file.Filename, f)
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Created(c, gin.H{"url": url, "idea": sess.Record()})
}

// SaveEditorScene 保存设计器场景
// PUT /api/v1/ideas/:id/editor/:format
func (h *IdeaHandler) SaveEditorScene(c *gin.Context) {
	var scene workflow.EditorScene
	if err := c.ShouldBindJSON(&scene); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	sess, ok := h.open(c)
	if !ok {
		return
	}
	if err := sess.SaveEditorScene(catalog.FormatID(c.Param("format")), scene); err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, sess.Record())
}

// Navigate 跳转或前进步骤
// POST /api/v1/ideas/:id/step
func (h *IdeaHandler) Navigate(c *gin.Context) {
	var req StepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	if !req.Advance && req.Step == "" {
		common.BadRequest(c, "需要 step 或 advance")
		return
	}
	sess, ok := h.open(c)
	if !ok {
		return
	}
	var err error
	if req.Advance {
		_, err = sess.Advance()
	} else {
		err = sess.GoTo(req.Step)
	}
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, sess.Record())
}

// Publish 立即发布或排期
// POST /api/v1/ideas/:id/publish
func (h *IdeaHandler) Publish(c *gin.Context) {
	var req publish.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	sess, ok := h.open(c)
	if !ok {
		return
	}
	summary, err := sess.Publish(c.Request.Context(), req)
	if err != nil {
		common.FromError(c, err)
		return
	}
	if summary.ScheduledAt != nil {
		common.Accepted(c, "已排期", summary)
		return
	}
	common.OK(c, summary)
}

// ListPosts 想法的发布日志
// GET /api/v1/ideas/:id/posts
func (h *IdeaHandler) ListPosts(c *gin.Context) {
	if h.logs == nil {
		common.OK(c, common.ListResponse{Items: []publish.LogEntry{}})
		return
	}
	entries, err := h.logs.ListByIdea(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, common.ListResponse{Items: entries, Total: len(entries)})
}

// PostStatus 查询平台上帖子的状态
// GET /api/v1/posts/:platform/:postId
func (h *IdeaHandler) PostStatus(c *gin.Context) {
	p, ok := h.platformParam(c)
	if !ok {
		return
	}
	status, err := h.posts.Status(c.Request.Context(), p, c.Param("postId"))
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, status)
}

// DeletePost 删除平台上的帖子
// DELETE /api/v1/posts/:platform/:postId
func (h *IdeaHandler) DeletePost(c *gin.Context) {
	p, ok := h.platformParam(c)
	if !ok {
		return
	}
	deleted, err := h.posts.Delete(c.Request.Context(), p, c.Param("postId"))
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": deleted})
}

func (h *IdeaHandler) platformParam(c *gin.Context) (catalog.PlatformID, bool) {
	if h.posts == nil {
		common.Fail(c, http.StatusServiceUnavailable, common.CodeUnsupported, "未配置发布服务")
		return "", false
	}
	p, ok := catalog.ParsePlatform(c.Param("platform"))
	if !ok {
		common.BadRequest(c, "未知平台: "+c.Param("platform"))
		return "", false
	}
	return p, true
}
