package visual

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/internal/generation"
	"contentstudio/internal/metrics"
	"contentstudio/internal/template"
	"contentstudio/internal/workflow"
	"contentstudio/pkg/aiinterface"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrNoVisuals          = errors.New("该格式不需要视觉素材")
	ErrUnknownPlaceholder = errors.New("模板中不存在该图片占位符")
)

// Resolver 计算每个格式的视觉素材
type Resolver struct {
	images    aiinterface.ImageGenerator
	templates template.Store
	media     MediaStore
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewResolver 创建视觉解析器；templates 和 media 可为 nil
func NewResolver(images aiinterface.ImageGenerator, templates template.Store, media MediaStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		images:    images,
		templates: templates,
		media:     media,
		logger:    logger,
		tracer:    otel.Tracer("contentstudio/internal/visual"),
	}
}

// ChooseMethod 选择格式的视觉方式，纯文本格式不参与视觉解析
func (r *Resolver) ChooseMethod(c *workflow.Container, format catalog.FormatID, method workflow.VisualMethod, style string) error {
	desc, ok := catalog.Get(format)
	if !ok {
		return fmt.Errorf("%w: %s", workflow.ErrUnknownFormat, format)
	}
	if !desc.NeedsVisuals() {
		return fmt.Errorf("%w: %s", ErrNoVisuals, format)
	}
	return c.SetVisualMethod(format, method, style)
}

// Generate 按视觉需求数量调用图片生成，结果追加到 generatedVisuals
// 绑定模板有图片占位符时，第 i 张图映射到第 i 个图片占位符，多出的图片或占位符保持未映射
func (r *Resolver) Generate(ctx context.Context, c *workflow.Container, format catalog.FormatID) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "visual.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("format", string(format)))

	desc, ok := catalog.Get(format)
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrUnknownFormat, format)
	}
	if !desc.NeedsVisuals() {
		return nil, fmt.Errorf("%w: %s", ErrNoVisuals, format)
	}
	setup := c.VisualSetupOf(format)
	if setup == nil || setup.Method != workflow.MethodAIGenerate {
		return nil, fmt.Errorf("格式 %s 未选择 AI 生成方式", format)
	}
	plan, err := c.Plan(format)
	if err != nil {
		return nil, err
	}
	slots, err := r.imagePlaceholders(ctx, plan.TemplateID)
	if err != nil {
		return nil, &generation.GenerationError{Format: format, Target: "visuals", Err: err}
	}

	generated, _ := c.Content(format)
	idea := c.Snapshot().OriginalInput
	units := visualUnits(desc, generated, plan.Options)
	span.SetAttributes(attribute.Int("units", units))

	var urls []string
	var genErr error
	for i := 0; i < units; i++ {
		if err := ctx.Err(); err != nil {
			genErr = err
			break
		}
		url, err := r.images.GenerateImage(ctx, &aiinterface.ImageRequest{
			Prompt: imagePrompt(desc, generated, idea, i),
			Size:   canvasSize(desc.DefaultCanvas),
			Style:  setup.Style,
		})
		if err != nil {
			metrics.ImageGenerationsTotal.WithLabelValues(string(format), "failed").Inc()
			genErr = &generation.GenerationError{Format: format, Target: fmt.Sprintf("visual:%d", i), Err: err}
			break
		}
		metrics.ImageGenerationsTotal.WithLabelValues(string(format), "success").Inc()
		urls = append(urls, url)
	}

	if len(urls) > 0 {
		err := c.UpdateVisuals(format, workflow.MethodAIGenerate, func(v *workflow.VisualSetup, existing []string) []string {
			for i := 0; i < len(urls) && i < len(slots); i++ {
				v.PlaceholderMapping[slots[i]] = urls[i]
			}
			return append(append([]string(nil), existing...), urls...)
		})
		if err != nil {
			// 方式已切换或格式已移除，结果丢弃
			r.logger.Info("视觉生成结果已丢弃", zap.String("format", string(format)), zap.Error(err))
			return nil, err
		}
	}

	if genErr != nil {
		span.RecordError(genErr)
		span.SetStatus(codes.Error, "image generation failed")
		r.logger.Warn("视觉生成失败",
			zap.String("format", string(format)),
			zap.Int("completed", len(urls)),
			zap.Error(genErr))
		return urls, genErr
	}
	return urls, nil
}

// Assign 把已有媒体 URL 绑定到占位符，placeholderID 为空时加入素材池（按 URL 去重）
func (r *Resolver) Assign(ctx context.Context, c *workflow.Container, format catalog.FormatID, placeholderID, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("媒体 URL 不能为空")
	}
	if placeholderID != "" {
		plan, err := c.Plan(format)
		if err != nil {
			return err
		}
		slots, err := r.imagePlaceholders(ctx, plan.TemplateID)
		if err != nil {
			return err
		}
		if !contains(slots, placeholderID) {
			return fmt.Errorf("%w: %s", ErrUnknownPlaceholder, placeholderID)
		}
	}
	return c.UpdateVisuals(format, workflow.MethodUpload, func(v *workflow.VisualSetup, _ []string) []string {
		if placeholderID != "" {
			v.PlaceholderMapping[placeholderID] = url
			return nil
		}
		if !contains(v.UploadedURLs, url) {
			v.UploadedURLs = append(v.UploadedURLs, url)
		}
		return nil
	})
}

// Upload 上传文件后按 Assign 规则绑定
func (r *Resolver) Upload(ctx context.Context, c *workflow.Container, format catalog.FormatID, placeholderID, name string, file io.Reader) (string, error) {
	if r.media == nil {
		return "", errors.New("未配置素材存储")
	}
	if setup := c.VisualSetupOf(format); setup == nil || setup.Method != workflow.MethodUpload {
		return "", fmt.Errorf("格式 %s 未选择上传方式", format)
	}
	url, err := r.media.Upload(ctx, name, file)
	if err != nil {
		return "", err
	}
	if err := r.Assign(ctx, c, format, placeholderID, url); err != nil {
		return "", err
	}
	return url, nil
}

// Library 列出素材库
func (r *Resolver) Library(ctx context.Context) ([]LibraryItem, error) {
	if r.media == nil {
		return nil, nil
	}
	return r.media.List(ctx)
}

// SaveEditorScene 接收交互式设计步骤返回的场景，不解析其内容
func (r *Resolver) SaveEditorScene(c *workflow.Container, format catalog.FormatID, scene workflow.EditorScene) error {
	return c.SetEditorScene(format, scene)
}

// PlaceholderOrder 模板图片占位符顺序，未绑定模板时返回 nil
func (r *Resolver) PlaceholderOrder(ctx context.Context, templateID string) ([]string, error) {
	return r.imagePlaceholders(ctx, templateID)
}

func (r *Resolver) imagePlaceholders(ctx context.Context, templateID string) ([]string, error) {
	if templateID == "" || r.templates == nil {
		return nil, nil
	}
	tmpl, err := r.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, p := range tmpl.ImagePlaceholders() {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// visualUnits 单图 1 张；轮播按页数；视频生成 1 张封面
func visualUnits(desc catalog.Descriptor, generated content.Content, opts catalog.Options) int {
	if desc.VisualKind != catalog.VisualMultiImage {
		return 1
	}
	if carousel, ok := generated.(*content.Carousel); ok && len(carousel.Slides) > 0 {
		return len(carousel.Slides)
	}
	if n, ok := opts.Int("slide_count"); ok && n > 0 {
		return n
	}
	return 1
}

func imagePrompt(desc catalog.Descriptor, generated content.Content, idea string, i int) string {
	var sb strings.Builder
	kind := "image"
	if desc.VisualKind == catalog.VisualVideo {
		kind = "cover frame for a short vertical video"
	}
	fmt.Fprintf(&sb, "Create a %s for a social media %s.\n", kind, desc.Name)

	switch v := generated.(type) {
	case *content.Carousel:
		if i < len(v.Slides) {
			fmt.Fprintf(&sb, "Slide %d of %d:\n%s", i+1, len(v.Slides), content.Text(v.Slides[i]))
		}
	case *content.TemplateFields:
		for _, name := range v.FieldNames() {
			fmt.Fprintf(&sb, "%s: %s\n", name, v.Fields[name])
		}
	case nil:
		fmt.Fprintf(&sb, "Topic: %s\n", idea)
	default:
		fmt.Fprintf(&sb, "Post copy:\n%s\n", v.Body())
	}
	sb.WriteString("\nNo text overlays, no watermarks.")
	return sb.String()
}

func canvasSize(shape catalog.CanvasShape) string {
	switch shape {
	case catalog.CanvasPortrait, catalog.CanvasVertical:
		return "1024x1792"
	case catalog.CanvasLandscape:
		return "1792x1024"
	default:
		return "1024x1024"
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
