package generation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/internal/metrics"
	"contentstudio/internal/template"
	"contentstudio/internal/workflow"
	"contentstudio/pkg/aiinterface"

	"github.com/pmezard/go-difflib/difflib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Dispatcher 驱动整体生成与定向重新生成
type Dispatcher struct {
	text        aiinterface.TextGenerator
	templates   template.Store
	prompts     promptBuilder
	temperature float64
	maxTokens   int
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option 配置项
type Option func(*Dispatcher)

// WithBudget 设置背景资料 Token 预算
func WithBudget(b *PromptBudget) Option {
	return func(d *Dispatcher) { d.prompts.budget = b }
}

// WithTemperature 设置生成温度
func WithTemperature(t float64) Option {
	return func(d *Dispatcher) { d.temperature = t }
}

// WithMaxTokens 设置单次生成的最大输出 Token
func WithMaxTokens(n int) Option {
	return func(d *Dispatcher) { d.maxTokens = n }
}

// NewDispatcher 创建生成调度器；templates 可为 nil（不支持模板绑定）
func NewDispatcher(text aiinterface.TextGenerator, templates template.Store, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		text:        text,
		templates:   templates,
		temperature: 0.8,
		maxTokens:   2000,
		logger:      logger,
		tracer:      otel.Tracer("contentstudio/internal/generation"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FormatResult 单个格式的生成结果
type FormatResult struct {
	Format  catalog.FormatID
	Content content.Content
	Err     error
	Dropped bool // 生成期间格式已被移除，结果被丢弃
}

// Report 整体生成的汇总
type Report struct {
	Results []FormatResult
}

// Succeeded 成功写入的格式
func (r *Report) Succeeded() []catalog.FormatID {
	var out []catalog.FormatID
	for _, res := range r.Results {
		if res.Err == nil && !res.Dropped {
			out = append(out, res.Format)
		}
	}
	return out
}

// Err 合并全部失败
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// GenerateAll 按选择顺序逐个生成全部格式
// 单个格式失败不回滚已完成的格式；至少有一个格式有文案时进入 text_review
func (d *Dispatcher) GenerateAll(ctx context.Context, c *workflow.Container, progress func(FormatResult)) (*Report, error) {
	ctx, span := d.tracer.Start(ctx, "generation.GenerateAll")
	defer span.End()

	plans := c.Plans()
	span.SetAttributes(
		attribute.String("idea_id", c.ID()),
		attribute.Int("format_count", len(plans)),
	)
	if len(plans) == 0 {
		return nil, ErrNoFormats
	}
	if err := c.GoTo(workflow.StepTextGeneration); err != nil {
		return nil, err
	}

	rec := c.Snapshot()
	report := &Report{}
	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return report, err
		}

		res := FormatResult{Format: plan.Format}
		generated, err := d.generateFormat(ctx, rec, plan)
		if err != nil {
			res.Err = err
			d.logger.Warn("格式生成失败",
				zap.String("idea_id", rec.ID),
				zap.String("format", string(plan.Format)),
				zap.Error(err))
		} else if err := c.PutContent(plan.Format, generated); err != nil {
			if !errors.Is(err, workflow.ErrFormatNotSelected) {
				return report, err
			}
			res.Dropped = true
			d.logger.Info("格式已被移除，丢弃生成结果",
				zap.String("idea_id", rec.ID),
				zap.String("format", string(plan.Format)))
		} else {
			res.Content = generated
		}
		report.Results = append(report.Results, res)
		if progress != nil {
			progress(res)
		}
	}

	if c.Snapshot().HasText() {
		if err := c.GoTo(workflow.StepTextReview); err != nil {
			return report, err
		}
	}

	err := report.Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "partial failure")
	}
	return report, err
}

// GenerateFormat 生成单个格式并写入容器
func (d *Dispatcher) GenerateFormat(ctx context.Context, c *workflow.Container, format catalog.FormatID) (content.Content, error) {
	plan, err := c.Plan(format)
	if err != nil {
		return nil, err
	}
	generated, err := d.generateFormat(ctx, c.Snapshot(), plan)
	if err != nil {
		return nil, err
	}
	if err := c.PutContent(format, generated); err != nil {
		return nil, err
	}
	return generated, nil
}

func (d *Dispatcher) generateFormat(ctx context.Context, rec *workflow.IdeaRecord, plan workflow.FormatPlan) (content.Content, error) {
	desc, ok := catalog.Get(plan.Format)
	if !ok {
		return nil, &GenerationError{Format: plan.Format, Err: workflow.ErrUnknownFormat}
	}

	var tmpl *template.Template
	if plan.TemplateID != "" && d.templates != nil {
		t, err := d.templates.Get(ctx, plan.TemplateID)
		if err != nil {
			return nil, &GenerationError{Format: plan.Format, Err: err}
		}
		tmpl = t
	}

	shape := ShapeFor(desc, tmpl, plan.Options)
	messages := d.prompts.generateMessages(rec, desc, plan.Options, shape)
	obj, err := d.call(ctx, plan.Format, "full", shape.SchemaName(), shape.Schema(), messages)
	if err != nil {
		return nil, &GenerationError{Format: plan.Format, Err: err}
	}
	generated, err := shape.Decode(obj)
	if err != nil {
		return nil, &GenerationError{Format: plan.Format, Err: err}
	}
	return generated, nil
}

// Regenerate 只重新生成目标路径，其余字段保持原引用
// 格式尚无内容时退化为该格式的整体生成
func (d *Dispatcher) Regenerate(ctx context.Context, c *workflow.Container, format catalog.FormatID, rawTarget, feedback string) (*workflow.RegenerationEntry, error) {
	ctx, span := d.tracer.Start(ctx, "generation.Regenerate")
	defer span.End()
	span.SetAttributes(
		attribute.String("format", string(format)),
		attribute.String("target", rawTarget),
	)

	target, err := content.ParseTarget(rawTarget)
	if err != nil {
		return nil, err
	}
	plan, err := c.Plan(format)
	if err != nil {
		return nil, err
	}
	desc, _ := catalog.Get(format)

	current, ok := c.Content(format)
	if !ok {
		if !target.IsWhole() {
			return nil, &GenerationError{Format: format, Target: target.String(), Err: content.ErrTargetNotFound}
		}
		generated, err := d.GenerateFormat(ctx, c, format)
		if err != nil {
			return nil, err
		}
		return &workflow.RegenerationEntry{Feedback: feedback, Current: content.Text(generated), At: d.now()}, nil
	}

	value, err := content.Value(current, target)
	if err != nil {
		return nil, &GenerationError{Format: format, Target: target.String(), Err: err}
	}
	schema, decode := targetShape(current, target, value)

	rec := c.Snapshot()
	previous := content.Text(value)
	messages := d.prompts.regenerateMessages(rec, desc, plan.Options, target, previous, feedback)
	obj, err := d.call(ctx, format, "regenerate", "regeneration", schema, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, &GenerationError{Format: format, Target: target.String(), Err: err}
	}
	replacement, err := decode(obj)
	if err != nil {
		return nil, &GenerationError{Format: format, Target: target.String(), Err: err}
	}
	next, err := content.Splice(current, target, replacement)
	if err != nil {
		return nil, &GenerationError{Format: format, Target: target.String(), Err: err}
	}

	entry := &workflow.RegenerationEntry{
		Target:   target.String(),
		Feedback: feedback,
		Previous: previous,
		Current:  content.Text(replacement),
		At:       d.now(),
	}
	entry.Diff = unifiedDiff(entry.Previous, entry.Current)

	if err := c.SpliceContent(format, current, next, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (d *Dispatcher) call(ctx context.Context, format catalog.FormatID, mode, name string, schema map[string]any, messages []aiinterface.Message) (map[string]any, error) {
	var resp *aiinterface.StructuredResponse
	err := metrics.RecordGeneration(string(format), mode, func() (int, int, error) {
		r, err := d.text.GenerateStructured(ctx, &aiinterface.StructuredRequest{
			Messages:    messages,
			SchemaName:  name,
			Schema:      schema,
			Temperature: d.temperature,
			MaxTokens:   d.maxTokens,
		})
		if err != nil {
			return 0, 0, err
		}
		resp = r
		return r.Usage.PromptTokens, r.Usage.CompletionTokens, nil
	})
	if err != nil {
		return nil, err
	}
	if resp.Object == nil {
		return nil, fmt.Errorf("%w: 空响应", aiinterface.ErrSchemaMismatch)
	}
	return resp.Object, nil
}

// targetShape 子目标的 Schema 与解析函数
func targetShape(current content.Content, target content.Target, value any) (map[string]any, func(map[string]any) (any, error)) {
	switch target.Kind {
	case content.TargetWhole:
		shape := ShapeFromContent(current)
		return shape.Schema(), func(obj map[string]any) (any, error) {
			return shape.Decode(obj)
		}

	case content.TargetSlide:
		slide, _ := value.(content.Slide)
		names := make([]string, 0, len(slide))
		for k := range slide {
			names = append(names, k)
		}
		sort.Strings(names)
		fields := make([]FieldSpec, 0, len(names))
		for _, n := range names {
			fields = append(fields, FieldSpec{Name: n, Label: n, Headline: IsHeadline(n, "")})
		}
		schema := objectSchema(prop{"slide", objectSchema(fieldProperties(fields)...)})
		return schema, func(obj map[string]any) (any, error) {
			m, ok := obj["slide"].(map[string]any)
			if !ok {
				return nil, mismatch("缺少字段 slide")
			}
			decoded, err := decodeFields(m, fields)
			if err != nil {
				return nil, err
			}
			return content.Slide(decoded), nil
		}

	default:
		key := "text"
		desc := "Rewritten text"
		switch target.Kind {
		case content.TargetTweet:
			key, desc = "tweet", "One tweet, at most 280 characters"
		case content.TargetCaption:
			key, desc = "caption", "Post caption"
		case content.TargetField:
			key = target.Field
			if IsHeadline(target.Field, "") {
				desc = fmt.Sprintf("Short, high-impact on-image text, at most %d words", HeadlineMaxWords)
			}
		}
		schema := objectSchema(prop{key, stringSchema(desc)})
		headline := target.Kind == content.TargetField && IsHeadline(target.Field, "")
		return schema, func(obj map[string]any) (any, error) {
			s, err := requireString(obj, key)
			if err != nil {
				return nil, err
			}
			if headline {
				s = limitWords(s, HeadlineMaxWords)
			}
			return s, nil
		}
	}
}

func unifiedDiff(previous, current string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(previous),
		B:        difflib.SplitLines(current),
		FromFile: "previous",
		ToFile:   "current",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return diff
}
