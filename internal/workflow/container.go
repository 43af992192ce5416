package workflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"

	"github.com/google/uuid"
)

var (
	ErrFormatNotSelected = errors.New("格式未被选择")
	ErrUnknownFormat     = errors.New("未知的格式")
	ErrInvalidMethod     = errors.New("无效的视觉方式")
	ErrContentKind       = errors.New("内容类型与格式不匹配")
)

// StepError 无法进入目标步骤
type StepError struct {
	From Step
	To   Step
}

func (e *StepError) Error() string {
	return fmt.Sprintf("无法从 %s 进入 %s", e.From, e.To)
}

// ChangeOp 变更类型
type ChangeOp string

const (
	OpIdeaUpdated      ChangeOp = "idea_updated"
	OpFormatSelected   ChangeOp = "format_selected"
	OpFormatRemoved    ChangeOp = "format_removed"
	OpContentChanged   ChangeOp = "content_changed"
	OpVisualChanged    ChangeOp = "visual_changed"
	OpEditorChanged    ChangeOp = "editor_changed"
	OpStepChanged      ChangeOp = "step_changed"
	OpPublishCompleted ChangeOp = "publish_completed"
)

// Change 一次状态变更的描述
type Change struct {
	Op     ChangeOp
	Format catalog.FormatID
	Step   Step
}

// Observer 变更观察者，在释放锁之后调用
type Observer func(Change)

// IdeaInput 创建或更新想法的字段
type IdeaInput struct {
	OriginalInput     string  `json:"originalInput"`
	ResearchData      string  `json:"researchData"`
	AdditionalContext string  `json:"additionalContext"`
	Instructions      string  `json:"instructions"`
	BrandID           *string `json:"brandId"`
}

// Container 持有一条 IdeaRecord 并提供全部变更操作
// 同一时间只有一个编辑会话持有它
type Container struct {
	mu        sync.RWMutex
	rec       *IdeaRecord
	observers []Observer
}

// NewIdea 以 idea_development 步骤创建新记录
func NewIdea(input IdeaInput) *Container {
	rec := &IdeaRecord{
		ID:                uuid.NewString(),
		OriginalInput:     input.OriginalInput,
		ResearchData:      input.ResearchData,
		AdditionalContext: input.AdditionalContext,
		Instructions:      input.Instructions,
		BrandID:           input.BrandID,
		CurrentStep:       StepIdeaDevelopment,
	}
	return Restore(rec)
}

// Restore 从已持久化的记录恢复会话
func Restore(rec *IdeaRecord) *Container {
	rec = rec.Clone()
	rec.ensureMaps()
	rec.Status = DeriveStatus(rec)
	return &Container{rec: rec}
}

// Observe 注册变更观察者
func (c *Container) Observe(fn Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// ID 记录 ID
func (c *Container) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rec.ID
}

// Snapshot 返回记录的深拷贝
func (c *Container) Snapshot() *IdeaRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rec.Clone()
}

// CurrentStep 当前步骤
func (c *Container) CurrentStep() Step {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rec.CurrentStep
}

// mutate 在写锁内修改记录，成功后刷新状态并通知观察者
func (c *Container) mutate(change Change, fn func(r *IdeaRecord) error) error {
	return c.mutateChange(&change, fn)
}

// mutateChange fn 可以在持锁期间补全 change
func (c *Container) mutateChange(change *Change, fn func(r *IdeaRecord) error) error {
	c.mu.Lock()
	if err := fn(c.rec); err != nil {
		c.mu.Unlock()
		return err
	}
	c.rec.Status = DeriveStatus(c.rec)
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	for _, obs := range observers {
		obs(*change)
	}
	return nil
}

// UpdateIdea 更新想法元数据
func (c *Container) UpdateIdea(input IdeaInput) error {
	return c.mutate(Change{Op: OpIdeaUpdated}, func(r *IdeaRecord) error {
		r.OriginalInput = input.OriginalInput
		r.ResearchData = input.ResearchData
		r.AdditionalContext = input.AdditionalContext
		r.Instructions = input.Instructions
		r.BrandID = input.BrandID
		return nil
	})
}

// SelectFormat 选择格式（已选时更新模板与选项，保持原有顺序）
// templateID 为空表示不绑定模板
func (c *Container) SelectFormat(id catalog.FormatID, templateID string, opts catalog.Options) error {
	desc, ok := catalog.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFormat, id)
	}
	resolved, err := catalog.ResolveOptions(id, opts)
	if err != nil {
		return err
	}
	return c.mutate(Change{Op: OpFormatSelected, Format: id}, func(r *IdeaRecord) error {
		if !r.IsSelected(id) {
			r.SelectedFormats = append(r.SelectedFormats, id)
		}
		if templateID != "" && desc.NeedsTemplate {
			r.FormatTemplates[id] = templateID
		} else {
			delete(r.FormatTemplates, id)
		}
		r.FormatOptions[id] = resolved
		return nil
	})
}

// RemoveFormat 取消选择并级联删除该格式的全部状态
func (c *Container) RemoveFormat(id catalog.FormatID) error {
	return c.mutate(Change{Op: OpFormatRemoved, Format: id}, func(r *IdeaRecord) error {
		if !r.IsSelected(id) {
			return fmt.Errorf("%w: %s", ErrFormatNotSelected, id)
		}
		kept := r.SelectedFormats[:0:0]
		for _, f := range r.SelectedFormats {
			if f != id {
				kept = append(kept, f)
			}
		}
		r.SelectedFormats = kept
		purgeFormat(r, id)
		return nil
	})
}

func purgeFormat(r *IdeaRecord, id catalog.FormatID) {
	delete(r.FormatTemplates, id)
	delete(r.FormatOptions, id)
	delete(r.GeneratedText, id)
	delete(r.VisualSetup, id)
	delete(r.GeneratedVisuals, id)
	delete(r.EditorScenes, id)
	delete(r.History, id)
}

// FormatPlan 生成时所需的单个格式配置
type FormatPlan struct {
	Format     catalog.FormatID
	TemplateID string
	Options    catalog.Options
}

// Plans 按选择顺序返回格式配置
func (c *Container) Plans() []FormatPlan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	plans := make([]FormatPlan, 0, len(c.rec.SelectedFormats))
	for _, id := range c.rec.SelectedFormats {
		plans = append(plans, FormatPlan{
			Format:     id,
			TemplateID: c.rec.FormatTemplates[id],
			Options:    c.rec.FormatOptions[id].Clone(),
		})
	}
	return plans
}

// Plan 单个格式的配置
func (c *Container) Plan(id catalog.FormatID) (FormatPlan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.rec.IsSelected(id) {
		return FormatPlan{}, fmt.Errorf("%w: %s", ErrFormatNotSelected, id)
	}
	return FormatPlan{
		Format:     id,
		TemplateID: c.rec.FormatTemplates[id],
		Options:    c.rec.FormatOptions[id].Clone(),
	}, nil
}

// Content 读取格式当前的生成内容
func (c *Container) Content(id catalog.FormatID) (content.Content, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.rec.GeneratedText[id]
	return v, ok && v != nil
}

// PutContent 写入格式的生成内容；格式已被移除时返回 ErrFormatNotSelected
// 内容变体必须与格式当前的生成结构一致，话题标签统一去掉 #
func (c *Container) PutContent(id catalog.FormatID, v content.Content) error {
	return c.mutate(Change{Op: OpContentChanged, Format: id}, func(r *IdeaRecord) error {
		if !r.IsSelected(id) {
			return fmt.Errorf("%w: %s", ErrFormatNotSelected, id)
		}
		if v == nil {
			return fmt.Errorf("%w: 内容为空", ErrContentKind)
		}
		desc, ok := catalog.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFormat, id)
		}
		want := ContentKindFor(desc.ResolveCategory(r.FormatTemplates[id] != ""))
		if v.Kind() != want {
			return fmt.Errorf("%w: 格式 %s 需要 %s，收到 %s", ErrContentKind, id, want, v.Kind())
		}
		r.GeneratedText[id] = content.NormalizeTags(v)
		return nil
	})
}

// ContentKindFor 格式类别对应的内容变体
func ContentKindFor(cat catalog.Category) content.Kind {
	switch cat {
	case catalog.CategoryCarousel:
		return content.KindCarousel
	case catalog.CategoryThread:
		return content.KindThread
	case catalog.CategoryTemplateDriven:
		return content.KindTemplateFields
	}
	return content.KindSimple
}

// SpliceContent 只替换目标路径的值；expected 用于检测期间是否被其他操作改写
func (c *Container) SpliceContent(id catalog.FormatID, expected content.Content, next content.Content, entry *RegenerationEntry) error {
	return c.mutate(Change{Op: OpContentChanged, Format: id}, func(r *IdeaRecord) error {
		if !r.IsSelected(id) {
			return fmt.Errorf("%w: %s", ErrFormatNotSelected, id)
		}
		if expected != nil && r.GeneratedText[id] != expected {
			return fmt.Errorf("格式 %s 的内容已被修改，请重试", id)
		}
		r.GeneratedText[id] = next
		if entry != nil {
			history := append(r.History[id], *entry)
			if len(history) > MaxHistoryPerFormat {
				history = history[len(history)-MaxHistoryPerFormat:]
			}
			r.History[id] = history
		}
		return nil
	})
}

// VisualSetupOf 读取格式的视觉设置（拷贝）
func (c *Container) VisualSetupOf(id catalog.FormatID) *VisualSetup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rec.VisualSetup[id].Clone()
}

// SetVisualMethod 选择视觉方式；切换方式会清空该格式此前的映射、素材池与生成结果
func (c *Container) SetVisualMethod(id catalog.FormatID, method VisualMethod, style string) error {
	if !method.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	return c.mutate(Change{Op: OpVisualChanged, Format: id}, func(r *IdeaRecord) error {
		if !r.IsSelected(id) {
			return fmt.Errorf("%w: %s", ErrFormatNotSelected, id)
		}
		cur := r.VisualSetup[id]
		if cur != nil && cur.Method == method {
			cur.Style = style
			return nil
		}
		r.VisualSetup[id] = &VisualSetup{
			Method:             method,
			Style:              style,
			PlaceholderMapping: map[string]string{},
			UploadedURLs:       []string{},
		}
		delete(r.GeneratedVisuals, id)
		return nil
	})
}

// UpdateVisuals 在指定方式下修改视觉设置与生成结果
func (c *Container) UpdateVisuals(id catalog.FormatID, method VisualMethod, fn func(v *VisualSetup, generated []string) []string) error {
	return c.mutate(Change{Op: OpVisualChanged, Format: id}, func(r *IdeaRecord) error {
		if !r.IsSelected(id) {
			return fmt.Errorf("%w: %s", ErrFormatNotSelected, id)
		}
		v := r.VisualSetup[id]
		if v == nil || v.Method != method {
			return fmt.Errorf("格式 %s 当前视觉方式不是 %s", id, method)
		}
		if v.PlaceholderMapping == nil {
			v.PlaceholderMapping = map[string]string{}
		}
		generated := fn(v, r.GeneratedVisuals[id])
		if generated != nil {
			r.GeneratedVisuals[id] = generated
		}
		return nil
	})
}

// SetEditorScene 保存交互式设计结果
func (c *Container) SetEditorScene(id catalog.FormatID, scene EditorScene) error {
	return c.mutate(Change{Op: OpEditorChanged, Format: id}, func(r *IdeaRecord) error {
		if !r.IsSelected(id) {
			return fmt.Errorf("%w: %s", ErrFormatNotSelected, id)
		}
		r.EditorScenes[id] = &scene
		return nil
	})
}

// GoTo 进入目标步骤：允许前进一步或回到任何已访问步骤，不丢弃任何状态
func (c *Container) GoTo(target Step) error {
	return c.mutate(Change{Op: OpStepChanged, Step: target}, func(r *IdeaRecord) error {
		if !CanEnter(r, target) {
			return &StepError{From: r.CurrentStep, To: target}
		}
		enterStep(r, target)
		return nil
	})
}

// Advance 前进到下一步
func (c *Container) Advance() (Step, error) {
	change := Change{Op: OpStepChanged}
	err := c.mutateChange(&change, func(r *IdeaRecord) error {
		next, ok := NextStep(r)
		if !ok {
			return &StepError{From: r.CurrentStep, To: r.CurrentStep}
		}
		enterStep(r, next)
		change.Step = next
		return nil
	})
	return change.Step, err
}

func enterStep(r *IdeaRecord, target Step) {
	r.CurrentStep = target
	for _, s := range r.VisitedSteps {
		if s == target {
			return
		}
	}
	r.VisitedSteps = append(r.VisitedSteps, target)
}

// CompletePublish 记录发布的最终结果并进入 publish 步骤
func (c *Container) CompletePublish(outcome Status, posts []PostRecord, scheduledAt *time.Time) error {
	return c.mutate(Change{Op: OpPublishCompleted, Step: StepPublish}, func(r *IdeaRecord) error {
		switch outcome {
		case StatusPosted, StatusScheduled, "":
		default:
			return fmt.Errorf("无效的发布结果状态: %s", outcome)
		}
		enterStep(r, StepPublish)
		switch {
		case outcome != "":
			r.PublishOutcome = outcome
		case r.PublishOutcome == StatusScheduled:
			// 到期执行全部失败，排期状态不再成立
			r.PublishOutcome = ""
		}
		r.Posts = append(r.Posts, posts...)
		r.ScheduledAt = scheduledAt
		return nil
	})
}
