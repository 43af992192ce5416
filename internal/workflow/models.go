package workflow

import (
	"time"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"

	"gorm.io/datatypes"
)

// Step 工作流步骤
type Step string

const (
	StepIdeaDevelopment Step = "idea_development"
	StepTextGeneration  Step = "text_generation"
	StepTextReview      Step = "text_review"
	StepVisualSetup     Step = "visual_setup"
	StepAIGeneration    Step = "ai_generation"
	StepEditor          Step = "editor"
	StepPublish         Step = "publish"
)

// Steps 步骤的前进顺序
var Steps = []Step{
	StepIdeaDevelopment,
	StepTextGeneration,
	StepTextReview,
	StepVisualSetup,
	StepAIGeneration,
	StepEditor,
	StepPublish,
}

// Valid 判断步骤是否合法
func (s Step) Valid() bool {
	return s.index() >= 0
}

func (s Step) index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// Status 由当前步骤派生的记录状态
type Status string

const (
	StatusDraft            Status = "draft"
	StatusGenerated        Status = "generated"
	StatusVisualsGenerated Status = "visuals_generated"
	StatusCompletedDraft   Status = "completed_draft"
	StatusScheduled        Status = "scheduled"
	StatusPosted           Status = "posted"
)

// VisualMethod 视觉素材获取方式（同一格式互斥）
type VisualMethod string

const (
	MethodAIGenerate VisualMethod = "ai_generate"
	MethodUpload     VisualMethod = "upload"
	MethodEditor     VisualMethod = "editor"
)

// Valid 判断方式是否合法
func (m VisualMethod) Valid() bool {
	switch m {
	case MethodAIGenerate, MethodUpload, MethodEditor:
		return true
	}
	return false
}

// VisualSetup 单个格式的视觉设置
type VisualSetup struct {
	Method             VisualMethod      `json:"method"`
	Style              string            `json:"style,omitempty"`
	PlaceholderMapping map[string]string `json:"placeholderMapping"` // 占位符 ID → 媒体 URL
	UploadedURLs       []string          `json:"uploadedUrls"`       // 未绑定占位符的素材池
}

// Clone 深拷贝
func (v *VisualSetup) Clone() *VisualSetup {
	if v == nil {
		return nil
	}
	out := &VisualSetup{Method: v.Method, Style: v.Style}
	out.PlaceholderMapping = make(map[string]string, len(v.PlaceholderMapping))
	for k, url := range v.PlaceholderMapping {
		out.PlaceholderMapping[k] = url
	}
	out.UploadedURLs = append([]string(nil), v.UploadedURLs...)
	return out
}

// EditorScene 交互式设计步骤返回的场景
type EditorScene struct {
	Scene      datatypes.JSON `json:"scene"`
	PreviewURL string         `json:"previewUrl,omitempty"`
}

// PostRecord 单个平台的发布结果
type PostRecord struct {
	Format   catalog.FormatID   `json:"format"`
	Platform catalog.PlatformID `json:"platform"`
	PostID   string             `json:"postId"`
	URL      string             `json:"url,omitempty"`
	PostedAt time.Time          `json:"postedAt"`
}

// RegenerationEntry 一次定向重新生成的记录
type RegenerationEntry struct {
	Target   string    `json:"target"`
	Feedback string    `json:"feedback"`
	Previous string    `json:"previous"`
	Current  string    `json:"current"`
	Diff     string    `json:"diff"`
	At       time.Time `json:"at"`
}

// MaxHistoryPerFormat 每个格式保留的重新生成记录数
const MaxHistoryPerFormat = 20

// IdeaRecord 一个想法从输入到发布的完整状态
type IdeaRecord struct {
	ID                string  `json:"id" gorm:"primaryKey;size:64"`
	OriginalInput     string  `json:"originalInput" gorm:"type:text"`
	ResearchData      string  `json:"researchData,omitempty" gorm:"type:text"`
	AdditionalContext string  `json:"additionalContext,omitempty" gorm:"type:text"`
	Instructions      string  `json:"instructions,omitempty" gorm:"type:text"`
	BrandID           *string `json:"brandId,omitempty" gorm:"size:64"`

	// 选择顺序即生成顺序
	SelectedFormats []catalog.FormatID                  `json:"selectedFormats" gorm:"type:jsonb;serializer:json"`
	FormatTemplates map[catalog.FormatID]string          `json:"formatTemplates" gorm:"type:jsonb;serializer:json"`
	FormatOptions   map[catalog.FormatID]catalog.Options `json:"formatOptions" gorm:"type:jsonb;serializer:json"`

	CurrentStep  Step   `json:"currentStep" gorm:"size:32;not null;index"`
	VisitedSteps []Step `json:"visitedSteps" gorm:"type:jsonb;serializer:json"`
	Status       Status `json:"status" gorm:"size:32;not null;index"`

	GeneratedText    content.Set                              `json:"generatedText" gorm:"type:jsonb;serializer:json"`
	VisualSetup      map[catalog.FormatID]*VisualSetup        `json:"visualSetup" gorm:"type:jsonb;serializer:json"`
	GeneratedVisuals map[catalog.FormatID][]string            `json:"generatedVisuals" gorm:"type:jsonb;serializer:json"`
	EditorScenes     map[catalog.FormatID]*EditorScene        `json:"editorScenes" gorm:"type:jsonb;serializer:json"`
	History          map[catalog.FormatID][]RegenerationEntry `json:"history,omitempty" gorm:"type:jsonb;serializer:json"`

	// 发布结果，空值表示尚未完成发布
	PublishOutcome Status       `json:"publishOutcome,omitempty" gorm:"size:32"`
	ScheduledAt    *time.Time   `json:"scheduledAt,omitempty"`
	Posts          []PostRecord `json:"posts,omitempty" gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TableName 表名
func (IdeaRecord) TableName() string {
	return "idea_records"
}

// IsSelected 判断格式是否已选择
func (r *IdeaRecord) IsSelected(id catalog.FormatID) bool {
	for _, f := range r.SelectedFormats {
		if f == id {
			return true
		}
	}
	return false
}

// HasText 是否已有任一格式的生成文案
func (r *IdeaRecord) HasText() bool {
	for _, c := range r.GeneratedText {
		if c != nil {
			return true
		}
	}
	return false
}

// UsesAIGeneration 是否有已选格式使用 AI 生成视觉
func (r *IdeaRecord) UsesAIGeneration() bool {
	for _, id := range r.SelectedFormats {
		if v := r.VisualSetup[id]; v != nil && v.Method == MethodAIGenerate {
			return true
		}
	}
	return false
}

// Clone 深拷贝，生成内容按不可变值共享
func (r *IdeaRecord) Clone() *IdeaRecord {
	out := *r
	if r.BrandID != nil {
		brand := *r.BrandID
		out.BrandID = &brand
	}
	if r.ScheduledAt != nil {
		at := *r.ScheduledAt
		out.ScheduledAt = &at
	}
	out.SelectedFormats = append([]catalog.FormatID(nil), r.SelectedFormats...)
	out.VisitedSteps = append([]Step(nil), r.VisitedSteps...)
	out.Posts = append([]PostRecord(nil), r.Posts...)

	out.FormatTemplates = make(map[catalog.FormatID]string, len(r.FormatTemplates))
	for k, v := range r.FormatTemplates {
		out.FormatTemplates[k] = v
	}
	out.FormatOptions = make(map[catalog.FormatID]catalog.Options, len(r.FormatOptions))
	for k, v := range r.FormatOptions {
		out.FormatOptions[k] = v.Clone()
	}
	out.GeneratedText = make(content.Set, len(r.GeneratedText))
	for k, v := range r.GeneratedText {
		out.GeneratedText[k] = v
	}
	out.VisualSetup = make(map[catalog.FormatID]*VisualSetup, len(r.VisualSetup))
	for k, v := range r.VisualSetup {
		out.VisualSetup[k] = v.Clone()
	}
	out.GeneratedVisuals = make(map[catalog.FormatID][]string, len(r.GeneratedVisuals))
	for k, v := range r.GeneratedVisuals {
		out.GeneratedVisuals[k] = append([]string(nil), v...)
	}
	out.EditorScenes = make(map[catalog.FormatID]*EditorScene, len(r.EditorScenes))
	for k, v := range r.EditorScenes {
		if v == nil {
			continue
		}
		scene := *v
		scene.Scene = append(datatypes.JSON(nil), v.Scene...)
		out.EditorScenes[k] = &scene
	}
	out.History = make(map[catalog.FormatID][]RegenerationEntry, len(r.History))
	for k, v := range r.History {
		out.History[k] = append([]RegenerationEntry(nil), v...)
	}
	return &out
}

// ensureMaps 补齐从存储读出时可能为 nil 的映射
func (r *IdeaRecord) ensureMaps() {
	if r.FormatTemplates == nil {
		r.FormatTemplates = map[catalog.FormatID]string{}
	}
	if r.FormatOptions == nil {
		r.FormatOptions = map[catalog.FormatID]catalog.Options{}
	}
	if r.GeneratedText == nil {
		r.GeneratedText = content.Set{}
	}
	if r.VisualSetup == nil {
		r.VisualSetup = map[catalog.FormatID]*VisualSetup{}
	}
	if r.GeneratedVisuals == nil {
		r.GeneratedVisuals = map[catalog.FormatID][]string{}
	}
	if r.EditorScenes == nil {
		r.EditorScenes = map[catalog.FormatID]*EditorScene{}
	}
	if r.History == nil {
		r.History = map[catalog.FormatID][]RegenerationEntry{}
	}
	if r.CurrentStep == "" {
		r.CurrentStep = StepIdeaDevelopment
	}
	if len(r.VisitedSteps) == 0 {
		r.VisitedSteps = []Step{r.CurrentStep}
	}
}
