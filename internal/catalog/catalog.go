package catalog

import "strings"

// PlatformID 发布平台标识（封闭枚举）
type PlatformID string

const (
	PlatformInstagram PlatformID = "instagram"
	PlatformFacebook  PlatformID = "facebook"
	PlatformLinkedIn  PlatformID = "linkedin"
	PlatformTwitter   PlatformID = "twitter"
	PlatformTikTok    PlatformID = "tiktok"
	PlatformThreads   PlatformID = "threads"
)

// Platforms 全部平台，顺序即发布时的尝试顺序
var Platforms = []PlatformID{
	PlatformInstagram,
	PlatformFacebook,
	PlatformLinkedIn,
	PlatformTwitter,
	PlatformTikTok,
	PlatformThreads,
}

// ParsePlatform 解析平台名称（不区分大小写）
func ParsePlatform(name string) (PlatformID, bool) {
	id := PlatformID(strings.ToLower(strings.TrimSpace(name)))
	for _, p := range Platforms {
		if p == id {
			return id, true
		}
	}
	return "", false
}

// FormatID 内容格式标识
type FormatID string

const (
	FormatCarousel     FormatID = "carousel"
	FormatThread       FormatID = "thread"
	FormatSingleImage  FormatID = "single_image"
	FormatQuoteCard    FormatID = "quote_card"
	FormatStory        FormatID = "story"
	FormatShortVideo   FormatID = "short_video"
	FormatLinkedInPost FormatID = "linkedin_post"
	FormatTextPost     FormatID = "text_post"
)

// Category 格式类别，决定生成内容的结构
type Category string

const (
	CategoryCarousel       Category = "carousel"
	CategoryThread         Category = "thread"
	CategoryTemplateDriven Category = "template_driven"
	CategorySimple         Category = "simple"
)

// VisualKind 格式所需的视觉素材类型
type VisualKind string

const (
	VisualNone       VisualKind = "none"
	VisualImage      VisualKind = "image"
	VisualMultiImage VisualKind = "multi_image"
	VisualVideo      VisualKind = "video"
)

// CanvasShape 默认画布形状
type CanvasShape string

const (
	CanvasSquare    CanvasShape = "square"
	CanvasPortrait  CanvasShape = "portrait"
	CanvasLandscape CanvasShape = "landscape"
	CanvasVertical  CanvasShape = "vertical"
)

// Descriptor 格式描述（静态数据，不可变）
type Descriptor struct {
	ID            FormatID     `json:"id"`
	Name          string       `json:"name"`
	Category      Category     `json:"category"`
	Platforms     []PlatformID `json:"platforms"`
	NeedsTemplate bool         `json:"needsTemplate"` // 是否可绑定视觉模板
	VisualKind    VisualKind   `json:"visualKind"`
	BodyField     string       `json:"bodyField"` // 简单格式的正文字段名: caption 或 content
	OptionSchema  []OptionSpec `json:"optionSchema"`
	DefaultCanvas CanvasShape  `json:"defaultCanvasShape"`
}

// NeedsVisuals 是否需要视觉素材（纯文本格式跳过视觉解析）
func (d Descriptor) NeedsVisuals() bool {
	return d.VisualKind != VisualNone
}

// SupportsPlatform 判断格式是否可以发布到指定平台
func (d Descriptor) SupportsPlatform(p PlatformID) bool {
	for _, id := range d.Platforms {
		if id == p {
			return true
		}
	}
	return false
}

// ResolveCategory 根据是否绑定模板确定生成结构
// 轮播和推文串的结构固定；其余格式绑定模板后按模板占位符生成
func (d Descriptor) ResolveCategory(templateBound bool) Category {
	switch d.Category {
	case CategoryCarousel, CategoryThread:
		return d.Category
	}
	if templateBound && d.NeedsTemplate {
		return CategoryTemplateDriven
	}
	return CategorySimple
}

var toneOption = OptionSpec{
	Key:     "tone",
	Label:   "语气",
	Type:    OptionEnum,
	Choices: []string{"professional", "casual", "playful", "urgent", "inspirational"},
	Default: "professional",
}

var lengthOption = OptionSpec{
	Key:     "length",
	Label:   "篇幅",
	Type:    OptionEnum,
	Choices: []string{"short", "medium", "long"},
	Default: "medium",
}

var ctaOption = OptionSpec{
	Key:     "include_cta",
	Label:   "包含行动号召",
	Type:    OptionBool,
	Default: true,
}

var order = []FormatID{
	FormatCarousel,
	FormatThread,
	FormatSingleImage,
	FormatQuoteCard,
	FormatStory,
	FormatShortVideo,
	FormatLinkedInPost,
	FormatTextPost,
}

var formats = map[FormatID]Descriptor{
	FormatCarousel: {
		ID:            FormatCarousel,
		Name:          "轮播图",
		Category:      CategoryCarousel,
		Platforms:     []PlatformID{PlatformInstagram, PlatformLinkedIn, PlatformFacebook},
		NeedsTemplate: true,
		VisualKind:    VisualMultiImage,
		BodyField:     "caption",
		OptionSchema: []OptionSpec{
			{Key: "slide_count", Label: "幻灯片数量", Type: OptionInt, Min: 2, Max: 10, Default: 5},
			toneOption,
			ctaOption,
		},
		DefaultCanvas: CanvasSquare,
	},
	FormatThread: {
		ID:         FormatThread,
		Name:       "推文串",
		Category:   CategoryThread,
		Platforms:  []PlatformID{PlatformTwitter, PlatformThreads},
		VisualKind: VisualNone,
		OptionSchema: []OptionSpec{
			{Key: "tweet_count", Label: "推文数量", Type: OptionInt, Min: 2, Max: 15, Default: 5},
			toneOption,
		},
		DefaultCanvas: CanvasLandscape,
	},
	FormatSingleImage: {
		ID:            FormatSingleImage,
		Name:          "单图帖子",
		Category:      CategorySimple,
		Platforms:     []PlatformID{PlatformInstagram, PlatformFacebook, PlatformLinkedIn, PlatformTwitter},
		NeedsTemplate: true,
		VisualKind:    VisualImage,
		BodyField:     "caption",
		OptionSchema:  []OptionSpec{toneOption, lengthOption, ctaOption},
		DefaultCanvas: CanvasSquare,
	},
	FormatQuoteCard: {
		ID:            FormatQuoteCard,
		Name:          "金句卡片",
		Category:      CategorySimple,
		Platforms:     []PlatformID{PlatformInstagram, PlatformLinkedIn, PlatformTwitter, PlatformThreads},
		NeedsTemplate: true,
		VisualKind:    VisualImage,
		BodyField:     "caption",
		OptionSchema:  []OptionSpec{toneOption},
		DefaultCanvas: CanvasSquare,
	},
	FormatStory: {
		ID:            FormatStory,
		Name:          "快拍",
		Category:      CategorySimple,
		Platforms:     []PlatformID{PlatformInstagram, PlatformFacebook},
		NeedsTemplate: true,
		VisualKind:    VisualImage,
		BodyField:     "caption",
		OptionSchema:  []OptionSpec{toneOption, ctaOption},
		DefaultCanvas: CanvasVertical,
	},
	FormatShortVideo: {
		ID:         FormatShortVideo,
		Name:       "短视频",
		Category:   CategorySimple,
		Platforms:  []PlatformID{PlatformTikTok, PlatformInstagram},
		VisualKind: VisualVideo,
		BodyField:  "caption",
		OptionSchema: []OptionSpec{
			{Key: "duration", Label: "时长（秒）", Type: OptionInt, Min: 15, Max: 600, Default: 60},
			toneOption,
		},
		DefaultCanvas: CanvasVertical,
	},
	FormatLinkedInPost: {
		ID:            FormatLinkedInPost,
		Name:          "LinkedIn 长文",
		Category:      CategorySimple,
		Platforms:     []PlatformID{PlatformLinkedIn},
		VisualKind:    VisualNone,
		BodyField:     "content",
		OptionSchema:  []OptionSpec{toneOption, lengthOption, ctaOption},
		DefaultCanvas: CanvasLandscape,
	},
	FormatTextPost: {
		ID:            FormatTextPost,
		Name:          "纯文本帖子",
		Category:      CategorySimple,
		Platforms:     []PlatformID{PlatformFacebook, PlatformTwitter, PlatformThreads, PlatformLinkedIn},
		VisualKind:    VisualNone,
		BodyField:     "content",
		OptionSchema:  []OptionSpec{toneOption, lengthOption},
		DefaultCanvas: CanvasLandscape,
	},
}

// Get 查询格式描述
func Get(id FormatID) (Descriptor, bool) {
	d, ok := formats[id]
	return d, ok
}

// All 按目录顺序返回全部格式
func All() []Descriptor {
	list := make([]Descriptor, 0, len(order))
	for _, id := range order {
		list = append(list, formats[id])
	}
	return list
}

// Known 判断格式是否存在
func Known(id FormatID) bool {
	_, ok := formats[id]
	return ok
}
