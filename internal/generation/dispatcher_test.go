package generation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/internal/template"
	"contentstudio/internal/workflow"
	"contentstudio/pkg/aiinterface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeText 按 Schema 自动填充响应，可按 Schema 名称覆写
type fakeText struct {
	mu       sync.Mutex
	requests []*aiinterface.StructuredRequest
	override func(req *aiinterface.StructuredRequest) (map[string]any, error)
	counter  int
}

func (f *fakeText) GenerateStructured(_ context.Context, req *aiinterface.StructuredRequest) (*aiinterface.StructuredResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.counter++
	n := f.counter
	f.mu.Unlock()

	if f.override != nil {
		obj, err := f.override(req)
		if err != nil || obj != nil {
			if err != nil {
				return nil, err
			}
			return &aiinterface.StructuredResponse{Object: obj}, nil
		}
	}
	obj := fill(req.Schema, "root", n).(map[string]any)
	return &aiinterface.StructuredResponse{Object: obj, Usage: aiinterface.Usage{PromptTokens: 10, CompletionTokens: 20}}, nil
}

func (f *fakeText) lastRequest() *aiinterface.StructuredRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func fill(schema map[string]any, name string, n int) any {
	switch schema["type"] {
	case "object":
		out := map[string]any{}
		props, _ := schema["properties"].(map[string]any)
		for k, v := range props {
			out[k] = fill(v.(map[string]any), k, n)
		}
		return out
	case "array":
		count := 1
		if min, ok := schema["minItems"].(int); ok {
			count = min
		}
		items := make([]any, 0, count)
		for i := 0; i < count; i++ {
			if name == "hashtags" {
				items = append(items, fmt.Sprintf("#tag%d", i))
				continue
			}
			items = append(items, fill(schema["items"].(map[string]any), fmt.Sprintf("%s_%d", name, i), n))
		}
		return items
	default:
		return fmt.Sprintf("%s v%d", name, n)
	}
}

type fakeTemplates map[string]*template.Template

func (f fakeTemplates) Get(_ context.Context, id string) (*template.Template, error) {
	if t, ok := f[id]; ok {
		return t, nil
	}
	return nil, template.ErrTemplateNotFound
}

func newContainer(t *testing.T) *workflow.Container {
	t.Helper()
	return workflow.NewIdea(workflow.IdeaInput{OriginalInput: "launch sale"})
}

func TestGenerateAllThreadAndCarousel(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{}
	d := NewDispatcher(text, nil, zaptest.NewLogger(t))

	c := newContainer(t)
	require.NoError(t, c.SelectFormat(catalog.FormatThread, "", catalog.Options{"tweet_count": 3}))
	require.NoError(t, c.SelectFormat(catalog.FormatCarousel, "", catalog.Options{"slide_count": 4}))

	var order []catalog.FormatID
	report, err := d.GenerateAll(ctx, c, func(r FormatResult) { order = append(order, r.Format) })
	require.NoError(t, err)
	assert.Equal(t, []catalog.FormatID{catalog.FormatThread, catalog.FormatCarousel}, order, "按选择顺序生成")
	assert.Len(t, report.Succeeded(), 2)

	thread, ok := c.Content(catalog.FormatThread)
	require.True(t, ok)
	assert.Len(t, thread.(*content.Thread).Tweets, 3)

	carousel, _ := c.Content(catalog.FormatCarousel)
	assert.Len(t, carousel.(*content.Carousel).Slides, 4)

	for _, generated := range []content.Content{thread, carousel} {
		tags := generated.Tags()
		assert.GreaterOrEqual(t, len(tags), content.MinHashtags)
		assert.LessOrEqual(t, len(tags), content.MaxHashtags)
		for _, tag := range tags {
			assert.False(t, strings.HasPrefix(tag, "#"))
		}
	}
	assert.Equal(t, workflow.StepTextReview, c.CurrentStep())
	assert.Equal(t, workflow.StatusGenerated, c.Snapshot().Status)
}

func TestGenerateAllKeepsCompletedFormatsOnFailure(t *testing.T) {
	text := &fakeText{override: func(req *aiinterface.StructuredRequest) (map[string]any, error) {
		if req.SchemaName == string(catalog.CategoryCarousel) {
			// 页数不足
			return map[string]any{
				"caption":  "c",
				"hashtags": []any{"a", "b", "c", "d", "e"},
				"slides":   []any{map[string]any{"title": "t", "body": "b"}},
			}, nil
		}
		return nil, nil
	}}
	d := NewDispatcher(text, nil, zaptest.NewLogger(t))

	c := newContainer(t)
	require.NoError(t, c.SelectFormat(catalog.FormatTextPost, "", nil))
	require.NoError(t, c.SelectFormat(catalog.FormatCarousel, "", nil))

	report, err := d.GenerateAll(context.Background(), c, nil)
	require.Error(t, err)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, catalog.FormatCarousel, genErr.Format)
	assert.True(t, errors.Is(err, aiinterface.ErrSchemaMismatch))

	assert.Equal(t, []catalog.FormatID{catalog.FormatTextPost}, report.Succeeded())
	post, ok := c.Content(catalog.FormatTextPost)
	require.True(t, ok)
	assert.NotEmpty(t, post.(*content.Simple).Content, "linkedin/text_post 使用 content 字段")
	_, ok = c.Content(catalog.FormatCarousel)
	assert.False(t, ok)
	assert.Equal(t, workflow.StepTextReview, c.CurrentStep())
}

func TestHashtagBounds(t *testing.T) {
	shape := Shape{Category: catalog.CategorySimple, BodyField: "caption"}

	many := make([]any, 0, 14)
	for i := 0; i < 14; i++ {
		many = append(many, fmt.Sprintf("#t%d", i))
	}
	got, err := shape.Decode(map[string]any{"caption": "c", "hashtags": many})
	require.NoError(t, err)
	assert.Len(t, got.Tags(), content.MaxHashtags)

	_, err = shape.Decode(map[string]any{"caption": "c", "hashtags": []any{"a", "#A", "b"}})
	assert.True(t, errors.Is(err, aiinterface.ErrSchemaMismatch))
}

func TestTemplateDrivenRestrictsToPlaceholders(t *testing.T) {
	templates := fakeTemplates{"quote": {
		ID: "quote",
		Placeholders: []template.Placeholder{
			{ID: "headline", Label: "主标题", Type: template.PlaceholderText},
			{ID: "story", Label: "正文", Type: template.PlaceholderText},
			{ID: "photo", Label: "配图", Type: template.PlaceholderImage},
		},
	}}
	text := &fakeText{}
	d := NewDispatcher(text, templates, zaptest.NewLogger(t))

	c := newContainer(t)
	require.NoError(t, c.SelectFormat(catalog.FormatQuoteCard, "quote", nil))
	_, err := d.GenerateAll(context.Background(), c, nil)
	require.NoError(t, err)

	schema := text.lastRequest().Schema
	props := schema["properties"].(map[string]any)
	assert.Len(t, props, 4, "两个文本占位符 + caption + hashtags")
	assert.NotContains(t, props, "photo")
	assert.Contains(t, props["headline"].(map[string]any)["description"], "at most 25 words")
	assert.Contains(t, props["story"].(map[string]any)["description"], "Narrative")

	got, _ := c.Content(catalog.FormatQuoteCard)
	fields := got.(*content.TemplateFields)
	assert.Equal(t, []string{"headline", "story"}, fields.FieldNames())
}

func TestRegenerateSlideOnlyTouchesTarget(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{}
	d := NewDispatcher(text, nil, zaptest.NewLogger(t))

	c := newContainer(t)
	require.NoError(t, c.SelectFormat(catalog.FormatCarousel, "", catalog.Options{"slide_count": 3}))
	_, err := d.GenerateAll(ctx, c, nil)
	require.NoError(t, err)
	before, _ := c.Content(catalog.FormatCarousel)

	entry, err := d.Regenerate(ctx, c, catalog.FormatCarousel, "slide:1", "更有冲击力")
	require.NoError(t, err)
	assert.Equal(t, "slide:1", entry.Target)
	assert.NotEmpty(t, entry.Diff)
	assert.Contains(t, text.lastRequest().Messages[1].Content, "更有冲击力")

	after, _ := c.Content(catalog.FormatCarousel)
	b, a := before.(*content.Carousel), after.(*content.Carousel)
	assert.NotEqual(t, b.Slides[1], a.Slides[1])
	for _, j := range []int{0, 2} {
		assert.Equal(t, reflect.ValueOf(b.Slides[j]).Pointer(), reflect.ValueOf(a.Slides[j]).Pointer())
	}
	assert.Equal(t, b.Caption, a.Caption)
	assert.Len(t, c.Snapshot().History[catalog.FormatCarousel], 1)
}

func TestRegenerateWholeUsesCurrentFieldSet(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{}
	d := NewDispatcher(text, nil, zaptest.NewLogger(t))

	c := newContainer(t)
	require.NoError(t, c.SelectFormat(catalog.FormatCarousel, "", catalog.Options{"slide_count": 2}))
	// 用户编辑后的内容带有自定义字段
	edited := &content.Carousel{
		Caption:  "c",
		Hashtags: []string{"a", "b", "c", "d", "e"},
		Slides:   []content.Slide{{"kicker": "k1", "title": "t1"}, {"kicker": "k2", "title": "t2"}},
	}
	require.NoError(t, c.PutContent(catalog.FormatCarousel, edited))

	_, err := d.Regenerate(ctx, c, catalog.FormatCarousel, "", "")
	require.NoError(t, err)

	schema := text.lastRequest().Schema
	slideProps := schema["properties"].(map[string]any)["slides"].(map[string]any)["items"].(map[string]any)["properties"].(map[string]any)
	assert.Contains(t, slideProps, "kicker")
	assert.NotContains(t, slideProps, "body")

	got, _ := c.Content(catalog.FormatCarousel)
	assert.Len(t, got.(*content.Carousel).Slides, 2)
	assert.Contains(t, got.(*content.Carousel).Slides[0], "kicker")
}

func TestRegenerateFailureLeavesContent(t *testing.T) {
	ctx := context.Background()
	text := &fakeText{}
	d := NewDispatcher(text, nil, zaptest.NewLogger(t))

	c := newContainer(t)
	require.NoError(t, c.SelectFormat(catalog.FormatThread, "", catalog.Options{"tweet_count": 2}))
	_, err := d.GenerateAll(ctx, c, nil)
	require.NoError(t, err)
	before, _ := c.Content(catalog.FormatThread)

	text.override = func(*aiinterface.StructuredRequest) (map[string]any, error) {
		return nil, &aiinterface.ClientError{Type: aiinterface.ErrorTypeServerError, Message: "boom"}
	}
	_, err = d.Regenerate(ctx, c, catalog.FormatThread, "tweet:0", "")
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "tweet:0", genErr.Target)

	after, _ := c.Content(catalog.FormatThread)
	assert.Same(t, before, after)

	_, err = d.Regenerate(ctx, c, catalog.FormatThread, "slide:0", "")
	assert.True(t, errors.Is(err, content.ErrTargetUnsupported))
}

func TestResultsForRemovedFormatAreDropped(t *testing.T) {
	c := newContainer(t)
	require.NoError(t, c.SelectFormat(catalog.FormatTextPost, "", nil))
	require.NoError(t, c.SelectFormat(catalog.FormatLinkedInPost, "", nil))

	text := &fakeText{}
	text.override = func(req *aiinterface.StructuredRequest) (map[string]any, error) {
		// 生成第一个格式期间用户移除了它
		if len(text.requests) == 1 {
			require.NoError(t, c.RemoveFormat(catalog.FormatTextPost))
		}
		return nil, nil
	}
	d := NewDispatcher(text, nil, zaptest.NewLogger(t))

	report, err := d.GenerateAll(context.Background(), c, nil)
	require.NoError(t, err)
	assert.True(t, report.Results[0].Dropped)
	assert.Equal(t, []catalog.FormatID{catalog.FormatLinkedInPost}, report.Succeeded())
	assert.NotContains(t, c.Snapshot().GeneratedText, catalog.FormatTextPost)
}

func TestGenerateAllStopsOnCancelledContext(t *testing.T) {
	c := newContainer(t)
	require.NoError(t, c.SelectFormat(catalog.FormatTextPost, "", nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(&fakeText{}, nil, zaptest.NewLogger(t))
	_, err := d.GenerateAll(ctx, c, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	_, ok := c.Content(catalog.FormatTextPost)
	assert.False(t, ok)
}

func TestHeadlineHeuristic(t *testing.T) {
	assert.True(t, IsHeadline("main_title", ""))
	assert.True(t, IsHeadline("line1", "Headline text"))
	assert.True(t, IsHeadline("hook", ""))
	assert.False(t, IsHeadline("body", "Description"))

	long := strings.Repeat("word ", 40)
	got, err := decodeFields(map[string]any{"title": long}, []FieldSpec{{Name: "title", Headline: true}})
	require.NoError(t, err)
	assert.Len(t, strings.Fields(got["title"]), HeadlineMaxWords)
}

func TestNilBudgetKeepsText(t *testing.T) {
	var b *PromptBudget
	assert.Equal(t, "research", b.Trim("research"))
	assert.Zero(t, b.Count("research"))
}
