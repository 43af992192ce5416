package workflow

import (
	"errors"
	"testing"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestContainer(t *testing.T, formats ...catalog.FormatID) *Container {
	t.Helper()
	c := NewIdea(IdeaInput{OriginalInput: "launch sale"})
	for _, f := range formats {
		require.NoError(t, c.SelectFormat(f, "", nil))
	}
	return c
}

func TestSelectFormatKeepsOrderAndDefaults(t *testing.T) {
	c := newTestContainer(t, catalog.FormatThread, catalog.FormatCarousel)
	require.NoError(t, c.SelectFormat(catalog.FormatThread, "", catalog.Options{"tweet_count": 3}))

	rec := c.Snapshot()
	assert.Equal(t, []catalog.FormatID{catalog.FormatThread, catalog.FormatCarousel}, rec.SelectedFormats)
	n, _ := rec.FormatOptions[catalog.FormatThread].Int("tweet_count")
	assert.Equal(t, 3, n)
	n, _ = rec.FormatOptions[catalog.FormatCarousel].Int("slide_count")
	assert.Equal(t, 5, n)

	err := c.SelectFormat("podcast", "", nil)
	assert.True(t, errors.Is(err, ErrUnknownFormat))

	var optErr *catalog.OptionError
	err = c.SelectFormat(catalog.FormatCarousel, "", catalog.Options{"slide_count": 40})
	assert.True(t, errors.As(err, &optErr))
}

func TestTemplateOnlyBoundWhenApplicable(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.SelectFormat(catalog.FormatThread, "tmpl-1", nil))
	require.NoError(t, c.SelectFormat(catalog.FormatQuoteCard, "tmpl-2", nil))

	rec := c.Snapshot()
	_, bound := rec.FormatTemplates[catalog.FormatThread]
	assert.False(t, bound, "推文串不支持模板")
	assert.Equal(t, "tmpl-2", rec.FormatTemplates[catalog.FormatQuoteCard])
}

func TestRemoveFormatCascades(t *testing.T) {
	c := newTestContainer(t, catalog.FormatCarousel, catalog.FormatThread)
	f := catalog.FormatCarousel
	require.NoError(t, c.SelectFormat(f, "tmpl", nil))
	require.NoError(t, c.PutContent(f, &content.Carousel{Caption: "c"}))
	require.NoError(t, c.SetVisualMethod(f, MethodAIGenerate, "flat"))
	require.NoError(t, c.UpdateVisuals(f, MethodAIGenerate, func(v *VisualSetup, generated []string) []string {
		v.PlaceholderMapping["hero"] = "https://img/1.png"
		return append(generated, "https://img/1.png")
	}))
	require.NoError(t, c.SetEditorScene(f, EditorScene{Scene: datatypes.JSON(`{}`), PreviewURL: "https://p"}))
	require.NoError(t, c.PutContent(catalog.FormatThread, &content.Thread{Tweets: []string{"a"}}))

	require.NoError(t, c.RemoveFormat(f))

	rec := c.Snapshot()
	assert.NotContains(t, rec.SelectedFormats, f)
	assert.NotContains(t, rec.FormatTemplates, f)
	assert.NotContains(t, rec.FormatOptions, f)
	assert.NotContains(t, rec.GeneratedText, f)
	assert.NotContains(t, rec.VisualSetup, f)
	assert.NotContains(t, rec.GeneratedVisuals, f)
	assert.NotContains(t, rec.EditorScenes, f)
	assert.Contains(t, rec.GeneratedText, catalog.FormatThread, "其他格式不受影响")

	// 已移除格式的迟到结果被拒绝
	err := c.PutContent(f, &content.Carousel{})
	assert.True(t, errors.Is(err, ErrFormatNotSelected))
}

func TestSwitchingVisualMethodDiscardsOnlyThatFormat(t *testing.T) {
	c := newTestContainer(t, catalog.FormatSingleImage, catalog.FormatStory)
	for _, f := range []catalog.FormatID{catalog.FormatSingleImage, catalog.FormatStory} {
		require.NoError(t, c.SetVisualMethod(f, MethodUpload, ""))
		require.NoError(t, c.UpdateVisuals(f, MethodUpload, func(v *VisualSetup, _ []string) []string {
			v.UploadedURLs = append(v.UploadedURLs, "https://u/"+string(f))
			return nil
		}))
	}

	require.NoError(t, c.SetVisualMethod(catalog.FormatSingleImage, MethodAIGenerate, "watercolor"))
	rec := c.Snapshot()
	assert.Empty(t, rec.VisualSetup[catalog.FormatSingleImage].UploadedURLs)
	assert.Equal(t, "watercolor", rec.VisualSetup[catalog.FormatSingleImage].Style)
	assert.Equal(t, []string{"https://u/story"}, rec.VisualSetup[catalog.FormatStory].UploadedURLs)

	err := c.UpdateVisuals(catalog.FormatSingleImage, MethodUpload, func(*VisualSetup, []string) []string { return nil })
	assert.Error(t, err, "方式不匹配时拒绝修改")
}

func TestStepTransitions(t *testing.T) {
	t.Run("没有 AI 生成时跳过 ai_generation", func(t *testing.T) {
		c := newTestContainer(t, catalog.FormatSingleImage)
		for _, want := range []Step{StepTextGeneration, StepTextReview, StepVisualSetup, StepEditor, StepPublish} {
			got, err := c.Advance()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		_, err := c.Advance()
		var stepErr *StepError
		assert.True(t, errors.As(err, &stepErr))
	})

	t.Run("使用 AI 生成时进入 ai_generation", func(t *testing.T) {
		c := newTestContainer(t, catalog.FormatSingleImage)
		require.NoError(t, c.SetVisualMethod(catalog.FormatSingleImage, MethodAIGenerate, ""))
		for range 3 {
			_, err := c.Advance()
			require.NoError(t, err)
		}
		next, err := c.Advance()
		require.NoError(t, err)
		assert.Equal(t, StepAIGeneration, next)
	})

	t.Run("可以回到已访问步骤且不能跳到未访问步骤", func(t *testing.T) {
		c := newTestContainer(t, catalog.FormatThread)
		require.NoError(t, c.PutContent(catalog.FormatThread, &content.Thread{Tweets: []string{"x"}}))
		require.NoError(t, c.GoTo(StepTextGeneration))
		require.NoError(t, c.GoTo(StepTextReview))

		err := c.GoTo(StepPublish)
		var stepErr *StepError
		require.True(t, errors.As(err, &stepErr))
		assert.Equal(t, StepTextReview, stepErr.From)

		require.NoError(t, c.GoTo(StepIdeaDevelopment))
		require.NoError(t, c.GoTo(StepTextReview))
		_, ok := c.Content(catalog.FormatThread)
		assert.True(t, ok, "回退不丢弃状态")
	})
}

func TestDeriveStatus(t *testing.T) {
	rec := &IdeaRecord{CurrentStep: StepIdeaDevelopment}
	rec.ensureMaps()
	assert.Equal(t, StatusDraft, DeriveStatus(rec))

	rec.GeneratedText[catalog.FormatThread] = &content.Thread{Tweets: []string{"a"}}
	for _, s := range []Step{StepIdeaDevelopment, StepTextGeneration, StepTextReview, StepVisualSetup, StepAIGeneration} {
		rec.CurrentStep = s
		assert.Equal(t, StatusGenerated, DeriveStatus(rec), s)
	}

	rec.CurrentStep = StepEditor
	assert.Equal(t, StatusVisualsGenerated, DeriveStatus(rec))

	rec.CurrentStep = StepPublish
	assert.Equal(t, StatusCompletedDraft, DeriveStatus(rec))
	rec.PublishOutcome = StatusScheduled
	assert.Equal(t, StatusScheduled, DeriveStatus(rec))
	rec.PublishOutcome = StatusPosted
	assert.Equal(t, StatusPosted, DeriveStatus(rec))
}

func TestObserversSeeEveryMutation(t *testing.T) {
	c := NewIdea(IdeaInput{OriginalInput: "idea"})
	var ops []ChangeOp
	c.Observe(func(ch Change) { ops = append(ops, ch.Op) })

	require.NoError(t, c.SelectFormat(catalog.FormatTextPost, "", nil))
	require.NoError(t, c.PutContent(catalog.FormatTextPost, &content.Simple{Content: "x"}))
	_, err := c.Advance()
	require.NoError(t, err)
	assert.Error(t, c.RemoveFormat(catalog.FormatThread), "失败的操作不通知")

	assert.Equal(t, []ChangeOp{OpFormatSelected, OpContentChanged, OpStepChanged}, ops)
	assert.Equal(t, StatusGenerated, c.Snapshot().Status)
}

func TestStepChangeCarriesEnteredStep(t *testing.T) {
	c := NewIdea(IdeaInput{OriginalInput: "idea"})
	var steps []Step
	c.Observe(func(ch Change) {
		if ch.Op == OpStepChanged {
			steps = append(steps, ch.Step)
		}
	})

	entered, err := c.Advance()
	require.NoError(t, err)
	require.NoError(t, c.GoTo(StepIdeaDevelopment))

	assert.Equal(t, []Step{entered, StepIdeaDevelopment}, steps)
	assert.Equal(t, StepTextGeneration, steps[0])
}

func TestPutContentEnforcesShape(t *testing.T) {
	c := newTestContainer(t, catalog.FormatCarousel, catalog.FormatTextPost)

	err := c.PutContent(catalog.FormatCarousel, &content.Simple{Caption: "wrong shape"})
	assert.True(t, errors.Is(err, ErrContentKind))
	err = c.PutContent(catalog.FormatTextPost, nil)
	assert.True(t, errors.Is(err, ErrContentKind))
	_, ok := c.Content(catalog.FormatCarousel)
	assert.False(t, ok, "拒绝的内容不落入记录")

	require.NoError(t, c.PutContent(catalog.FormatCarousel, &content.Carousel{
		Caption:  "c",
		Hashtags: []string{"#Sale", " #launch", "sale", "#"},
		Slides:   []content.Slide{{"title": "t"}},
	}))
	got, ok := c.Content(catalog.FormatCarousel)
	require.True(t, ok)
	assert.Equal(t, []string{"Sale", "launch"}, got.Tags())

	clean := &content.Simple{Content: "x", Hashtags: []string{"a", "b"}}
	require.NoError(t, c.PutContent(catalog.FormatTextPost, clean))
	stored, _ := c.Content(catalog.FormatTextPost)
	assert.Same(t, clean, stored, "已规范的内容不复制")
}

func TestSpliceContentBoundsHistory(t *testing.T) {
	c := newTestContainer(t, catalog.FormatThread)
	cur := content.Content(&content.Thread{Tweets: []string{"0"}})
	require.NoError(t, c.PutContent(catalog.FormatThread, cur))

	for i := 0; i < MaxHistoryPerFormat+5; i++ {
		next := &content.Thread{Tweets: []string{string(rune('a' + i%26))}}
		require.NoError(t, c.SpliceContent(catalog.FormatThread, cur, next, &RegenerationEntry{Target: "tweet:0"}))
		cur = next
	}
	assert.Len(t, c.Snapshot().History[catalog.FormatThread], MaxHistoryPerFormat)

	err := c.SpliceContent(catalog.FormatThread, &content.Thread{}, &content.Thread{}, nil)
	assert.Error(t, err, "内容已被改写时拒绝")
}

func TestRestoreFillsMissingMaps(t *testing.T) {
	c := Restore(&IdeaRecord{ID: "idea-1", SelectedFormats: []catalog.FormatID{catalog.FormatThread}})
	require.NoError(t, c.PutContent(catalog.FormatThread, &content.Thread{Tweets: []string{"a"}}))
	rec := c.Snapshot()
	assert.Equal(t, StepIdeaDevelopment, rec.CurrentStep)
	assert.Equal(t, []Step{StepIdeaDevelopment}, rec.VisitedSteps)
}
