package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/internal/generation"
	"contentstudio/internal/persistence"
	"contentstudio/internal/platform"
	"contentstudio/internal/publish"
	"contentstudio/internal/visual"
	"contentstudio/internal/workflow"
	"contentstudio/pkg/aiinterface"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// scriptedText 按 Schema 名称返回固定结构
type scriptedText struct {
	mu    sync.Mutex
	calls int
}

func (s *scriptedText) GenerateStructured(_ context.Context, req *aiinterface.StructuredRequest) (*aiinterface.StructuredResponse, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	tags := []any{"launch", "sale", "deal", "shop", "today"}
	switch req.SchemaName {
	case string(catalog.CategoryThread):
		props := req.Schema["properties"].(map[string]any)
		count := props["tweets"].(map[string]any)["minItems"].(int)
		tweets := make([]any, count)
		for i := range tweets {
			tweets[i] = fmt.Sprintf("tweet %d of the launch", i+1)
		}
		return &aiinterface.StructuredResponse{Object: map[string]any{"tweets": tweets, "hashtags": tags}}, nil
	case "regeneration":
		return &aiinterface.StructuredResponse{Object: map[string]any{"tweet": fmt.Sprintf("Only hours left! (v%d)", n)}}, nil
	}
	return nil, fmt.Errorf("unexpected schema %s", req.SchemaName)
}

type postingAdapter struct {
	*platform.HTTPAdapter
	mu    sync.Mutex
	posts []*platform.Post
}

func (a *postingAdapter) Post(_ context.Context, _ *platform.Connection, p *platform.Post) (*platform.PostResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.posts = append(a.posts, p)
	return &platform.PostResult{PostID: fmt.Sprintf("tw-%d", len(a.posts)), PostedAt: time.Now()}, nil
}

type staticConnections map[catalog.PlatformID]*platform.Connection

func (s staticConnections) Find(_ context.Context, p catalog.PlatformID, _ bool) (*platform.Connection, error) {
	if c, ok := s[p]; ok {
		return c, nil
	}
	return nil, platform.ErrConnectionNotFound
}

func (s staticConnections) UpdateTokens(context.Context, string, *platform.Tokens) error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []workflow.Event
}

func (r *recordingSink) Publish(e workflow.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) types() []workflow.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]workflow.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeScheduler struct {
	generated []string
	published []time.Time
}

func (f *fakeScheduler) EnqueueGenerate(id string) error {
	f.generated = append(f.generated, id)
	return nil
}

func (f *fakeScheduler) EnqueuePublish(_ string, _ publish.Request, at time.Time) error {
	f.published = append(f.published, at)
	return nil
}

type harness struct {
	svc       *Service
	store     *persistence.GormStore
	twitter   *postingAdapter
	sink      *recordingSink
	scheduler *fakeScheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	dsn := fmt.Sprintf("file:studio_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store := persistence.NewGormStore(db)
	require.NoError(t, store.AutoMigrate())

	twitter := &postingAdapter{HTTPAdapter: platform.NewHTTPAdapter(platform.DefaultProfiles[catalog.PlatformTwitter], platform.HTTPConfig{})}
	registry, err := platform.NewRegistry(twitter)
	require.NoError(t, err)
	conns := staticConnections{catalog.PlatformTwitter: {ID: "tw", Platform: catalog.PlatformTwitter, AccessToken: "token"}}

	h := &harness{store: store, twitter: twitter, sink: &recordingSink{}, scheduler: &fakeScheduler{}}
	h.svc = NewService(
		store,
		generation.NewDispatcher(&scriptedText{}, nil, logger),
		visual.NewResolver(nil, nil, nil, logger),
		publish.NewDispatcher(registry, conns, store, logger),
		logger,
		WithEventSink(h.sink),
		WithScheduler(h.scheduler),
		WithAutosaveDebounce(time.Hour),
	)
	return h
}

func threadOf(t *testing.T, rec *workflow.IdeaRecord) *content.Thread {
	t.Helper()
	thread, ok := rec.GeneratedText[catalog.FormatThread].(*content.Thread)
	require.True(t, ok)
	return thread
}

func TestLaunchSaleEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	sess, err := h.svc.Create(ctx, workflow.IdeaInput{OriginalInput: "launch sale"})
	require.NoError(t, err)
	require.NoError(t, sess.SelectFormats([]Selection{{Format: catalog.FormatThread, Options: catalog.Options{"tweet_count": 3}}}))

	report, err := sess.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []catalog.FormatID{catalog.FormatThread}, report.Succeeded())
	before := threadOf(t, sess.Record())
	require.Len(t, before.Tweets, 3)
	assert.Equal(t, workflow.StepTextReview, sess.Record().CurrentStep)
	assert.Equal(t, workflow.StatusGenerated, sess.Record().Status)

	entry, err := sess.Regenerate(ctx, catalog.FormatThread, "tweet:1", "more urgent")
	require.NoError(t, err)
	assert.Equal(t, "more urgent", entry.Feedback)
	after := threadOf(t, sess.Record())
	assert.Equal(t, before.Tweets[0], after.Tweets[0])
	assert.NotEqual(t, before.Tweets[1], after.Tweets[1])
	assert.Equal(t, before.Tweets[2], after.Tweets[2])
	assert.Equal(t, before.Hashtags, after.Hashtags)

	for sess.Record().CurrentStep != workflow.StepEditor {
		_, err := sess.Advance()
		require.NoError(t, err)
	}
	summary, err := sess.Publish(ctx, publish.Request{Flags: publish.Flags{
		catalog.FormatThread: {catalog.PlatformTwitter: true},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, workflow.StatusPosted, sess.Record().Status)
	require.Len(t, h.twitter.posts, 1)
	assert.Equal(t, after.Tweets, h.twitter.posts[0].Parts)

	require.NoError(t, sess.Flush(ctx))
	stored, err := h.store.Get(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPosted, stored.Status)
	require.Len(t, stored.Posts, 1)
	assert.Equal(t, catalog.PlatformTwitter, stored.Posts[0].Platform)
	assert.Equal(t, "tw-1", stored.Posts[0].PostID)

	types := h.sink.types()
	assert.Contains(t, types, workflow.EventFormatGenerated)
	assert.Contains(t, types, workflow.EventStepChanged)
	assert.Equal(t, workflow.EventPublishCompleted, types[len(types)-1])
}

func TestCloseFlushesAndReopenResumes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	sess, err := h.svc.Create(ctx, workflow.IdeaInput{OriginalInput: "launch sale"})
	require.NoError(t, err)
	require.NoError(t, sess.SelectFormats([]Selection{
		{Format: catalog.FormatThread},
		{Format: catalog.FormatLinkedInPost},
	}))
	require.NoError(t, sess.UpdateIdea(workflow.IdeaInput{OriginalInput: "launch sale", Instructions: "no emojis"}))
	id := sess.ID()

	require.NoError(t, h.svc.Close(ctx, id))
	assert.True(t, errors.Is(sess.UpdateIdea(workflow.IdeaInput{}), ErrSessionClosed))
	assert.True(t, errors.Is(h.svc.Close(ctx, id), ErrSessionNotFound))

	reopened, err := h.svc.Open(ctx, id)
	require.NoError(t, err)
	rec := reopened.Record()
	assert.Equal(t, "no emojis", rec.Instructions)
	assert.Equal(t, []catalog.FormatID{catalog.FormatThread, catalog.FormatLinkedInPost}, rec.SelectedFormats)

	same, err := h.svc.Open(ctx, id)
	require.NoError(t, err)
	assert.Same(t, reopened, same, "已打开的会话直接复用")

	_, err = h.svc.Open(ctx, "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	require.NoError(t, h.svc.Shutdown(ctx))
}

func TestSelectFormatsReplacesSelection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, err := h.svc.Create(ctx, workflow.IdeaInput{OriginalInput: "idea"})
	require.NoError(t, err)

	require.NoError(t, sess.SelectFormats([]Selection{{Format: catalog.FormatThread}, {Format: catalog.FormatTextPost}}))
	_, err = sess.Generate(ctx)
	require.Error(t, err, "text_post 的 Schema 未被脚本覆盖")
	require.NotNil(t, sess.Record().GeneratedText[catalog.FormatThread])

	require.NoError(t, sess.SelectFormats([]Selection{{Format: catalog.FormatTextPost}}))
	rec := sess.Record()
	assert.Equal(t, []catalog.FormatID{catalog.FormatTextPost}, rec.SelectedFormats)
	assert.NotContains(t, rec.GeneratedText, catalog.FormatThread, "移除格式时清理生成内容")

	err = sess.SelectFormats([]Selection{{Format: catalog.FormatThread, Options: catalog.Options{"tweet_count": 99}}})
	var optErr *catalog.OptionError
	assert.True(t, errors.As(err, &optErr))
	assert.Equal(t, []catalog.FormatID{catalog.FormatTextPost}, sess.Record().SelectedFormats, "校验失败时不修改选择")
}

func TestScheduledPublishEnqueues(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, err := h.svc.Create(ctx, workflow.IdeaInput{OriginalInput: "launch sale"})
	require.NoError(t, err)
	require.NoError(t, sess.SelectFormats([]Selection{{Format: catalog.FormatThread, Options: catalog.Options{"tweet_count": 2}}}))
	_, err = sess.Generate(ctx)
	require.NoError(t, err)
	for sess.Record().CurrentStep != workflow.StepEditor {
		_, err := sess.Advance()
		require.NoError(t, err)
	}

	at := time.Now().Add(time.Hour)
	flags := publish.Flags{catalog.FormatThread: {catalog.PlatformTwitter: true}}
	summary, err := sess.Publish(ctx, publish.Request{Flags: flags, ScheduledAt: &at})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusScheduled, summary.Status)
	require.Len(t, h.scheduler.published, 1)
	assert.Empty(t, h.twitter.posts)

	// 到期后由后台任务执行
	require.NoError(t, h.svc.RunPublish(ctx, sess.ID(), flags))
	assert.Equal(t, workflow.StatusPosted, sess.Record().Status)
	assert.Len(t, h.twitter.posts, 1)
}

func TestRunGenerateFromWorker(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess, err := h.svc.Create(ctx, workflow.IdeaInput{OriginalInput: "launch sale"})
	require.NoError(t, err)
	require.NoError(t, sess.SelectFormats([]Selection{{Format: catalog.FormatThread}}))
	require.NoError(t, sess.GenerateAsync())
	assert.Equal(t, []string{sess.ID()}, h.scheduler.generated)

	require.NoError(t, h.svc.RunGenerate(ctx, sess.ID()))
	stored, err := h.store.Get(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, workflow.StepTextReview, stored.CurrentStep)
	assert.Len(t, stored.GeneratedText[catalog.FormatThread].(*content.Thread).Tweets, 5)
}
