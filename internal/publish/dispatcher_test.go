package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/internal/persistence"
	"contentstudio/internal/platform"
	"contentstudio/internal/workflow"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeAdapter struct {
	id       catalog.PlatformID
	mu       sync.Mutex
	posts    []*platform.Post
	fail     error
	noDelete bool
	noResult bool
}

func newFakeAdapter(id catalog.PlatformID) *fakeAdapter {
	return &fakeAdapter{id: id}
}

func (f *fakeAdapter) Platform() catalog.PlatformID { return f.id }

func (f *fakeAdapter) FormatContent(p *platform.Post) *platform.FormattedContent {
	return &platform.FormattedContent{Text: p.Text, Media: p.Media}
}

func (f *fakeAdapter) ValidateContent(p *platform.Post) platform.ValidationResult {
	if p.Text == "" {
		return platform.ValidationResult{Errors: []string{"empty"}}
	}
	return platform.ValidationResult{Valid: true}
}

func (f *fakeAdapter) IsTokenExpired(*platform.Connection) bool { return false }

func (f *fakeAdapter) RefreshToken(context.Context, *platform.Connection) (*platform.Tokens, error) {
	return nil, platform.ErrNoRefreshToken
}

func (f *fakeAdapter) Post(_ context.Context, _ *platform.Connection, p *platform.Post) (*platform.PostResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if f.noResult {
		return nil, nil
	}
	f.posts = append(f.posts, p)
	id := fmt.Sprintf("%s-%d", f.id, len(f.posts))
	return &platform.PostResult{PostID: id, URL: "https://" + string(f.id) + "/" + id, PostedAt: time.Now()}, nil
}

func (f *fakeAdapter) GetPostStatus(_ context.Context, _ *platform.Connection, postID string) (*platform.PostStatus, error) {
	return &platform.PostStatus{PostID: postID, Status: "live"}, nil
}

func (f *fakeAdapter) DeletePost(context.Context, *platform.Connection, string) (bool, error) {
	if f.noDelete {
		return false, &platform.CapabilityError{Platform: f.id, Capability: "delete"}
	}
	return true, nil
}

type fakeConnections struct {
	conns map[catalog.PlatformID]*platform.Connection
	err   map[catalog.PlatformID]error
}

func (f *fakeConnections) Find(_ context.Context, p catalog.PlatformID, _ bool) (*platform.Connection, error) {
	if err := f.err[p]; err != nil {
		return nil, err
	}
	if c, ok := f.conns[p]; ok {
		return c, nil
	}
	return nil, platform.ErrConnectionNotFound
}

func (f *fakeConnections) UpdateTokens(context.Context, string, *platform.Tokens) error { return nil }

type fakeRecords struct {
	updates []persistence.StatusUpdate
}

func (f *fakeRecords) UpdateStatus(_ context.Context, _ string, u persistence.StatusUpdate) (*workflow.IdeaRecord, error) {
	f.updates = append(f.updates, u)
	return &workflow.IdeaRecord{Status: u.Status}, nil
}

func threadAtEditor(t *testing.T) *workflow.Container {
	t.Helper()
	c := workflow.NewIdea(workflow.IdeaInput{OriginalInput: "launch sale"})
	require.NoError(t, c.SelectFormat(catalog.FormatThread, "", catalog.Options{"tweet_count": 2}))
	require.NoError(t, c.PutContent(catalog.FormatThread, &content.Thread{
		Tweets:   []string{"first", "second"},
		Hashtags: []string{"sale", "launch", "deal", "shop", "now"},
	}))
	for c.CurrentStep() != workflow.StepEditor {
		_, err := c.Advance()
		require.NoError(t, err)
	}
	return c
}

type fixture struct {
	twitter *fakeAdapter
	threads *fakeAdapter
	conns   *fakeConnections
	records *fakeRecords
	d       *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		twitter: newFakeAdapter(catalog.PlatformTwitter),
		threads: newFakeAdapter(catalog.PlatformThreads),
		conns: &fakeConnections{conns: map[catalog.PlatformID]*platform.Connection{
			catalog.PlatformTwitter:   {ID: "tw", Platform: catalog.PlatformTwitter, AccessToken: "x"},
			catalog.PlatformInstagram: {ID: "ig", Platform: catalog.PlatformInstagram, AccessToken: "y"},
		}},
		records: &fakeRecords{},
	}
	reg, err := platform.NewRegistry(f.twitter, f.threads, newFakeAdapter(catalog.PlatformInstagram))
	require.NoError(t, err)
	f.d = NewDispatcher(reg, f.conns, f.records, zaptest.NewLogger(t))
	return f
}

func TestPublishSkipsMissingConnection(t *testing.T) {
	f := newFixture(t)
	c := threadAtEditor(t)

	summary, err := f.d.Publish(context.Background(), c, Request{Flags: Flags{
		catalog.FormatThread: {catalog.PlatformTwitter: true, catalog.PlatformThreads: true},
	}})
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, catalog.PlatformTwitter, summary.Results[0].Platform, "按目录顺序尝试")
	assert.Equal(t, OutcomeSucceeded, summary.Results[0].Outcome)
	assert.Equal(t, OutcomeSkipped, summary.Results[1].Outcome)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, workflow.StatusPosted, summary.Status)

	require.Len(t, f.twitter.posts, 1)
	assert.Equal(t, []string{"first", "second"}, f.twitter.posts[0].Parts)

	rec := c.Snapshot()
	require.Len(t, rec.Posts, 1)
	assert.Equal(t, "twitter-1", rec.Posts[0].PostID)
	require.Len(t, f.records.updates, 1)
	assert.Equal(t, workflow.StatusPosted, f.records.updates[0].Status)
}

func TestPublishConnectionErrorFailsOnlyThatPair(t *testing.T) {
	f := newFixture(t)
	f.conns.err = map[catalog.PlatformID]error{catalog.PlatformThreads: errors.New("db down")}
	f.conns.conns[catalog.PlatformThreads] = &platform.Connection{ID: "th"}
	c := threadAtEditor(t)

	summary, err := f.d.Publish(context.Background(), c, Request{Flags: Flags{
		catalog.FormatThread: {catalog.PlatformTwitter: true, catalog.PlatformThreads: true},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Results[1].Reason, "db down")
}

func TestPublishFailureKeepsGoing(t *testing.T) {
	f := newFixture(t)
	f.twitter.fail = errors.New("rate limited")
	f.conns.conns[catalog.PlatformThreads] = &platform.Connection{ID: "th", Platform: catalog.PlatformThreads}
	c := threadAtEditor(t)

	summary, err := f.d.Publish(context.Background(), c, Request{Flags: Flags{
		catalog.FormatThread: {catalog.PlatformTwitter: true, catalog.PlatformThreads: true},
	}})
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)

	var pubErr *PublishError
	require.True(t, errors.As(summary.Results[0].Err, &pubErr))
	assert.Equal(t, catalog.PlatformTwitter, pubErr.Platform)
	assert.Equal(t, OutcomeSucceeded, summary.Results[1].Outcome, "前一个平台失败不影响后续平台")
	assert.Equal(t, workflow.StatusPosted, summary.Status)
}

func TestPublishNoSuccessStaysCompletedDraft(t *testing.T) {
	f := newFixture(t)
	f.twitter.fail = errors.New("boom")
	c := threadAtEditor(t)

	summary, err := f.d.Publish(context.Background(), c, Request{Flags: Flags{
		catalog.FormatThread: {catalog.PlatformTwitter: true},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, workflow.StatusCompletedDraft, summary.Status)
	assert.Empty(t, c.Snapshot().Posts)
}

func TestPublishVisualFormatWithoutMedia(t *testing.T) {
	f := newFixture(t)
	c := workflow.NewIdea(workflow.IdeaInput{OriginalInput: "idea"})
	require.NoError(t, c.SelectFormat(catalog.FormatSingleImage, "", nil))
	require.NoError(t, c.PutContent(catalog.FormatSingleImage, &content.Simple{Caption: "hello", Hashtags: []string{"a", "b", "c", "d", "e"}}))
	for c.CurrentStep() != workflow.StepEditor {
		_, err := c.Advance()
		require.NoError(t, err)
	}

	summary, err := f.d.Publish(context.Background(), c, Request{Flags: Flags{
		catalog.FormatSingleImage: {catalog.PlatformInstagram: true},
	}})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	var verr *ValidationError
	require.True(t, errors.As(summary.Results[0].Err, &verr))
	assert.Equal(t, catalog.FormatSingleImage, verr.Format)
}

func TestPublishDisabledFlagsAttemptNothing(t *testing.T) {
	f := newFixture(t)
	c := threadAtEditor(t)

	summary, err := f.d.Publish(context.Background(), c, Request{Flags: Flags{
		catalog.FormatThread: {catalog.PlatformTwitter: false},
	}})
	require.NoError(t, err)
	assert.Empty(t, summary.Results)
	assert.Empty(t, f.twitter.posts)
	assert.Equal(t, workflow.StatusCompletedDraft, summary.Status)
}

func TestPublishScheduled(t *testing.T) {
	f := newFixture(t)
	c := threadAtEditor(t)
	at := time.Now().Add(2 * time.Hour)

	summary, err := f.d.Publish(context.Background(), c, Request{
		Flags:       Flags{catalog.FormatThread: {catalog.PlatformTwitter: true}},
		ScheduledAt: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusScheduled, summary.Status)
	assert.Empty(t, f.twitter.posts, "排期时不立即发布")
	require.NotNil(t, c.Snapshot().ScheduledAt)
}

func TestScheduledRunFailingEverywhereFallsBackToDraft(t *testing.T) {
	f := newFixture(t)
	c := threadAtEditor(t)
	flags := Flags{catalog.FormatThread: {catalog.PlatformTwitter: true}}
	at := time.Now().Add(time.Hour)

	summary, err := f.d.Publish(context.Background(), c, Request{Flags: flags, ScheduledAt: &at})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusScheduled, summary.Status)

	// 到期后台任务执行时平台全部失败
	f.twitter.fail = errors.New("boom")
	summary, err = f.d.Publish(context.Background(), c, Request{Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, workflow.StatusCompletedDraft, summary.Status)

	rec := c.Snapshot()
	assert.Equal(t, workflow.StatusCompletedDraft, rec.Status)
	assert.Nil(t, rec.ScheduledAt)
	require.NotEmpty(t, f.records.updates)
	assert.Equal(t, workflow.StatusCompletedDraft, f.records.updates[len(f.records.updates)-1].Status)
}

func TestPublishEmptyAdapterResultFailsOnlyThatPair(t *testing.T) {
	f := newFixture(t)
	f.twitter.noResult = true
	f.conns.conns[catalog.PlatformThreads] = &platform.Connection{ID: "th", Platform: catalog.PlatformThreads}
	c := threadAtEditor(t)

	summary, err := f.d.Publish(context.Background(), c, Request{Flags: Flags{
		catalog.FormatThread: {catalog.PlatformTwitter: true, catalog.PlatformThreads: true},
	}})
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)

	var pubErr *PublishError
	require.True(t, errors.As(summary.Results[0].Err, &pubErr))
	assert.True(t, errors.Is(pubErr, ErrEmptyPostResult))
	assert.Equal(t, OutcomeSucceeded, summary.Results[1].Outcome)
	assert.Equal(t, workflow.StatusPosted, summary.Status)
}

func TestPublishRequiresReachableStep(t *testing.T) {
	f := newFixture(t)
	c := workflow.NewIdea(workflow.IdeaInput{OriginalInput: "idea"})

	_, err := f.d.Publish(context.Background(), c, Request{})
	var stepErr *workflow.StepError
	assert.True(t, errors.As(err, &stepErr))
}

func TestStatusAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.d.Status(ctx, catalog.PlatformTwitter, "p1")
	require.NoError(t, err)
	assert.Equal(t, "live", status.Status)

	f.twitter.noDelete = true
	_, err = f.d.Delete(ctx, catalog.PlatformTwitter, "p1")
	var capErr *platform.CapabilityError
	assert.True(t, errors.As(err, &capErr))

	_, err = f.d.Delete(ctx, catalog.PlatformTikTok, "p1")
	var unsupported *platform.UnsupportedPlatformError
	assert.True(t, errors.As(err, &unsupported))
}

func TestLogStore(t *testing.T) {
	ctx := context.Background()
	dsn := fmt.Sprintf("file:publish_logs_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	logs := NewGormLogStore(db)
	require.NoError(t, logs.AutoMigrate())

	f := newFixture(t)
	f.d.logs = logs
	c := threadAtEditor(t)
	_, err = f.d.Publish(ctx, c, Request{Flags: Flags{
		catalog.FormatThread: {catalog.PlatformTwitter: true, catalog.PlatformThreads: true},
	}})
	require.NoError(t, err)

	entries, err := logs.ListByIdea(ctx, c.ID())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	outcomes := map[catalog.PlatformID]Outcome{}
	for _, e := range entries {
		outcomes[e.Platform] = e.Outcome
	}
	assert.Equal(t, OutcomeSucceeded, outcomes[catalog.PlatformTwitter])
	assert.Equal(t, OutcomeSkipped, outcomes[catalog.PlatformThreads])
}
