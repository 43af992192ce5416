package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"contentstudio/internal/catalog"
	"contentstudio/internal/publish"
	"contentstudio/internal/studio"
	"contentstudio/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRunner struct {
	generated string
	published string
	flags     publish.Flags
	retErr    error
}

func (f *fakeRunner) RunGenerate(_ context.Context, ideaID string) error {
	f.generated = ideaID
	return f.retErr
}

func (f *fakeRunner) RunPublish(_ context.Context, ideaID string, flags publish.Flags) error {
	f.published = ideaID
	f.flags = flags
	return f.retErr
}

func TestHandleGenerate(t *testing.T) {
	runner := &fakeRunner{}
	h := NewStudioHandler(runner, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.GeneratePayload{IdeaID: "idea-1"})

	require.NoError(t, h.HandleGenerate(context.Background(), asynq.NewTask(tasks.TypeGenerate, payload)))
	assert.Equal(t, "idea-1", runner.generated)
}

func TestHandlePublishPassesFlags(t *testing.T) {
	runner := &fakeRunner{}
	h := NewStudioHandler(runner, zaptest.NewLogger(t))
	flags := publish.Flags{catalog.FormatThread: {catalog.PlatformTwitter: true}}
	payload, _ := json.Marshal(tasks.PublishPayload{IdeaID: "idea-2", Flags: flags})

	require.NoError(t, h.HandlePublish(context.Background(), asynq.NewTask(tasks.TypePublish, payload)))
	assert.Equal(t, "idea-2", runner.published)
	assert.True(t, runner.flags.Enabled(catalog.FormatThread, catalog.PlatformTwitter))
}

func TestHandleRunError(t *testing.T) {
	boom := errors.New("boom")
	h := NewStudioHandler(&fakeRunner{retErr: boom}, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.GeneratePayload{IdeaID: "idea-3"})

	err := h.HandleGenerate(context.Background(), asynq.NewTask(tasks.TypeGenerate, payload))
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "普通失败允许重试")
}

func TestHandleMissingIdeaSkipsRetry(t *testing.T) {
	h := NewStudioHandler(&fakeRunner{retErr: fmt.Errorf("%w: idea-4", studio.ErrSessionNotFound)}, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.PublishPayload{IdeaID: "idea-4"})

	err := h.HandlePublish(context.Background(), asynq.NewTask(tasks.TypePublish, payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleInvalidPayload(t *testing.T) {
	runner := &fakeRunner{}
	h := NewStudioHandler(runner, zaptest.NewLogger(t))

	err := h.HandleGenerate(context.Background(), asynq.NewTask(tasks.TypeGenerate, []byte("not-json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, runner.generated)
}
