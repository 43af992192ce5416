package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"contentstudio/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextAddsIDs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := WithIdeaID(WithRequestID(context.Background(), "req-1"), "idea-1")
	FromContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "idea-1", fields["idea_id"])
	assert.Equal(t, "req-1", RequestID(ctx))
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Init(config.LogConfig{Level: "debug", Format: "json", OutputPath: path}))
	Get().Info("启动")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"contentstudio"`)
}
