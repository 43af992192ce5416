package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	yaml := `
server:
  port: 9090
publish:
  platforms:
    twitter:
      base_url: https://api.twitter.example
      token_url: https://api.twitter.example/oauth2/token
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("APP_AI_OPENAI_API_KEY", "sk-test")

	cfg, err := Load("test", path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Workflow.AutosaveDebounce)
	assert.Equal(t, "sk-test", cfg.AI.OpenAI.APIKey)
	assert.Equal(t, "https://api.twitter.example", cfg.Publish.Platforms["twitter"].BaseURL)
	assert.Equal(t, 6, cfg.Worker.Queues["generate"])
	assert.Same(t, cfg, Get())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("test", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
