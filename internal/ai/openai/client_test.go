package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"contentstudio/pkg/aiinterface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(&aiinterface.ClientConfig{
		APIKey:     "sk-test",
		BaseURL:    srv.URL + "/v1",
		Model:      "gpt-4o-mini",
		MaxRetries: 2,
	})
	require.NoError(t, err)
	c.backoff = func(int) time.Duration { return 0 }
	return c
}

func completion(content, finish string) map[string]any {
	return map[string]any{
		"id":    "chatcmpl-1",
		"model": "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func TestGenerateStructuredSendsJSONSchema(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(completion(`{"tweets":["a","b"],"hashtags":["x"]}`, "stop"))
	})

	resp, err := c.GenerateStructured(context.Background(), &aiinterface.StructuredRequest{
		Messages:   []aiinterface.Message{{Role: "user", Content: "写推文"}},
		SchemaName: "thread",
		Schema:     map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, resp.Object["tweets"])
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	format := body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "thread", schema["name"])
	assert.Equal(t, true, schema["strict"])
}

func TestGenerateStructuredSchemaMismatch(t *testing.T) {
	cases := map[string]map[string]any{
		"非 JSON": completion("not json", "stop"),
		"被截断":    completion(`{"tweets":`, "length"),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(payload)
			})
			_, err := c.GenerateStructured(context.Background(), &aiinterface.StructuredRequest{Schema: map[string]any{}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, aiinterface.ErrSchemaMismatch))
		})
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(completion(`{}`, "stop"))
	})

	_, err := c.GenerateStructured(context.Background(), &aiinterface.StructuredRequest{Schema: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := c.GenerateStructured(context.Background(), &aiinterface.StructuredRequest{Schema: map[string]any{}})
	var clientErr *aiinterface.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, aiinterface.ErrorTypeAuth, clientErr.Type)
	assert.False(t, clientErr.IsRetryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["prompt"], "Style: 扁平插画")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]any{{"url": "https://cdn.example.com/a.png"}},
		})
	})

	url, err := c.GenerateImage(context.Background(), &aiinterface.ImageRequest{Prompt: "夏季促销", Style: "扁平插画"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", url)
}
