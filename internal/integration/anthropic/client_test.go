package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/resilience"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(config.AnthropicConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "claude-test", MaxTokens: 1000}, nil, logger.NewNop())
	c.SetRetryPolicy(resilience.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxRetries: 2})
	return c
}

func TestComplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-test", req.Model)
		assert.Equal(t, 1000, req.MaxTokens)
		assert.Equal(t, "be brief", req.System)
		require.Len(t, req.Messages, 1)

		_, _ = w.Write([]byte(`{"id":"msg_1","stop_reason":"end_turn","content":[{"type":"text","text":"Hello "},{"type":"text","text":"Katy"}],"usage":{"input_tokens":10,"output_tokens":3}}`))
	})

	out, err := c.Complete(context.Background(), "be brief", "say hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello Katy", out.Text)
	assert.Equal(t, 3, out.OutputTokens)
}

func TestComplete_RetriesOverloaded(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(529)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	})

	out, err := c.Complete(context.Background(), "", "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestComplete_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens too large"}}`))
	})

	_, err := c.Complete(context.Background(), "", "x")
	var ext *domain.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "invalid_request_error", ext.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestComplete_NotConfigured(t *testing.T) {
	c := NewClient(config.AnthropicConfig{}, nil, logger.NewNop())
	_, err := c.Complete(context.Background(), "", "x")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestExtractJSON(t *testing.T) {
	got, err := ExtractJSON("Here you go:\n```json\n{\"title\":\"A\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"title":"A"}`, got)

	_, err = ExtractJSON("no json here")
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}
