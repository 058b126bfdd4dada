package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/guillermoBallester/querygate/internal/adapter/llm"
	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/guillermoBallester/querygate/internal/core/port"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func testRequest() port.GenerationRequest {
	return port.GenerationRequest{
		Question: "How many students?",
		Schema:   domain.SchemaSnapshot{"student": {{Name: "id", Type: "int"}}},
	}
}

func newTestGenerator(t *testing.T, url string) *Generator {
	t.Helper()
	g, err := NewGenerator(Config{
		BaseURL: url,
		APIKey:  "test-token",
		Dialect: "MySQL",
		Retry:   llm.RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	})
	require.NoError(t, err)
	return g
}

func TestGenerator_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("```sql\nSELECT COUNT(*) FROM student\n```")))
	}))
	defer srv.Close()

	sql, err := newTestGenerator(t, srv.URL).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "```sql\nSELECT COUNT(*) FROM student\n```", sql, "fence stripping is the caller's job")

	assert.Equal(t, DefaultModel, got["model"])
	assert.InDelta(t, 0.1, got["temperature"], 1e-9)
	assert.InDelta(t, 0.1, got["top_p"], 1e-9)
	assert.EqualValues(t, 1024, got["max_tokens"])

	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.Contains(t, user["content"], "student(id int)")
	assert.Contains(t, user["content"], `"""How many students?"""`)
}

func TestGenerator_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("SELECT 1")))
	}))
	defer srv.Close()

	sql, err := newTestGenerator(t, srv.URL).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", sql)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGenerator_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	_, err := newTestGenerator(t, srv.URL).Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries 3 exceeded")
	assert.EqualValues(t, 4, calls.Load(), "one call plus three retries")
}

func TestGenerator_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad credentials"}}`))
	}))
	defer srv.Close()

	_, err := newTestGenerator(t, srv.URL).Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGenerator_EmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("   ")))
	}))
	defer srv.Close()

	_, err := newTestGenerator(t, srv.URL).Generate(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestNewGenerator_RequiresAPIKey(t *testing.T) {
	_, err := NewGenerator(Config{})
	assert.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&openai.Error{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, isRetryable(&openai.Error{StatusCode: http.StatusBadGateway}))
	assert.False(t, isRetryable(&openai.Error{StatusCode: http.StatusBadRequest}))
	assert.True(t, isRetryable(&net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}))
	assert.False(t, isRetryable(errors.New("429 rows matched")), "status codes in plain text are not trusted")
}
