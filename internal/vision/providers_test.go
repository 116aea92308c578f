package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reinvest-cli/internal/resilience"
	"github.com/sells-group/reinvest-cli/pkg/anthropic"
)

func imagePrompt() Prompt {
	return Prompt{System: systemPrompt, Question: "Retained earnings?", Image: pngStub, MediaType: "image/png"}
}

func TestOpenAIModel_Complete(t *testing.T) {
	var body string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/chat/completions")
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		body = string(b)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1735689600,
			"model":   "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "4,509,836"},
			}},
		})
	}))
	defer ts.Close()

	answer, err := NewOpenAIModel("sk-test", ts.URL, "gpt-4o").Complete(context.Background(), imagePrompt())
	require.NoError(t, err)
	assert.Equal(t, "4,509,836", answer)

	assert.Contains(t, body, "gpt-4o")
	assert.Contains(t, body, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(pngStub))
	assert.Contains(t, body, "Retained earnings?")
}

func TestOpenAIModel_RateLimitIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	_, err := NewOpenAIModel("sk-test", ts.URL, "gpt-4o").Complete(context.Background(), imagePrompt())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "vision: openai")
}

func TestOpenAIModel_BadRequestIsPermanent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid image","type":"invalid_request_error"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	_, err := NewOpenAIModel("sk-test", ts.URL, "gpt-4o").Complete(context.Background(), imagePrompt())
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestAnthropicModel_Complete(t *testing.T) {
	var body string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"content":     []map[string]any{{"type": "text", "text": "4509836"}},
			"model":       "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 1500, "output_tokens": 4},
		})
	}))
	defer ts.Close()

	m := NewAnthropicModel(anthropic.NewClient("sk-ant", ts.URL), "claude-sonnet-4-5-20250929")
	answer, err := m.Complete(context.Background(), imagePrompt())
	require.NoError(t, err)
	assert.Equal(t, "4509836", answer)
	assert.Contains(t, body, "image/png")
	assert.Contains(t, body, base64.StdEncoding.EncodeToString(pngStub))
}

func TestGeminiModel_Complete(t *testing.T) {
	var path, body string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": "4509836"}},
				},
			}},
		})
	}))
	defer ts.Close()

	m, err := NewGeminiModel(context.Background(), "g-test", ts.URL, "gemini-2.5-flash")
	require.NoError(t, err)

	answer, err := m.Complete(context.Background(), imagePrompt())
	require.NoError(t, err)
	assert.Equal(t, "4509836", answer)
	assert.True(t, strings.HasSuffix(path, "gemini-2.5-flash:generateContent"), path)
	assert.Contains(t, body, base64.StdEncoding.EncodeToString(pngStub))
	assert.Contains(t, body, "Retained earnings?")
}

func TestGeminiTransient(t *testing.T) {
	assert.False(t, geminiTransient(assert.AnError))
	assert.True(t, geminiTransient(errWithMessage("Error 429, Message: quota, Status: RESOURCE_EXHAUSTED")))
	assert.True(t, geminiTransient(errWithMessage("Error 503, Status: UNAVAILABLE")))
	assert.False(t, geminiTransient(errWithMessage("Error 400, Status: INVALID_ARGUMENT")))
}

type errWithMessage string

func (e errWithMessage) Error() string { return string(e) }
