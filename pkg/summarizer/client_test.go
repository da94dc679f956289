package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/z-wentao/tubenotes/pkg/models"
)

type chatRequest struct {
	Model       string   `json:"model"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, reply string, status int, seen *[]chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if seen != nil {
			*seen = append(*seen, req)
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"upstream broke","type":"server_error"}}`))
			return
		}
		body, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}, "finish_reason": "stop"}},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, key string) *Client {
	t.Helper()
	c, err := NewClient(Config{APIKey: key, BaseURL: srv.URL, Temperature: 0.3, HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c
}

var meta = &models.VideoMetadata{
	Title:        "Go Concurrency Patterns",
	ChannelTitle: "Gopher TV",
	Description:  strings.Repeat("d", 600),
}

func TestAnalyzeUsesPromptAndDefaults(t *testing.T) {
	var seen []chatRequest
	srv := chatServer(t, "```markdown\n## Topics Covered\n- channels\n```", http.StatusOK, &seen)
	c := newTestClient(t, srv, "key")

	out, err := c.Analyze(context.Background(), Request{Transcript: "we talk about channels", Metadata: meta})
	require.NoError(t, err)
	assert.Equal(t, "## Topics Covered\n- channels", out)

	require.Len(t, seen, 1)
	assert.Equal(t, DefaultModel, seen[0].Model)
	assert.Equal(t, DefaultMaxTokens, seen[0].MaxTokens)
	require.Len(t, seen[0].Messages, 2)
	assert.Equal(t, "system", seen[0].Messages[0].Role)
	user := seen[0].Messages[1].Content
	assert.Contains(t, user, "Video Title: Go Concurrency Patterns")
	assert.Contains(t, user, "Transcript: we talk about channels")
	assert.Contains(t, user, strings.Repeat("d", 500)+"...")
	assert.NotContains(t, user, strings.Repeat("d", 501))
}

func TestAnalyzeOverrides(t *testing.T) {
	var seen []chatRequest
	srv := chatServer(t, "notes", http.StatusOK, &seen)
	c := newTestClient(t, srv, "key")

	_, err := c.Analyze(context.Background(), Request{Transcript: "t", Metadata: meta, Model: "anthropic/claude-3-haiku", PromptID: "key-points", MaxTokens: 500})
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3-haiku", seen[0].Model)
	assert.Equal(t, 500, seen[0].MaxTokens)
	assert.Contains(t, seen[0].Messages[1].Content, "## Key Points")
	require.NotNil(t, seen[0].Temperature)
	assert.InDelta(t, 0.3, *seen[0].Temperature, 0.001)
}

func TestZeroTemperatureIsSent(t *testing.T) {
	var seen []chatRequest
	srv := chatServer(t, "notes", http.StatusOK, &seen)
	c, err := NewClient(Config{APIKey: "key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = c.Analyze(context.Background(), Request{Transcript: "t", Metadata: meta})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	require.NotNil(t, seen[0].Temperature, "temperature must not be omitted")
	assert.InDelta(t, 0, *seen[0].Temperature, 1e-9)
}

func TestAnalyzeErrors(t *testing.T) {
	srv := chatServer(t, "", http.StatusOK, nil)

	_, err := newTestClient(t, srv, "").Analyze(context.Background(), Request{Transcript: "t"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = newTestClient(t, srv, "key").Analyze(context.Background(), Request{Transcript: "t", PromptID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownPrompt)

	_, err = newTestClient(t, srv, "key").Analyze(context.Background(), Request{Transcript: "t"})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	failing := chatServer(t, "", http.StatusBadRequest, nil)
	_, err = newTestClient(t, failing, "key").Analyze(context.Background(), Request{Transcript: "t"})
	assert.ErrorContains(t, err, "upstream broke")
}

func TestGenerateTitle(t *testing.T) {
	srv := chatServer(t, "\"Mastering Go Channels\"\nextra line", http.StatusOK, nil)
	assert.Equal(t, "Mastering Go Channels", newTestClient(t, srv, "key").GenerateTitle(context.Background(), "t", meta, ""))

	failing := chatServer(t, "", http.StatusBadRequest, nil)
	assert.Equal(t, meta.Title, newTestClient(t, failing, "key").GenerateTitle(context.Background(), "t", meta, ""))

	assert.Equal(t, meta.Title, newTestClient(t, srv, "").GenerateTitle(context.Background(), "t", meta, ""))
}

func TestPrompts(t *testing.T) {
	p, err := NewPrompts(map[string]string{"custom": "Just {{.Title}}", "summary": "override {{.Transcript}}"})
	require.NoError(t, err)
	assert.Equal(t, []string{"custom", "key-points", "study-notes", "summary"}, p.IDs())
	assert.True(t, p.Has("custom"))

	out, err := p.render("summary", promptData{Transcript: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "override abc", out)

	_, err = NewPrompts(map[string]string{"broken": "{{.Title"})
	assert.Error(t, err)

	bad, err := NewPrompts(map[string]string{"missing": "{{.Nope}}"})
	require.NoError(t, err)
	_, err = bad.render("missing", promptData{})
	assert.Error(t, err)
}

func TestStripFencesAndTruncate(t *testing.T) {
	assert.Equal(t, "x", stripFences("```md\nx\n```"))
	assert.Equal(t, "plain ``` inside", stripFences("plain ``` inside"))
	assert.Equal(t, "héll...", truncate("héllo", 4))
	assert.Equal(t, "abc", truncate("abc", 0))
}
