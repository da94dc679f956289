// Package summarizer turns a transcript into markdown notes through an
// OpenAI compatible chat completion API (OpenRouter by default).
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/z-wentao/tubenotes/pkg/models"
)

const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel      = "openai/gpt-3.5-turbo"
	DefaultMaxTokens  = 2000

	descriptionLimit = 500
	// keeps very long videos inside typical context windows
	transcriptLimit      = 120000
	titleTranscriptLimit = 2000
	titleMaxTokens       = 40
	titleMaxLen          = 120
)

var (
	ErrMissingAPIKey = errors.New("openrouter api key not configured")
	ErrUnknownPrompt = errors.New("unknown prompt")
	ErrEmptyResponse = errors.New("model returned no content")
)

type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	Temperature  float32
	Prompts      map[string]string
	HTTPClient   *http.Client
}

// Client calls the chat completion API.
type Client struct {
	client      *openai.Client
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
	prompts     *Prompts
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	prompts, err := NewPrompts(cfg.Prompts)
	if err != nil {
		return nil, err
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		client:      openai.NewClientWithConfig(oc),
		apiKey:      cfg.APIKey,
		model:       cfg.DefaultModel,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		prompts:     prompts,
	}, nil
}

// Configured reports whether an api key is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Prompts exposes the prompt set, mainly for listing ids.
func (c *Client) Prompts() *Prompts {
	return c.prompts
}

// Request describes one analysis. Zero values fall back to client defaults.
type Request struct {
	Transcript string
	Metadata   *models.VideoMetadata
	Model      string
	PromptID   string
	MaxTokens  int
}

// Analyze renders the chosen prompt and returns the model's markdown.
func (c *Client) Analyze(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", ErrMissingAPIKey
	}
	if req.PromptID == "" {
		req.PromptID = DefaultPromptID
	}

	prompt, err := c.prompts.render(req.PromptID, newPromptData(req.Metadata, req.Transcript, descriptionLimit, transcriptLimit))
	if err != nil {
		return "", err
	}

	content, err := c.complete(ctx, c.pickModel(req.Model), c.pickMaxTokens(req.MaxTokens), systemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("analyze: %w", err)
	}
	return content, nil
}

// GenerateTitle asks the model for a short title. Any failure falls back
// to the video's own title.
func (c *Client) GenerateTitle(ctx context.Context, transcript string, meta *models.VideoMetadata, model string) string {
	fallback := ""
	if meta != nil {
		fallback = meta.Title
	}
	if !c.Configured() {
		return fallback
	}

	tmplData := newPromptData(meta, transcript, descriptionLimit, titleTranscriptLimit)
	var b strings.Builder
	if err := builtinTitleTemplate.Execute(&b, tmplData); err != nil {
		return fallback
	}

	title, err := c.complete(ctx, c.pickModel(model), titleMaxTokens, "You write short, accurate titles.", b.String())
	if err != nil {
		slog.Warn("title generation failed, keeping original title", slog.Any("error", err))
		return fallback
	}
	title = cleanTitle(title)
	if title == "" {
		return fallback
	}
	return title
}

func (c *Client) complete(ctx context.Context, model string, maxTokens int, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: wireTemperature(c.temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := stripFences(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func (c *Client) pickModel(model string) string {
	if model != "" {
		return model
	}
	return c.model
}

func (c *Client) pickMaxTokens(n int) int {
	if n > 0 {
		return n
	}
	return c.maxTokens
}

// stripFences removes a code fence wrapped around the whole reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```markdown")
	s = strings.TrimPrefix(s, "```md")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(strings.SplitN(strings.TrimSpace(s), "\n", 2)[0])
	s = strings.TrimPrefix(s, "# ")
	s = strings.Trim(s, "\"'`*")
	s = strings.TrimSpace(s)
	return truncate(s, titleMaxLen)
}

// wireTemperature keeps an explicit 0 on the wire; the request field is
// omitempty, and a missing temperature means the provider default.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
