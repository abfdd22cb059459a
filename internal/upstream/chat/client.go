// Package chat talks to OpenAI-compatible chat completion endpoints
// (Gemini, OpenRouter) through openai-go.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pysugar/daily-nexus/internal/apperr"
	"github.com/pysugar/daily-nexus/internal/providers/catalog"
	"github.com/pysugar/daily-nexus/internal/version"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 1024
)

// Message roles accepted in Request.History.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior exchange in the conversation.
type Message struct {
	Role    string
	Content string
}

// Request is a single completion request. When Schema is set the provider is
// asked for a strict JSON object matching it.
type Request struct {
	Model      string
	System     string
	History    []Message
	Prompt     string
	SchemaName string
	Schema     any
	MaxTokens  int
}

// Completion is the first choice of a completion.
type Completion struct {
	Provider         string
	Model            string
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Completer produces one completion per call.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Model() string
}

// Client is one configured chat provider.
type Client struct {
	id     string
	model  string
	apiKey string
	openai openai.Client
}

// NewClient builds a client from a chat registry entry. A nil httpClient
// gets one bounded by the provider timeout.
func NewClient(p catalog.Provider, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(p.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", version.UserAgent()),
	}
	if base := strings.TrimSpace(p.APIBaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	for k, v := range p.StaticHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}

	return &Client{
		id:     p.ID,
		model:  p.DefaultModel,
		apiKey: strings.TrimSpace(p.APIKey),
		openai: openai.NewClient(opts...),
	}
}

func (c *Client) Provider() string { return c.id }

func (c *Client) Model() string { return c.model }

// IsEnabled reports whether the client has what it needs to call out.
func (c *Client) IsEnabled() bool {
	return c != nil && c.id != "" && c.apiKey != ""
}

// Complete sends the system prompt, history and prompt and returns the first
// choice. No retries are attempted.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("no model configured for chat provider %s", c.id)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:     model,
		Messages:  buildMessages(req),
		MaxTokens: openai.Int(int64(maxTokens)),
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: req.Schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &apperr.UpstreamError{Provider: c.id, Err: errors.New("no choices in response")}
	}

	choice := resp.Choices[0]
	slog.DebugContext(ctx, "chat completion finished",
		"provider", c.id,
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", choice.FinishReason,
	)

	return &Completion{
		Provider:         c.id,
		Model:            model,
		Content:          choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		slog.WarnContext(ctx, "chat provider error",
			"provider", c.id,
			"status_code", apiErr.StatusCode,
			"error_type", apiErr.Type,
			"error_code", apiErr.Code,
		)
		return &apperr.UpstreamError{Provider: c.id, StatusCode: apiErr.StatusCode, Err: err}
	}
	slog.WarnContext(ctx, "chat provider unreachable", "provider", c.id, "error", err)
	return &apperr.UpstreamError{Provider: c.id, Err: err}
}

func buildMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.History {
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		}
	}
	return append(msgs, openai.UserMessage(req.Prompt))
}
