package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"

	"taste-agent/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// toolContent is the body of a role=tool message.
type toolContent struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// Client sends tool-enabled chat completions to an OpenAI-compatible API.
type Client struct {
	model       string
	baseURL     string
	temperature float32
	httpClient  *http.Client
	getter      Getter
	paramPrefix string
	staticKey   string
	logger      *slog.Logger

	mu     sync.Mutex
	apiKey string
	api    *goopenai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

func WithTemperature(t float32) Option {
	return func(c *Client) { c.temperature = t }
}

// WithAPIKey sets a fixed key and skips Parameter Store entirely.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.staticKey = strings.TrimSpace(key) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client. Unless WithAPIKey is given, the key is read
// from <paramPrefix>/open-ai-token through ps on every call, so ps should
// cache.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	c := &Client{
		model:       defaultModel,
		baseURL:     defaultBaseURL,
		temperature: 0.7,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		getter:      ps,
		paramPrefix: strings.TrimRight(strings.TrimSpace(paramPrefix), "/"),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.staticKey != "" {
		return c, nil
	}
	if c.getter == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	if c.paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	return c, nil
}

// Send runs one chat completion with the given tools available.
func (c *Client) Send(ctx context.Context, messages []domain.ChatMessage, tools []domain.ToolSchema) (domain.ModelReply, error) {
	api, err := c.chatClient(ctx)
	if err != nil {
		return domain.ModelReply{}, err
	}

	reqMessages, err := toOpenAIMessages(messages)
	if err != nil {
		return domain.ModelReply{}, err
	}
	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    reqMessages,
		Tools:       toOpenAITools(tools),
		Temperature: c.temperature,
	}

	resp, err := api.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.ModelReply{}, wrapUpstreamError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.ModelReply{}, errors.New("openai: no choices in response")
	}
	return c.fromOpenAIMessage(resp.Choices[0].Message), nil
}

func (c *Client) chatClient(ctx context.Context) (*goopenai.Client, error) {
	key, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil || c.apiKey != key {
		cfg := goopenai.DefaultConfig(key)
		cfg.BaseURL = c.baseURL
		cfg.HTTPClient = c.httpClient
		c.api = goopenai.NewClientWithConfig(cfg)
		c.apiKey = key
	}
	return c.api, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	if c.staticKey != "" {
		return c.staticKey, nil
	}
	return fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParameterName())
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/open-ai-token"
}

func toOpenAIMessages(messages []domain.ChatMessage) ([]goopenai.ChatCompletionMessage, error) {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleTool:
			for _, r := range m.ToolResults {
				body, err := json.Marshal(toolContent{Success: r.Success, Result: r.Payload, Error: r.Error})
				if err != nil {
					return nil, fmt.Errorf("openai: marshal result of %s: %w", r.Name, err)
				}
				out = append(out, goopenai.ChatCompletionMessage{
					Role:       goopenai.ChatMessageRoleTool,
					Content:    string(body),
					Name:       r.Name,
					ToolCallID: r.CallID,
				})
			}
		case domain.RoleAssistant:
			msg := goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, call := range m.ToolCalls {
				args, err := json.Marshal(nonNilArgs(call.Arguments))
				if err != nil {
					return nil, fmt.Errorf("openai: marshal arguments of %s: %w", call.Name, err)
				}
				msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
					ID:   call.CallID,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, msg)
		default:
			out = append(out, goopenai.ChatCompletionMessage{
				Role:    string(m.Role),
				Content: m.Content,
			})
		}
	}
	return out, nil
}

func toOpenAITools(schemas []domain.ToolSchema) []goopenai.Tool {
	if len(schemas) == 0 {
		return nil
	}
	out := make([]goopenai.Tool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

// fromOpenAIMessage converts the assistant reply. Arguments that are not a
// JSON object become an empty map; the tool then rejects the call and the
// model sees why.
func (c *Client) fromOpenAIMessage(msg goopenai.ChatCompletionMessage) domain.ModelReply {
	reply := domain.ModelReply{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				c.logger.Warn("malformed tool arguments", "tool", tc.Function.Name, "err", err)
				args = map[string]any{}
			}
		}
		id := tc.ID
		if id == "" {
			id = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		}
		reply.ToolCalls = append(reply.ToolCalls, domain.ToolCall{
			CallID:    id,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return reply
}

func wrapUpstreamError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}
	return fmt.Errorf("openai: request failed: %w", err)
}

func nonNilArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("openai: API token is empty")
	}
	return tp.Token, nil
}
