package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Completer is the single text-completion capability every pipeline stage uses.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Model() string
}

type CompletionRequest struct {
	SystemPrompt string // optional
	Prompt       string
	MaxTokens    int      // 0 = client default
	Temperature  *float64 // nil = model default (reasoning models reject explicit values)
	TopP         *float64 // nil = model default
}

type Completion struct {
	Text             string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
}

type client struct {
	openai    openai.Client
	model     string
	maxTokens int
	limiter   *rate.Limiter
}

// New creates a Completer backed by any OpenAI-compatible chat completions API.
// A positive RequestsPerSecond throttles calls client-side so a wide fan-out does
// not trip the provider's rate limit.
func New(cfg Config) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are handled by WithRetry so the policy is visible at the call site.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	var c Completer = &client{
		openai:    openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		limiter:   limiter,
	}
	if cfg.MaxRetries > 0 {
		c = WithRetry(c, cfg.MaxRetries, time.Second)
	}
	return c, nil
}

func (c *client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}

	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}

	slog.DebugContext(ctx, "llm completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	return &Completion{
		Text:             choice.Message.Content,
		FinishReason:     choice.FinishReason,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func (c *client) Model() string {
	return c.model
}

// CompleteText runs req and returns the trimmed text, or ErrEmptyCompletion.
func CompleteText(ctx context.Context, c Completer, req CompletionRequest) (string, error) {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// GenerateSchema reflects T into an inline JSON schema (no $refs).
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Float(f float64) *float64 {
	return &f
}

// IsRetryable reports whether err is worth another attempt: rate limits,
// server errors and network failures are, client errors and cancellation are not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			slog.WarnContext(ctx, "llm rate limited, will retry",
				"status_code", apiErr.StatusCode)
			return true
		case apiErr.StatusCode >= 500:
			slog.WarnContext(ctx, "llm server error, will retry",
				"status_code", apiErr.StatusCode)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable",
				"status_code", apiErr.StatusCode,
				"error_type", apiErr.Type,
				"error_code", apiErr.Code)
			return false
		}
	}

	if errors.Is(err, ErrEmptyCompletion) {
		return false
	}

	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}
