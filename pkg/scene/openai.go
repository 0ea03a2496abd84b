package scene

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/httpc"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	navigationPrompt = `You are a navigation assistant for visually impaired individuals.
Generate short, clear commands. Be concise and action-oriented.
Examples: "Stop. Obstacle ahead.", "Turn right. Door on your right.", "Continue straight."
Only describe what is actually detected. Do not speculate.`

	descriptionPrompt = `You are a visual assistant for visually impaired individuals.
Generate clear, descriptive explanations of the environment.
Be specific about locations (left, right, ahead, behind).
Use natural language appropriate for navigation.
Only describe what is actually detected. Do not speculate.`

	answerPrompt = "You are a visual assistant. Answer questions based only on the provided scene information. Do not speculate."
)

// OpenAIConfig configures the chat-completions describer.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64

	NavigationMaxTokens  int
	DescriptionMaxTokens int
	AnswerMaxTokens      int

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// Option configures an OpenAI describer.
type Option func(*OpenAIConfig)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *OpenAIConfig) { c.APIKey = key }
}

// WithBaseURL points the describer at any OpenAI-compatible API.
func WithBaseURL(url string) Option {
	return func(c *OpenAIConfig) { c.BaseURL = url }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(c *OpenAIConfig) { c.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *OpenAIConfig) { c.Temperature = t }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *OpenAIConfig) { c.Timeout = d }
}

// WithRetry configures retries for 429 and 5xx responses.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *OpenAIConfig) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *OpenAIConfig) { c.Logger = logger }
}

// DefaultOpenAIConfig returns the default describer settings.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:              defaultBaseURL,
		Model:                defaultModel,
		Temperature:          0.3,
		NavigationMaxTokens:  200,
		DescriptionMaxTokens: 500,
		AnswerMaxTokens:      150,
		Timeout:              10 * time.Second,
		MaxRetries:           1,
		RetryDelay:           200 * time.Millisecond,
		Logger:               slog.Default(),
	}
}

// OpenAI describes scenes through an OpenAI-compatible chat completions API.
type OpenAI struct {
	config OpenAIConfig
	http   *http.Client
	logger *slog.Logger
}

// NewOpenAI creates a describer. An API key is required.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultOpenAIConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &OpenAI{
		config: cfg,
		http:   httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "scene.openai"),
	}, nil
}

// Describe implements Describer.
func (o *OpenAI) Describe(ctx context.Context, s Summary, mode Mode) (string, error) {
	system, maxTokens := navigationPrompt, o.config.NavigationMaxTokens
	if mode == ModeDescription {
		system, maxTokens = descriptionPrompt, o.config.DescriptionMaxTokens
	}
	return o.complete(ctx, system, s.Prompt(), maxTokens)
}

// Answer implements Describer.
func (o *OpenAI) Answer(ctx context.Context, question string, s Summary) (string, error) {
	scene, err := json.MarshalIndent(struct {
		Objects []Object `json:"objects"`
		Texts   []Text   `json:"text_regions"`
	}{head(s.Objects, 5), head(s.Texts, 3)}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("scene: marshal summary: %w", err)
	}

	prompt := fmt.Sprintf("Based on the current scene, answer this question: %s\n\nScene information:\n%s\n\nAnswer concisely based only on the detected information.",
		question, scene)
	return o.complete(ctx, answerPrompt, prompt, o.config.AnswerMaxTokens)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	start := time.Now()
	body, err := json.Marshal(chatRequest{
		Model: o.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: o.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("scene: marshal request: %w", err)
	}

	resp, err := o.doWithRetry(ctx, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("scene: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("scene: no choices returned")
	}
	text := strings.TrimSpace(result.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("scene: empty completion")
	}

	o.logger.Debug("scene described",
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func (o *OpenAI) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := httpc.NewJSONRequest(ctx, o.config.BaseURL+"/chat/completions", o.config.APIKey, body)
		if err != nil {
			return nil, fmt.Errorf("scene: create request: %w", err)
		}

		resp, err := o.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("scene: request: %w", err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		lastErr = parseError(resp)
		resp.Body.Close()
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return nil, lastErr
		}
		o.logger.Warn("retrying request", "attempt", attempt+1, "status", resp.StatusCode)
	}
	return nil, lastErr
}

// APIError is an error response from a chat API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("scene: API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("scene: API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the request may succeed if retried.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Code = errResp.Error.Code
	}
	return apiErr
}

var _ Describer = (*OpenAI)(nil)
