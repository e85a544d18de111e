package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/zerofail/internal/core/config"
	"github.com/vietddude/zerofail/internal/core/domain"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIAdapter calls an OpenAI-compatible chat completions endpoint.
type OpenAIAdapter struct {
	name        string
	endpoint    string
	apiKey      string
	model       string
	system      string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewOpenAIAdapter creates an adapter from provider config. The per-attempt
// timeout comes from the request context, so the client has none of its own.
func NewOpenAIAdapter(cfg config.ProviderConfig) *OpenAIAdapter {
	endpoint := cfg.URL
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}
	return &OpenAIAdapter{
		name:        cfg.Name,
		endpoint:    endpoint,
		apiKey:      cfg.APIKey,
		model:       model,
		system:      cfg.SystemPrompt,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Name implements Adapter.
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// Invoke implements Adapter.
func (a *OpenAIAdapter) Invoke(ctx context.Context, prompt string) (domain.Content, error) {
	messages := make([]chatMessage, 0, 2)
	if a.system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: a.system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	jsonData, err := json.Marshal(chatRequest{
		Model:       a.model,
		Messages:    messages,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	if err != nil {
		return domain.Content{}, NewPermanent(a.name, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return domain.Content{}, NewPermanent(a.name, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.Content{}, NewTransient(a.name, fmt.Errorf("chat call: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Content{}, NewTransient(a.name, fmt.Errorf("read response: %w", err))
	}

	// Rate limit detection
	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.Content{}, &Error{
			Provider:   a.name,
			Kind:       Transient,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("rate limited: %s", snippet(body)),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return domain.Content{}, &Error{
			Provider:   a.name,
			Kind:       ClassifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("http %d: %s", resp.StatusCode, snippet(body)),
		}
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return domain.Content{}, NewPermanent(a.name, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == nil {
		return domain.Content{}, NewPermanent(a.name, fmt.Errorf("%w: no message content", ErrMalformedResponse))
	}

	text := strings.TrimSpace(*chat.Choices[0].Message.Content)
	if text == "" {
		return domain.Content{}, NewPermanent(a.name, fmt.Errorf("%w: empty message content", ErrMalformedResponse))
	}

	model := chat.Model
	if model == "" {
		model = a.model
	}
	return domain.Content{Text: text, Model: model}, nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(b []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
