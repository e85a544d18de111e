package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/vietddude/zerofail/internal/core/config"
	"github.com/vietddude/zerofail/internal/core/domain"
)

// AnthropicAdapter calls the Claude Messages API directly or through AWS Bedrock.
type AnthropicAdapter struct {
	name        string
	client      anthropic.Client
	model       anthropic.Model
	system      string
	maxTokens   int64
	temperature float64
}

// NewAnthropicAdapter creates a Claude adapter. The SDK's own retries are
// disabled; retry policy belongs to the pipeline.
func NewAnthropicAdapter(ctx context.Context, cfg config.ProviderConfig, extra ...option.RequestOption) (*AnthropicAdapter, error) {
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	if cfg.UseBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %s: api_key is required", cfg.Name)
		}
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.URL != "" {
			opts = append(opts, option.WithBaseURL(cfg.URL))
		}
	}
	opts = append(opts, extra...)

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	return &AnthropicAdapter{
		name:        cfg.Name,
		client:      anthropic.NewClient(opts...),
		model:       model,
		system:      cfg.SystemPrompt,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}, nil
}

// Name implements Adapter.
func (a *AnthropicAdapter) Name() string {
	return a.name
}

// Invoke implements Adapter.
func (a *AnthropicAdapter) Invoke(ctx context.Context, prompt string) (domain.Content, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if a.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.system}}
	}
	if a.temperature > 0 {
		params.Temperature = anthropic.Float(a.temperature)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return domain.Content{}, a.classify(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return domain.Content{}, NewPermanent(a.name, fmt.Errorf("%w: no text blocks", ErrMalformedResponse))
	}
	return domain.Content{Text: text, Model: string(resp.Model)}, nil
}

func (a *AnthropicAdapter) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &Error{
			Provider:   a.name,
			Kind:       ClassifyStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return NewPermanent(a.name, err)
	}
	// network failures and deadline expiry
	return NewTransient(a.name, err)
}
