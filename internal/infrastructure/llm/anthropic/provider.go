package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/infrastructure/llm"
)

const defaultMaxTokens = 1024

// Provider serves endpoints whose provider is "anthropic". The endpoint URL,
// when set, overrides the API base URL.
type Provider struct {
	messages  *anthropic.MessageService
	maxTokens int64
}

func New(apiKey string, maxTokens int) *Provider {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		// retries belong to the caller
		option.WithMaxRetries(0),
	)
	return &Provider{
		messages:  &client.Messages,
		maxTokens: int64(maxTokens),
	}
}

func (p *Provider) Complete(ctx context.Context, endpoint llm.Endpoint, prompt string, temperature float64) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(endpoint.Model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(temperature),
	}

	var opts []option.RequestOption
	if u := strings.TrimSpace(endpoint.URL); u != "" {
		opts = append(opts, option.WithBaseURL(u))
	}

	resp, err := p.messages.New(ctx, params, opts...)
	if err != nil {
		return "", classify(err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrGenerationTimeout, "anthropic messages", err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return domain.WrapError(domain.ErrGenerationTransport, "anthropic messages", err)
	}
	// leave network errors to the router's generic classification
	return err
}

var _ llm.Provider = (*Provider)(nil)
