package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/infrastructure/llm"
)

// Provider serves endpoints whose provider is "gemini".
type Provider struct {
	client *genai.Client
}

func New(ctx context.Context, apiKey, baseURL string) (*Provider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(baseURL) != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Complete(ctx context.Context, endpoint llm.Endpoint, prompt string, temperature float64) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	resp, err := p.client.Models.GenerateContent(ctx, endpoint.Model, genai.Text(prompt), config)
	if err != nil {
		return "", classify(err)
	}

	var b strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part != nil && part.Text != "" {
					b.WriteString(part.Text)
				}
			}
			if b.Len() > 0 {
				break
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrGenerationTimeout, "gemini generate", err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return domain.WrapError(domain.ErrGenerationTransport, "gemini generate", err)
	}
	return err
}

var _ llm.Provider = (*Provider)(nil)
