package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Claude generates text with the Anthropic Messages API.
type Claude struct {
	client anthropic.Client
	model  string
	cfg    settings
}

// NewClaude creates a Claude generator.
func NewClaude(apiKey, modelName string, opts ...Option) *Claude {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &Claude{
		client: anthropic.NewClient(reqOpts...),
		model:  modelName,
		cfg:    cfg,
	}
}

// Generate implements Generator.
func (c *Claude) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return invoke(ctx, ProviderAnthropic, c.cfg, func(ctx context.Context) (string, error) {
		resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(c.model),
			MaxTokens:   int64(maxTokens),
			Temperature: anthropic.Float(c.cfg.temperature),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return "", err
		}
		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		return text.String(), nil
	})
}
