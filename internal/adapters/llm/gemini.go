package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini generates text with the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	cfg    settings
}

// NewGemini creates a Gemini generator.
func NewGemini(ctx context.Context, apiKey, modelName string, opts ...Option) (*Gemini, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, model: modelName, cfg: cfg}, nil
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return invoke(ctx, ProviderGemini, g.cfg, func(ctx context.Context) (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(g.cfg.temperature)),
			MaxOutputTokens: int32(maxTokens), //nolint:gosec // bounded by config
		})
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	})
}
