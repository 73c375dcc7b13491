// Package llm adapts hosted language models to the single-call
// Generate(ctx, prompt, maxTokens) surface used by extraction, insight
// composition and chat.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
	"github.com/okian/finsight/pkg/metrics"
)

const (
	// DefaultTimeout bounds a single model call.
	DefaultTimeout = 30 * time.Second
	// DefaultTemperature keeps structured answers stable.
	DefaultTemperature = 0.2

	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// New builds the generator for provider.
func New(ctx context.Context, provider, apiKey, modelName string, opts ...Option) (Generator, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	switch strings.ToLower(provider) {
	case ProviderAnthropic, "claude":
		return NewClaude(apiKey, modelName, opts...), nil
	case ProviderGemini, "google":
		return NewGemini(ctx, apiKey, modelName, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// invoke runs one model call under the configured timeout and records its outcome.
func invoke(ctx context.Context, provider string, s settings, call func(context.Context) (string, error)) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := call(ctx)
	latency := float64(time.Since(start).Microseconds()) / 1000

	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)):
		metrics.RecordLLMRequest(provider, "timeout", latency)
		return "", fmt.Errorf("%s generate: %w: %v", provider, model.ErrTransportTimeout, err)
	case err != nil:
		metrics.RecordLLMRequest(provider, "error", latency)
		s.log.Warn(ctx, "llm call failed", logger.String("provider", provider), logger.Error(err))
		return "", fmt.Errorf("%s generate: %w", provider, err)
	case strings.TrimSpace(text) == "":
		metrics.RecordLLMRequest(provider, "empty", latency)
		return "", fmt.Errorf("%s generate: %w", provider, ErrEmptyResponse)
	}

	metrics.RecordLLMRequest(provider, "ok", latency)
	s.log.Debug(ctx, "llm call", logger.String("provider", provider), logger.Float64("latency_ms", latency))
	return text, nil
}
