package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cityalert/internal/config"
)

// New builds the configured provider and wraps it with tracing, logging and
// the optional rate limit.
func New(ctx context.Context, cfg config.ChatConfig, apiBaseURL string, timeout time.Duration) (ChatClient, error) {
	var (
		base ChatClient
		err  error
	)
	switch cfg.Provider {
	case "gemini":
		base, err = NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "openai":
		base, err = NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	case "proxy", "":
		base = NewProxyClient(apiBaseURL, timeout)
	case "fake":
		base = NewFakeClient()
	default:
		return nil, fmt.Errorf("llm: unknown chat provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: init %s: %w", cfg.Provider, err)
	}
	slog.InfoContext(ctx, "chat client ready", "client", base.Name())
	return Wrap(base, Traced(), WithLogging(nil), RateLimit(cfg.RPS, cfg.Burst)), nil
}
