package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/roster-assist/internal/config"
	"github.com/dwizi/roster-assist/internal/llm"
	"github.com/dwizi/roster-assist/internal/llm/anthropic"
	"github.com/dwizi/roster-assist/internal/llm/ollama"
	"github.com/dwizi/roster-assist/internal/llm/openai"
)

// NewGenerator builds the configured generation client. The model lister is
// nil for providers that cannot enumerate models.
func NewGenerator(cfg config.Config, logger *slog.Logger) (llm.Generator, llm.ModelLister, error) {
	timeout := time.Duration(cfg.LLMTimeoutSec) * time.Second
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "ollama":
		client := ollama.New(ollama.Config{
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}, logger.With("component", "llm-ollama"))
		return client, client, nil
	case "openai":
		client := openai.New(openai.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}, logger.With("component", "llm-openai"))
		return client, client, nil
	case "anthropic":
		client := anthropic.New(anthropic.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}, logger.With("component", "llm-anthropic"))
		return client, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}
