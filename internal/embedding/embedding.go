// Package embedding turns text into vectors for policy retrieval.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder produces vectors for single queries and document batches.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

type Config struct {
	Provider string // ollama | genai
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "ollama":
		return NewOllama(cfg, logger), nil
	case "genai":
		return NewGenAI(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}
