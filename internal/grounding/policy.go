package grounding

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dwizi/roster-assist/internal/policy"
)

type PolicySearcher interface {
	Search(ctx context.Context, query string, topK int) ([]policy.Result, error)
}

// PolicyContext joins the top-k policy passages for query. Any failure
// yields an empty string.
func PolicyContext(ctx context.Context, searcher PolicySearcher, query string, topK int, logger *slog.Logger) string {
	if searcher == nil || strings.TrimSpace(query) == "" {
		return ""
	}
	if logger == nil {
		logger = slog.Default()
	}
	results, err := searcher.Search(ctx, query, topK)
	if err != nil {
		logger.Warn("policy search failed", "component", "policy-context", "error", err, "query", query)
		return ""
	}
	passages := make([]string, 0, len(results))
	for _, result := range results {
		if text := strings.TrimSpace(result.Text); text != "" {
			passages = append(passages, text)
		}
	}
	return strings.Join(passages, "\n")
}
