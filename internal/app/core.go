// Package app wires the store, policy index, generation client and query
// pipeline into runnable services.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dwizi/roster-assist/internal/changelist"
	"github.com/dwizi/roster-assist/internal/config"
	"github.com/dwizi/roster-assist/internal/embedding"
	"github.com/dwizi/roster-assist/internal/grounding"
	"github.com/dwizi/roster-assist/internal/llm"
	"github.com/dwizi/roster-assist/internal/llm/safety"
	"github.com/dwizi/roster-assist/internal/mutation"
	"github.com/dwizi/roster-assist/internal/nlu"
	"github.com/dwizi/roster-assist/internal/pipeline"
	"github.com/dwizi/roster-assist/internal/policy"
	"github.com/dwizi/roster-assist/internal/store"
)

// Core holds the services shared by the server, the MCP command and the
// maintenance commands.
type Core struct {
	Config   config.Config
	Store    *store.Store
	Policies *policy.Service
	// Search is the policy search used for grounding: the sidecar client
	// when ROSTER_ASSIST_POLICY_SIDECAR_URL is set, otherwise Policies.
	Search   policy.Searcher
	Pipeline *pipeline.Service
	Models   llm.ModelLister
}

func NewCore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(ctx); err != nil {
		sqlStore.Close()
		return nil, err
	}

	core, err := buildCore(ctx, cfg, sqlStore, logger)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}
	return core, nil
}

func buildCore(ctx context.Context, cfg config.Config, sqlStore *store.Store, logger *slog.Logger) (*Core, error) {
	embedder, err := embedding.New(ctx, embedding.Config{
		Provider: cfg.EmbeddingProvider,
		BaseURL:  cfg.EmbeddingBaseURL,
		APIKey:   cfg.EmbeddingAPIKey,
		Model:    cfg.EmbeddingModel,
		Timeout:  time.Duration(cfg.EmbeddingTimeoutSec) * time.Second,
	}, logger.With("component", "embedding"))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	index, err := policy.OpenIndex(cfg.PolicyIndexPath, cfg.PolicyMetaPath)
	if err != nil {
		return nil, fmt.Errorf("open policy index: %w", err)
	}
	policies := policy.NewService(index, embedder, sqlStore, policy.Config{
		Dir:           cfg.PolicyDir,
		MaxChunkChars: cfg.PolicyMaxChunkChars,
		TopK:          cfg.PolicySearchTopK,
	}, logger)

	var search policy.Searcher = policies
	if cfg.PolicySidecarURL != "" {
		search = policy.NewClient(cfg.PolicySidecarURL, time.Duration(cfg.PolicySearchTimeoutSec)*time.Second)
	}

	generator, models, err := NewGenerator(cfg, logger)
	if err != nil {
		return nil, err
	}

	var limiter pipeline.Limiter
	if cfg.QueryRateLimit > 0 {
		limiter = safety.New(safety.Config{
			RateLimitPerWindow: cfg.QueryRateLimit,
			RateLimitWindow:    time.Duration(cfg.QueryRateWindowSec) * time.Second,
			ExemptRequesters:   cfg.QueryRateExemptRequesters,
		})
	}

	service := pipeline.New(pipeline.Dependencies{
		Normalizer:   nlu.New(sqlStore, logger),
		Calendar:     grounding.NewCalendarAssembler(sqlStore, logger),
		Policy:       search,
		Generator:    generator,
		Interpreter:  changelist.NewInterpreter(logger),
		Applier:      mutation.NewApplier(sqlStore, logger),
		Interactions: sqlStore,
		Limiter:      limiter,
	}, pipeline.Config{
		DefaultModel:        cfg.LLMModel,
		PolicyTopK:          cfg.PolicySearchTopK,
		PolicySearchTimeout: time.Duration(cfg.PolicySearchTimeoutSec) * time.Second,
		RequireApproval:     cfg.MutationsRequireApproval,
		TranscriptDir:       cfg.TranscriptDir,
	}, logger)

	logger.Info("core services ready",
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
		"embedding_provider", cfg.EmbeddingProvider,
		"policy_chunks", index.Len(),
		"policy_sidecar", cfg.PolicySidecarURL != "",
	)
	return &Core{
		Config:   cfg,
		Store:    sqlStore,
		Policies: policies,
		Search:   search,
		Pipeline: service,
		Models:   models,
	}, nil
}

func (c *Core) Close() error {
	if c.Policies != nil {
		c.Policies.Close()
	}
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
