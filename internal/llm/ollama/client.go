// Package ollama generates completions with a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dwizi/roster-assist/internal/llm"
)

const providerName = "ollama"

type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"), "/api")
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "llama3:8b"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger.With("component", "llm-ollama"),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends one non-streaming /api/generate call bounded by the
// configured timeout.
func (c *Client) Generate(ctx context.Context, request llm.Request) (string, error) {
	model := strings.TrimSpace(request.Model)
	if model == "" {
		model = c.cfg.Model
	}
	body, err := json.Marshal(generateRequest{Model: model, Prompt: request.Prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", llm.TransportError(providerName, err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", llm.TransportError(providerName, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.logger.Error("ollama generate failed", "status", res.StatusCode, "model", model, "body", strings.TrimSpace(string(respBody)))
		return "", llm.StatusError(providerName, res.StatusCode, respBody)
	}

	var response generateResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", &llm.Error{Kind: llm.ErrUnavailable, Provider: providerName, Detail: "decode response", Err: err}
	}
	c.logger.Debug("ollama generate completed", "model", model, "duration_ms", time.Since(started).Milliseconds())
	return llm.Finalize(response.Response), nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the locally installed model names, sorted.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llm.TransportError(providerName, err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, llm.TransportError(providerName, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, llm.StatusError(providerName, res.StatusCode, respBody)
	}
	var tags tagsResponse
	if err := json.Unmarshal(respBody, &tags); err != nil {
		return nil, &llm.Error{Kind: llm.ErrUnavailable, Provider: providerName, Detail: "decode tags", Err: err}
	}
	names := make([]string, 0, len(tags.Models))
	for _, model := range tags.Models {
		if name := strings.TrimSpace(model.Name); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
