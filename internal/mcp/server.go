// Package mcp exposes the scheduling assistant as Model Context Protocol
// tools, over stdio or streamable HTTP.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dwizi/roster-assist/internal/pipeline"
	"github.com/dwizi/roster-assist/internal/policy"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ToolSubmitQuery    = "submit_query"
	ToolSearchPolicies = "search_policies"
)

type QueryService interface {
	SubmitQuery(ctx context.Context, query pipeline.Query) (pipeline.Result, error)
}

type Config struct {
	Name          string
	Version       string
	DefaultTopK   int
	DefaultCaller string
}

type Server struct {
	server   *sdkmcp.Server
	pipeline QueryService
	policies policy.Searcher
	cfg      Config
	logger   *slog.Logger
}

// NewServer registers submit_query, plus search_policies when a searcher is
// given.
func NewServer(queries QueryService, policies policy.Searcher, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "roster-assist"
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = "dev"
	}
	if cfg.DefaultTopK < 1 {
		cfg.DefaultTopK = 5
	}
	if strings.TrimSpace(cfg.DefaultCaller) == "" {
		cfg.DefaultCaller = "mcp"
	}
	s := &Server{
		server:   sdkmcp.NewServer(&sdkmcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		pipeline: queries,
		policies: policies,
		cfg:      cfg,
		logger:   logger.With("component", "mcp"),
	}
	s.server.AddTool(&sdkmcp.Tool{
		Name:        ToolSubmitQuery,
		Description: "Ask the scheduling assistant about the team calendar. Approved schedule changes are applied to the calendar.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":        map[string]any{"type": "string", "description": "Natural-language question or instruction"},
				"model":        map[string]any{"type": "string", "description": "Optional model override"},
				"requester_id": map[string]any{"type": "string", "description": "Supervisor identifier for history"},
			},
			"required": []string{"query"},
		},
	}, s.handleSubmitQuery)
	if policies != nil {
		s.server.AddTool(&sdkmcp.Tool{
			Name:        ToolSearchPolicies,
			Description: "Search company policy passages relevant to a question.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
					"top_k": map[string]any{"type": "integer", "minimum": 1},
				},
				"required": []string{"query"},
			},
		}, s.handleSearchPolicies)
	}
	return s
}

// RunStdio serves a single client on stdin/stdout until ctx ends.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	return s.server.Run(ctx, &sdkmcp.StdioTransport{})
}

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return s.server }, nil)
}

type submitQueryArgs struct {
	Query       string `json:"query"`
	Model       string `json:"model"`
	RequesterID string `json:"requester_id"`
}

type submitQueryPayload struct {
	Answer          string `json:"answer"`
	ScheduleUpdates any    `json:"schedule_updates"`
	Applied         int    `json:"applied"`
	Skipped         int    `json:"skipped"`
	Model           string `json:"model"`
	Error           string `json:"error,omitempty"`
}

func (s *Server) handleSubmitQuery(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
	var args submitQueryArgs
	if err := decodeArguments(req, &args); err != nil {
		return toolError(err), nil
	}
	if strings.TrimSpace(args.RequesterID) == "" {
		args.RequesterID = s.cfg.DefaultCaller
	}
	result, err := s.pipeline.SubmitQuery(ctx, pipeline.Query{Text: args.Query, Model: args.Model, RequesterID: args.RequesterID})
	if err != nil && !errors.Is(err, pipeline.ErrMutationFailed) {
		s.logger.Warn("mcp query failed", "requester_id", args.RequesterID, "error", err)
		return toolError(err), nil
	}
	payload := submitQueryPayload{
		Answer:          result.Answer,
		ScheduleUpdates: result.ScheduleUpdates,
		Applied:         result.Applied,
		Skipped:         result.Skipped,
		Model:           result.Model,
	}
	if result.ScheduleUpdates == nil {
		payload.ScheduleUpdates = []any{}
	}
	if err != nil {
		payload.Error = err.Error()
	}
	encoded, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, marshalErr
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(encoded)}},
		IsError: err != nil,
	}, nil
}

type searchPoliciesArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleSearchPolicies(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
	var args searchPoliciesArgs
	if err := decodeArguments(req, &args); err != nil {
		return toolError(err), nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return toolError(fmt.Errorf("query is required")), nil
	}
	if args.TopK < 1 {
		args.TopK = s.cfg.DefaultTopK
	}
	results, err := s.policies.Search(ctx, args.Query, args.TopK)
	if err != nil {
		return toolError(err), nil
	}
	if len(results) == 0 {
		return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "No matching policy passages."}}}, nil
	}
	content := make([]sdkmcp.Content, 0, len(results))
	for _, result := range results {
		content = append(content, &sdkmcp.TextContent{Text: result.Text})
	}
	return &sdkmcp.CallToolResult{Content: content}, nil
}

func decodeArguments(req *sdkmcp.CallToolRequest, out any) error {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, out); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

func toolError(err error) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}
