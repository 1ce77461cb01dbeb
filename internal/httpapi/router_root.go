// Package httpapi exposes the query pipeline and policy administration over
// HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dwizi/roster-assist/internal/config"
	"github.com/dwizi/roster-assist/internal/heartbeat"
	"github.com/dwizi/roster-assist/internal/llm"
	"github.com/dwizi/roster-assist/internal/orchestrator"
	"github.com/dwizi/roster-assist/internal/pipeline"
	"github.com/dwizi/roster-assist/internal/policy"
	"github.com/dwizi/roster-assist/internal/store"
)

type QueryService interface {
	SubmitQuery(ctx context.Context, query pipeline.Query) (pipeline.Result, error)
}

type PolicyManager interface {
	policy.Searcher
	Ingest(ctx context.Context, input policy.IngestInput) (policy.IngestResult, error)
	Delete(ctx context.Context, documentID string) error
	Documents(ctx context.Context) ([]store.PolicyDocument, error)
	Reindex(ctx context.Context) (int, error)
}

type JobQueue interface {
	Enqueue(job orchestrator.Job) (orchestrator.Job, error)
}

type Dependencies struct {
	Config    config.Config
	Store     *store.Store
	Pipeline  QueryService
	Policies  PolicyManager
	Models    llm.ModelLister
	Jobs      JobQueue
	Heartbeat *heartbeat.Registry
	// MCP is mounted at /mcp when set.
	MCP    http.Handler
	Logger *slog.Logger
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	mux.HandleFunc("/api/v1/info", rt.handleInfo)
	mux.HandleFunc("/api/v1/status", rt.handleStatus)
	mux.HandleFunc("/api/v1/query", rt.handleQuery)
	mux.HandleFunc("/api/v1/models", rt.handleModels)
	mux.HandleFunc("/api/v1/history", rt.handleHistory)
	mux.HandleFunc("/api/v1/policies", rt.handlePolicies)
	mux.HandleFunc("/api/v1/policies/delete", rt.handlePoliciesDelete)
	mux.HandleFunc("/api/v1/policies/search", rt.handlePoliciesSearch)
	mux.HandleFunc("/api/v1/policies/reindex", rt.handlePoliciesReindex)
	if deps.MCP != nil {
		mux.Handle("/mcp", deps.MCP)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
