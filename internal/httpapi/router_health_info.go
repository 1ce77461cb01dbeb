package httpapi

import (
	"net/http"
	"time"

	"github.com/dwizi/roster-assist/internal/heartbeat"
)

const componentStaleAfter = 2 * time.Minute

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": "store is unavailable"})
		return
	}
	if err := r.deps.Store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *router) handleInfo(w http.ResponseWriter, req *http.Request) {
	cfg := r.deps.Config
	policySearch := "in-process"
	if cfg.PolicySidecarURL != "" {
		policySearch = "sidecar"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":               "roster-assist",
		"environment":        cfg.Environment,
		"llm_provider":       cfg.LLMProvider,
		"llm_model":          cfg.LLMModel,
		"embedding_provider": cfg.EmbeddingProvider,
		"embedding_model":    cfg.EmbeddingModel,
		"policy_search":      policySearch,
		"approval_required":  cfg.MutationsRequireApproval,
	})
}

func (r *router) handleStatus(w http.ResponseWriter, req *http.Request) {
	if r.deps.Heartbeat == nil {
		writeJSON(w, http.StatusOK, heartbeat.Snapshot{Overall: heartbeat.OverallUnknown, Components: []heartbeat.ComponentStatus{}})
		return
	}
	snapshot := r.deps.Heartbeat.Snapshot(componentStaleAfter)
	status := http.StatusOK
	if heartbeat.IsDegradedState(snapshot.Overall) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snapshot)
}
