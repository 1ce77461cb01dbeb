package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dwizi/roster-assist/internal/embedding"
	"github.com/dwizi/roster-assist/internal/orchestrator"
	"github.com/dwizi/roster-assist/internal/policy"
	"github.com/dwizi/roster-assist/internal/store"
)

type ingestPolicyRequest struct {
	Title      string `json:"title"`
	SourcePath string `json:"source_path"`
	Content    string `json:"content"`
	UploaderID string `json:"uploader_id"`
}

type deletePolicyRequest struct {
	ID string `json:"id"`
}

func policyDocumentPayload(document store.PolicyDocument) map[string]any {
	return map[string]any{
		"id":              document.ID,
		"title":           document.Title,
		"source_path":     document.SourcePath,
		"uploader_id":     document.UploaderID,
		"chars":           len(document.Content),
		"created_at_unix": document.CreatedAt.Unix(),
		"updated_at_unix": document.UpdatedAt.Unix(),
	}
}

func (r *router) requirePolicies(w http.ResponseWriter) bool {
	if r.deps.Policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "policy index is unavailable"})
		return false
	}
	return true
}

func (r *router) handlePolicies(w http.ResponseWriter, req *http.Request) {
	if !r.requirePolicies(w) {
		return
	}
	switch req.Method {
	case http.MethodGet:
		documents, err := r.deps.Policies.Documents(req.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		items := make([]map[string]any, 0, len(documents))
		for _, document := range documents {
			items = append(items, policyDocumentPayload(document))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	case http.MethodPost:
		var payload ingestPolicyRequest
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		if strings.TrimSpace(payload.Title) == "" || strings.TrimSpace(payload.Content) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title and content are required"})
			return
		}
		result, err := r.deps.Policies.Ingest(req.Context(), policy.IngestInput{
			Title:      payload.Title,
			SourcePath: payload.SourcePath,
			Content:    payload.Content,
			UploaderID: payload.UploaderID,
		})
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, policy.ErrEmptyDocument), errors.Is(err, store.ErrPolicyDocumentInvalid):
				status = http.StatusBadRequest
			case errors.Is(err, embedding.ErrUnavailable):
				status = http.StatusBadGateway
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		response := policyDocumentPayload(result.Document)
		response["chunks"] = result.Chunks
		writeJSON(w, http.StatusCreated, response)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (r *router) handlePoliciesDelete(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if !r.requirePolicies(w) {
		return
	}
	var payload deletePolicyRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	id := strings.TrimSpace(payload.ID)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}
	if err := r.deps.Policies.Delete(req.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrPolicyDocumentNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (r *router) handlePoliciesSearch(w http.ResponseWriter, req *http.Request) {
	if !r.requirePolicies(w) {
		return
	}
	policy.SearchHandler(r.deps.Policies, r.deps.Logger)(w, req)
}

func (r *router) handlePoliciesReindex(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if !r.requirePolicies(w) {
		return
	}
	if r.deps.Jobs != nil {
		job, err := r.deps.Jobs.Enqueue(orchestrator.Job{Kind: orchestrator.JobKindReindexPolicies, Source: "api"})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, orchestrator.ErrQueueFull) {
				status = http.StatusTooManyRequests
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID, "status": "queued"})
		return
	}
	chunks, err := r.deps.Policies.Reindex(req.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reindexed", "chunks": chunks})
}
