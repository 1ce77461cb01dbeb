package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dwizi/roster-assist/internal/changelist"
	"github.com/dwizi/roster-assist/internal/llm"
	"github.com/dwizi/roster-assist/internal/pipeline"
	"github.com/dwizi/roster-assist/internal/store"
)

type queryRequest struct {
	Query       string `json:"query"`
	Model       string `json:"model"`
	RequesterID string `json:"requester_id"`
}

type outcomePayload struct {
	Employee  string `json:"employee"`
	Date      string `json:"date"`
	ShiftType string `json:"shift_type"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	EntryID   string `json:"entry_id,omitempty"`
}

type queryResponse struct {
	Answer          string                     `json:"answer"`
	ScheduleUpdates []changelist.ChangeRequest `json:"schedule_updates"`
	Outcomes        []outcomePayload           `json:"outcomes,omitempty"`
	Applied         int                        `json:"applied"`
	Skipped         int                        `json:"skipped"`
	Model           string                     `json:"model"`
	Error           string                     `json:"error,omitempty"`
}

func (r *router) handleQuery(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if r.deps.Pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "query pipeline is unavailable"})
		return
	}

	var payload queryRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	result, err := r.deps.Pipeline.SubmitQuery(req.Context(), pipeline.Query{
		Text:        payload.Query,
		Model:       payload.Model,
		RequesterID: payload.RequesterID,
	})
	if err != nil && !errors.Is(err, pipeline.ErrMutationFailed) {
		writeJSON(w, queryErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}

	response := queryResponse{
		Answer:          result.Answer,
		ScheduleUpdates: result.ScheduleUpdates,
		Applied:         result.Applied,
		Skipped:         result.Skipped,
		Model:           result.Model,
	}
	if response.ScheduleUpdates == nil {
		response.ScheduleUpdates = []changelist.ChangeRequest{}
	}
	for _, outcome := range result.Outcomes {
		response.Outcomes = append(response.Outcomes, outcomePayload{
			Employee:  outcome.Request.Employee,
			Date:      outcome.Request.Date,
			ShiftType: outcome.Request.ShiftType,
			Action:    string(outcome.Action),
			Reason:    outcome.Reason,
			EntryID:   outcome.EntryID,
		})
	}
	if err != nil {
		response.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, response)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func queryErrorStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, llm.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, llm.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (r *router) handleModels(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	defaultModel := r.deps.Config.LLMModel
	if r.deps.Models == nil {
		writeJSON(w, http.StatusOK, map[string]any{"models": []string{defaultModel}, "default": defaultModel})
		return
	}
	models, err := r.deps.Models.ListModels(req.Context())
	if err != nil {
		r.deps.Logger.Warn("list models failed", "error", err)
		writeJSON(w, queryErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models, "default": defaultModel})
}

func (r *router) handleHistory(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	requesterID := strings.TrimSpace(req.URL.Query().Get("requester_id"))
	if requesterID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requester_id query parameter is required"})
		return
	}
	limit := 50
	if raw := strings.TrimSpace(req.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := r.deps.Store.ListInteractions(req.Context(), store.ListInteractionsInput{RequesterID: requesterID, Limit: limit})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, map[string]any{
			"id":              record.ID,
			"query":           record.Query,
			"answer":          record.Answer,
			"model":           record.Model,
			"created_at_unix": record.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}
