package policy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Result, error)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	Results []Result `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// SearchHandler serves POST {"query","top_k"} → {"results":[...]}.
func SearchHandler(searcher Searcher, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			writeSidecarJSON(w, http.StatusMethodNotAllowed, searchResponse{Error: "method not allowed"})
			return
		}
		var payload searchRequest
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeSidecarJSON(w, http.StatusBadRequest, searchResponse{Error: "invalid payload"})
			return
		}
		if strings.TrimSpace(payload.Query) == "" {
			writeSidecarJSON(w, http.StatusBadRequest, searchResponse{Error: "query is required"})
			return
		}
		results, err := searcher.Search(req.Context(), payload.Query, payload.TopK)
		if err != nil {
			logger.Error("policy search failed", "error", err)
			writeSidecarJSON(w, http.StatusInternalServerError, searchResponse{Error: err.Error()})
			return
		}
		if results == nil {
			results = []Result{}
		}
		writeSidecarJSON(w, http.StatusOK, searchResponse{Results: results})
	}
}

// RunSidecar serves policy search on addr until ctx is cancelled.
func RunSidecar(ctx context.Context, service *Service, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "policy-sidecar")

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeSidecarJSON(w, http.StatusOK, map[string]any{"status": "ok", "chunks": service.Index().Len()})
	})
	mux.HandleFunc("/search", SearchHandler(service, logger))

	server := &http.Server{
		Addr:              strings.TrimSpace(addr),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("policy sidecar starting", "addr", server.Addr, "chunks", service.Index().Len())
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func writeSidecarJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
