package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dwizi/roster-assist/internal/llm"
)

func TestGenerateJoinsTextBlocks(t *testing.T) {
	var apiKey, version string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		apiKey = req.Header.Get("x-api-key")
		version = req.Header.Get("anthropic-version")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "Carol has "},
				{"type": "tool_use", "text": "ignored"},
				{"type": "text", "text": "four evening shifts."},
			},
		})
	}))
	defer server.Close()

	reply, err := New(Config{APIKey: "key", BaseURL: server.URL}, nil).Generate(context.Background(), llm.Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "Carol has four evening shifts." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if apiKey != "key" || version != apiVersion {
		t.Fatalf("unexpected headers: key=%q version=%q", apiKey, version)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, nil).Generate(context.Background(), llm.Request{Prompt: "x"})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
