package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestExtractDetail(t *testing.T) {
	cases := map[string]string{
		`{"error":"model 'llama9' not found"}`:           "model 'llama9' not found",
		`{"error":{"message":"invalid api key","x":1}}`: "invalid api key",
		`{"message":"overloaded"}`:                      "overloaded",
		"upstream exploded":                             "upstream exploded",
		"   ":                                           "",
	}
	for body, want := range cases {
		if got := ExtractDetail([]byte(body)); got != want {
			t.Fatalf("ExtractDetail(%q): expected %q, got %q", body, want, got)
		}
	}
}

func TestTransportErrorClassifiesTimeouts(t *testing.T) {
	err := TransportError("ollama", fmt.Errorf("post: %w", context.DeadlineExceeded))
	if !errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected timeout kind, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to stay reachable, got %v", err)
	}

	err = TransportError("ollama", errors.New("connection refused"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable kind, got %v", err)
	}
	var typed *Error
	if !errors.As(err, &typed) || typed.Provider != "ollama" {
		t.Fatalf("expected *Error with provider, got %#v", err)
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := StatusError("openai", 500, []byte(`{"error":{"message":"boom"}}`))
	if err.Error() != "openai: llm unavailable: status 500: boom" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestFinalize(t *testing.T) {
	if got := Finalize("  "); got != FallbackReply {
		t.Fatalf("expected fallback reply, got %q", got)
	}
	if got := Finalize("<think>\nworking\n</think>\n\nAlice has the most shifts."); got != "Alice has the most shifts." {
		t.Fatalf("expected think block stripped, got %q", got)
	}
}
