// Package llm defines the generation contract shared by every model provider.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

var (
	ErrUnavailable = errors.New("llm unavailable")
	ErrTimeout     = errors.New("llm request timed out")
)

// FallbackReply replaces an empty completion.
const FallbackReply = "The assistant did not provide a response."

type Request struct {
	Prompt string
	// Model overrides the provider's configured model when set.
	Model string
}

type Generator interface {
	Generate(ctx context.Context, request Request) (string, error)
}

type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Error is returned by providers. Kind is ErrTimeout or ErrUnavailable, so
// callers can branch with errors.Is.
type Error struct {
	Kind     error
	Provider string
	Status   int
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	parts := []string{e.Provider + ": " + e.Kind.Error()}
	if e.Status > 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.Status))
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// TransportError classifies a failed round trip. Deadline and network
// timeouts become ErrTimeout; everything else is ErrUnavailable.
func TransportError(provider string, err error) error {
	kind := ErrUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = ErrTimeout
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// StatusError reports a non-2xx response with whatever detail the body holds.
func StatusError(provider string, status int, body []byte) error {
	return &Error{Kind: ErrUnavailable, Provider: provider, Status: status, Detail: ExtractDetail(body)}
}

// ExtractDetail pulls a message out of {"error":"..."},
// {"error":{"message":"..."}} or falls back to the raw body.
func ExtractDetail(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var text string
		if json.Unmarshal(payload.Error, &text) == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && strings.TrimSpace(nested.Message) != "" {
			return strings.TrimSpace(nested.Message)
		}
		if strings.TrimSpace(payload.Message) != "" {
			return strings.TrimSpace(payload.Message)
		}
	}
	if len(trimmed) > 512 {
		trimmed = trimmed[:512]
	}
	return trimmed
}

var (
	thinkBlockPattern = regexp.MustCompile(`(?is)<think\b[^>]*>.*?</think>`)
	thinkFencePattern = regexp.MustCompile("(?is)```think\\s*.*?```")
)

// Finalize strips reasoning blocks some local models emit and substitutes
// FallbackReply for an empty completion.
func Finalize(text string) string {
	cleaned := thinkBlockPattern.ReplaceAllString(text, "")
	cleaned = thinkFencePattern.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, "<think>", "")
	cleaned = strings.ReplaceAll(cleaned, "</think>", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return FallbackReply
	}
	return cleaned
}
