// Package changelist extracts schedule change requests from a model answer.
package changelist

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/titanous/json5"
)

// ChangeRequest asks for employee to work shift_type on date (YYYY-MM-DD).
// Values are carried as written by the model and validated on apply.
type ChangeRequest struct {
	Employee  string `json:"employee"`
	Date      string `json:"date"`
	ShiftType string `json:"shift_type"`
}

type Result struct {
	Requests []ChangeRequest
	// Dropped counts array elements that were not usable change objects.
	Dropped int
	// Found reports whether a bracketed block was present at all.
	Found bool
}

type Interpreter struct {
	logger *slog.Logger
}

func NewInterpreter(logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{logger: logger.With("component", "changelist")}
}

// Interpret parses the text between the first '[' and the last ']' as a
// lenient JSON array. It never fails; unusable input yields no requests.
func (i *Interpreter) Interpret(text string) Result {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return Result{Requests: []ChangeRequest{}}
	}
	result := Result{Requests: []ChangeRequest{}, Found: true}

	var items []any
	if err := json5.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		i.logger.Warn("change list did not parse", "error", err, "raw", text)
		return result
	}
	for _, item := range items {
		request, ok := toRequest(item)
		if !ok {
			result.Dropped++
			continue
		}
		result.Requests = append(result.Requests, request)
	}
	if result.Dropped > 0 {
		i.logger.Warn("change list items dropped", "dropped", result.Dropped, "kept", len(result.Requests))
	}
	return result
}

func toRequest(item any) (ChangeRequest, bool) {
	object, ok := item.(map[string]any)
	if !ok {
		return ChangeRequest{}, false
	}
	request := ChangeRequest{
		Employee:  field(object, "employee"),
		Date:      field(object, "date"),
		ShiftType: field(object, "shift_type"),
	}
	if request.Employee == "" || request.Date == "" || request.ShiftType == "" {
		return ChangeRequest{}, false
	}
	return request, true
}

func field(object map[string]any, key string) string {
	switch value := object[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}
