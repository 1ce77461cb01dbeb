package changelist

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestInterpreter() *Interpreter {
	return NewInterpreter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestInterpretWellFormedArray(t *testing.T) {
	answer := `Approved. Here is the change:
[{"employee": "Alice Smith", "date": "2026-10-20", "shift_type": "Morning"},
 {"employee": "Bob Jones", "date": "2026-10-21", "shift_type": "Night"}]
Let me know if anything else is needed.`

	got := newTestInterpreter().Interpret(answer)
	want := Result{
		Requests: []ChangeRequest{
			{Employee: "Alice Smith", Date: "2026-10-20", ShiftType: "Morning"},
			{Employee: "Bob Jones", Date: "2026-10-21", ShiftType: "Night"},
		},
		Found: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestInterpretSingleQuotesAndTrailingCommas(t *testing.T) {
	answer := `[{'employee': 'Alice Smith', date: '2026-10-20', 'shift_type': 'evening',},]`
	got := newTestInterpreter().Interpret(answer)
	if len(got.Requests) != 1 || got.Requests[0].ShiftType != "evening" || got.Requests[0].Date != "2026-10-20" {
		t.Fatalf("expected lenient parse, got %+v", got)
	}
}

func TestInterpretWithoutBrackets(t *testing.T) {
	got := newTestInterpreter().Interpret("Alice has the most morning shifts in October.")
	if got.Found || got.Requests == nil || len(got.Requests) != 0 {
		t.Fatalf("expected empty non-nil request list, got %+v", got)
	}
}

func TestInterpretUnparseableBlock(t *testing.T) {
	got := newTestInterpreter().Interpret("Shifts [morning and evening] are both covered.")
	if !got.Found || len(got.Requests) != 0 {
		t.Fatalf("expected found-but-empty result, got %+v", got)
	}
}

func TestInterpretDropsIncompleteObjects(t *testing.T) {
	answer := `[
		{"employee": "Alice Smith", "date": "2026-10-20", "shift_type": "Morning"},
		{"employee": "Bob Jones", "date": "2026-10-21"},
		"not an object",
		{"employee": "", "date": "2026-10-22", "shift_type": "Night"},
		{"employee": "Carol White", "date": "2026-10-23", "shift_type": "Afternoon"}
	]`
	got := newTestInterpreter().Interpret(answer)
	if got.Dropped != 3 {
		t.Fatalf("expected three dropped items, got %d", got.Dropped)
	}
	names := []string{}
	for _, request := range got.Requests {
		names = append(names, request.Employee)
	}
	if diff := cmp.Diff([]string{"Alice Smith", "Carol White"}, names); diff != "" {
		t.Fatalf("unexpected kept requests (-want +got):\n%s", diff)
	}
}
