package grounding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dwizi/roster-assist/internal/nlu"
	"github.com/dwizi/roster-assist/internal/policy"
	"github.com/dwizi/roster-assist/internal/shifts"
	"github.com/dwizi/roster-assist/internal/store"
)

type fakeCalendar struct {
	entries   []store.CalendarEntry
	employees []store.Employee
	err       error
	lastInput store.ListEntriesInput
}

func (f *fakeCalendar) ListEntries(_ context.Context, input store.ListEntriesInput) ([]store.CalendarEntry, error) {
	f.lastInput = input
	return f.entries, f.err
}

func (f *fakeCalendar) ListEmployees(context.Context) ([]store.Employee, error) {
	return f.employees, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func entryAt(id, name string, start time.Time, hours int) store.CalendarEntry {
	return store.CalendarEntry{
		ID:           id,
		EmployeeID:   strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		EmployeeName: name,
		StartAt:      start,
		EndAt:        start.Add(time.Duration(hours) * time.Hour),
	}
}

func TestAssembleWithoutWindowReturnsSentinel(t *testing.T) {
	assembler := NewCalendarAssembler(&fakeCalendar{}, discardLogger())
	result, err := assembler.Assemble(context.Background(), nil, shifts.Morning)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if result.Text != NoDateSentinel {
		t.Fatalf("unexpected text: %q", result.Text)
	}
}

func TestAssembleNoMatchesReturnsTypedSentinel(t *testing.T) {
	day := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	reader := &fakeCalendar{entries: []store.CalendarEntry{
		entryAt("1", "Dana Whitfield", day.Add(16*time.Hour), 5),
	}}
	window := WindowFromRange(nlu.DateRange{Start: day, End: day})
	result, err := NewCalendarAssembler(reader, discardLogger()).Assemble(context.Background(), &window, shifts.Morning)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := "No shifts found for April 01, 2025 matching type Morning."
	if result.Text != want {
		t.Fatalf("expected %q, got %q", want, result.Text)
	}
	if !reader.lastInput.To.Equal(day.AddDate(0, 0, 1)) {
		t.Fatalf("expected exclusive end of day, got %s", reader.lastInput.To)
	}
}

func TestAssembleDayListsEntriesAndPreferences(t *testing.T) {
	day := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	unassigned := store.CalendarEntry{ID: "3", StartAt: day.Add(22 * time.Hour), EndAt: day.Add(29 * time.Hour)}
	reader := &fakeCalendar{
		entries: []store.CalendarEntry{
			entryAt("1", "Dana Whitfield", day.Add(5*time.Hour), 7),
			entryAt("2", "Lee Park", day.Add(21*time.Hour), 8),
			unassigned,
		},
		employees: []store.Employee{
			{ID: "dana-whitfield", Name: "Dana Whitfield", Preferences: store.Preferences{PreferredShifts: []string{"Morning"}, MaxConsecutiveShifts: 4}},
			{ID: "lee-park", Name: "Lee Park"},
		},
	}
	window := WindowFromRange(nlu.DateRange{Start: day, End: day})

	result, err := NewCalendarAssembler(reader, discardLogger()).Assemble(context.Background(), &window, "")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	for _, want := range []string{
		"Schedule for April 01, 2025:",
		"- Dana Whitfield scheduled from 2025-04-01 05:00 UTC to 2025-04-01 12:00 UTC.",
		"- Unassigned scheduled from 2025-04-01 22:00 UTC to 2025-04-02 05:00 UTC.",
		"- Dana Whitfield's preferred shifts: Morning.",
		"- Dana Whitfield's max shifts in a row: 4.",
	} {
		if !strings.Contains(result.Text, want) {
			t.Fatalf("expected %q in context:\n%s", want, result.Text)
		}
	}
	if strings.Contains(result.Text, "Lee Park's") {
		t.Fatalf("did not expect preference lines for employee without preferences:\n%s", result.Text)
	}
	if strings.Contains(result.Text, CountsJSONDelimiter) {
		t.Fatalf("did not expect aggregate for a single day:\n%s", result.Text)
	}

	nightOnly, err := NewCalendarAssembler(reader, discardLogger()).Assemble(context.Background(), &window, shifts.Night)
	if err != nil {
		t.Fatalf("assemble night: %v", err)
	}
	if nightOnly.Entries != 2 || !strings.Contains(nightOnly.Text, "(Night shifts)") {
		t.Fatalf("expected two night entries, got %d:\n%s", nightOnly.Entries, nightOnly.Text)
	}
}

func TestAssembleMonthAggregatesLeaders(t *testing.T) {
	first := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	reader := &fakeCalendar{entries: []store.CalendarEntry{
		entryAt("1", "Dana Whitfield", first.Add(6*time.Hour), 6),
		entryAt("2", "Dana Whitfield", first.AddDate(0, 0, 1).Add(6*time.Hour), 6),
		entryAt("3", "Lee Park", first.AddDate(0, 0, 2).Add(7*time.Hour), 5),
		entryAt("4", "Joanne Smith", first.AddDate(0, 0, 3).Add(5*time.Hour), 6),
		entryAt("5", "Dana Whitfield", first.AddDate(0, 0, 4).Add(13*time.Hour), 3),
	}}
	window := WindowFromRange(nlu.DateRange{Start: first, End: first.AddDate(0, 1, -1), Month: true})

	result, err := NewCalendarAssembler(reader, discardLogger()).Assemble(context.Background(), &window, shifts.Morning)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.HasPrefix(result.Text, "Schedule for April 2025 (Morning shifts):") {
		t.Fatalf("unexpected header:\n%s", result.Text)
	}
	if result.Entries != 4 {
		t.Fatalf("expected afternoon entry filtered out, got %d entries", result.Entries)
	}
	if len(result.Leaders) != 1 || result.Leaders[0].Name != "Dana Whitfield" || result.Leaders[0].Count != 2 {
		t.Fatalf("unexpected leaders: %+v", result.Leaders)
	}
	if !strings.Contains(result.Text, "Most shifts: Dana Whitfield with 2.") {
		t.Fatalf("expected leader line:\n%s", result.Text)
	}
	wantJSON := `[{"name":"Dana Whitfield","count":2,"dates":["2025-04-01","2025-04-02"]},{"name":"Joanne Smith","count":1,"dates":["2025-04-04"]},{"name":"Lee Park","count":1,"dates":["2025-04-03"]}]`
	if !strings.Contains(result.Text, CountsJSONDelimiter) || !strings.Contains(result.Text, wantJSON) {
		t.Fatalf("expected machine-readable counts:\n%s", result.Text)
	}
}

func TestLeadersIncludesEveryTie(t *testing.T) {
	day := time.Date(2025, 4, 1, 6, 0, 0, 0, time.UTC)
	entries := []store.CalendarEntry{
		entryAt("1", "Lee Park", day, 6),
		entryAt("2", "Dana Whitfield", day, 6),
		entryAt("3", "Dana Whitfield", day.AddDate(0, 0, 1), 6),
		entryAt("4", "Lee Park", day.AddDate(0, 0, 2), 6),
		entryAt("5", "Joanne Smith", day.AddDate(0, 0, 2), 6),
		{ID: "6", StartAt: day, EndAt: day.Add(time.Hour)},
	}
	leaders := Leaders(TallyEntries(entries))
	names := make([]string, 0, len(leaders))
	for _, leader := range leaders {
		names = append(names, leader.Name)
		if leader.Count != 2 {
			t.Fatalf("expected count 2 for %s, got %d", leader.Name, leader.Count)
		}
	}
	if diff := cmp.Diff([]string{"Dana Whitfield", "Lee Park"}, names); diff != "" {
		t.Fatalf("unexpected leaders (-want +got):\n%s", diff)
	}
	if got := Leaders(nil); got != nil {
		t.Fatalf("expected no leaders for empty tallies, got %+v", got)
	}
}

func TestAssemblePropagatesStoreError(t *testing.T) {
	day := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	window := WindowFromRange(nlu.DateRange{Start: day, End: day})
	_, err := NewCalendarAssembler(&fakeCalendar{err: errors.New("disk I/O error")}, discardLogger()).Assemble(context.Background(), &window, "")
	if err == nil {
		t.Fatal("expected store error")
	}
}

func TestWindowLabel(t *testing.T) {
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	window := WindowFromRange(nlu.DateRange{Start: start, End: start.AddDate(0, 0, 6)})
	if got := window.Label(); got != "April 01, 2025 to April 07, 2025" {
		t.Fatalf("unexpected label: %q", got)
	}
}

type fakeSearcher struct {
	results []policy.Result
	err     error
}

func (f fakeSearcher) Search(context.Context, string, int) ([]policy.Result, error) {
	return f.results, f.err
}

func TestPolicyContextJoinsPassages(t *testing.T) {
	searcher := fakeSearcher{results: []policy.Result{
		{Text: "Overtime requires manager approval."},
		{Text: "  "},
		{Text: "Shift swaps need 24 hours notice."},
	}}
	got := PolicyContext(context.Background(), searcher, "overtime rules", 5, discardLogger())
	want := "Overtime requires manager approval.\nShift swaps need 24 hours notice."
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPolicyContextSwallowsErrors(t *testing.T) {
	got := PolicyContext(context.Background(), fakeSearcher{err: errors.New("connection refused")}, "overtime", 5, discardLogger())
	if got != "" {
		t.Fatalf("expected empty policy context, got %q", got)
	}
	if got := PolicyContext(context.Background(), nil, "overtime", 5, discardLogger()); got != "" {
		t.Fatalf("expected empty policy context without searcher, got %q", got)
	}
}

func TestBuildPromptOrdersSections(t *testing.T) {
	prompt := BuildPrompt("Schedule for April 01, 2025:\n- Dana Whitfield scheduled", "", "Who works April 1?")
	order := []string{
		"ONLY the schedule and policy context",
		ScheduleSectionStart,
		"Dana Whitfield scheduled",
		ScheduleSectionEnd,
		PolicySectionStart,
		emptyPolicySection,
		PolicySectionEnd,
		"Question:\nWho works April 1?",
		`"shift_type": "Morning|Afternoon|Evening|Night"`,
		"Answer:",
	}
	last := -1
	for _, marker := range order {
		index := strings.Index(prompt, marker)
		if index < 0 {
			t.Fatalf("expected %q in prompt:\n%s", marker, prompt)
		}
		if index <= last {
			t.Fatalf("expected %q after previous section:\n%s", marker, prompt)
		}
		last = index
	}
	if !strings.Contains(prompt, "information is not available") {
		t.Fatalf("expected refusal instruction:\n%s", prompt)
	}
}
