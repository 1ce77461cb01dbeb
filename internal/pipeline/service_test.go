package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dwizi/roster-assist/internal/changelist"
	"github.com/dwizi/roster-assist/internal/grounding"
	"github.com/dwizi/roster-assist/internal/llm"
	"github.com/dwizi/roster-assist/internal/llm/ollama"
	"github.com/dwizi/roster-assist/internal/llm/safety"
	"github.com/dwizi/roster-assist/internal/mutation"
	"github.com/dwizi/roster-assist/internal/nlu"
	"github.com/dwizi/roster-assist/internal/policy"
	"github.com/dwizi/roster-assist/internal/store"
)

var testNow = time.Date(2026, time.October, 18, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedGenerator struct {
	answer  string
	err     error
	prompts []string
	models  []string
}

func (g *scriptedGenerator) Generate(_ context.Context, request llm.Request) (string, error) {
	g.prompts = append(g.prompts, request.Prompt)
	g.models = append(g.models, request.Model)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, int) ([]policy.Result, error) {
	return nil, errors.New("policy sidecar connection refused")
}

type staticSearcher []policy.Result

func (s staticSearcher) Search(context.Context, string, int) ([]policy.Result, error) {
	return s, nil
}

type harness struct {
	store     *store.Store
	generator *scriptedGenerator
	deps      Dependencies
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sqlStore, err := store.New(filepath.Join(t.TempDir(), "pipeline_test.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := discardLogger()
	generator := &scriptedGenerator{answer: "Noted."}
	return &harness{
		store:     sqlStore,
		generator: generator,
		deps: Dependencies{
			Normalizer:   nlu.New(sqlStore, logger, nlu.WithClock(func() time.Time { return testNow })),
			Calendar:     grounding.NewCalendarAssembler(sqlStore, logger),
			Generator:    generator,
			Interpreter:  changelist.NewInterpreter(logger),
			Applier:      mutation.NewApplier(sqlStore, logger),
			Interactions: sqlStore,
		},
	}
}

func (h *harness) service(cfg Config) *Service {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "llama3:8b"
	}
	return New(h.deps, cfg, discardLogger())
}

func (h *harness) employee(t *testing.T, name string) store.Employee {
	t.Helper()
	employee, err := h.store.UpsertEmployee(context.Background(), store.UpsertEmployeeInput{Name: name})
	if err != nil {
		t.Fatalf("upsert employee: %v", err)
	}
	return employee
}

func (h *harness) shift(t *testing.T, employee store.Employee, day, startHour, hours int) {
	t.Helper()
	start := time.Date(2026, time.October, day, startHour, 0, 0, 0, time.UTC)
	if _, err := h.store.CreateEntry(context.Background(), store.CreateEntryInput{
		EmployeeID: employee.ID,
		StartAt:    start,
		EndAt:      start.Add(time.Duration(hours) * time.Hour),
	}); err != nil {
		t.Fatalf("create entry: %v", err)
	}
}

func (h *harness) interactions(t *testing.T, requesterID string) []store.InteractionRecord {
	t.Helper()
	records, err := h.store.ListInteractions(context.Background(), store.ListInteractionsInput{RequesterID: requesterID})
	if err != nil {
		t.Fatalf("list interactions: %v", err)
	}
	return records
}

func TestSubmitQueryMorningLeaderboardThisMonth(t *testing.T) {
	h := newHarness(t)
	alice := h.employee(t, "Alice Smith")
	bob := h.employee(t, "Bob Jones")
	h.shift(t, alice, 2, 6, 6)
	h.shift(t, alice, 5, 7, 5)
	h.shift(t, alice, 9, 6, 6)
	h.shift(t, bob, 3, 6, 6)
	h.shift(t, bob, 4, 17, 4)
	h.shift(t, bob, 6, 17, 4)
	h.shift(t, bob, 8, 18, 3)
	h.shift(t, bob, 12, 5, 7)
	h.generator.answer = "Alice Smith is working the most morning shifts this month (3)."

	result, err := h.service(Config{}).SubmitQuery(context.Background(), Query{
		Text:        "Who is working the most morning shifts this month?",
		RequesterID: "supervisor-1",
	})
	if err != nil {
		t.Fatalf("submit query: %v", err)
	}
	prompt := h.generator.prompts[0]
	if !strings.Contains(prompt, "Schedule for October 2026 (Morning shifts):") {
		t.Fatalf("expected month morning context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Most shifts: Alice Smith with 3.") {
		t.Fatalf("expected Alice to lead morning shifts:\n%s", prompt)
	}
	if !strings.Contains(prompt, grounding.CountsJSONDelimiter) {
		t.Fatalf("expected machine-readable counts:\n%s", prompt)
	}
	if result.Answer != h.generator.answer || len(result.ScheduleUpdates) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Entities.Shift != "Morning" || result.Entities.Dates == nil || !result.Entities.Dates.Month {
		t.Fatalf("unexpected entities: %+v", result.Entities)
	}
	if h.generator.models[0] != "llama3:8b" || result.Model != "llama3:8b" {
		t.Fatalf("expected default model, got %q", h.generator.models[0])
	}
	records := h.interactions(t, "supervisor-1")
	if len(records) != 1 || records[0].Answer != result.Answer {
		t.Fatalf("expected one logged interaction, got %+v", records)
	}
}

func TestSubmitQueryPolicySearchFailureStillAnswers(t *testing.T) {
	h := newHarness(t)
	alice := h.employee(t, "Alice Smith")
	h.shift(t, alice, 20, 6, 6)
	h.deps.Policy = failingSearcher{}
	h.generator.answer = "Alice works the morning of October 20."

	result, err := h.service(Config{}).SubmitQuery(context.Background(), Query{
		Text:        "Who is working on October 20?",
		RequesterID: "supervisor-1",
	})
	if err != nil {
		t.Fatalf("expected success despite policy failure, got %v", err)
	}
	prompt := h.generator.prompts[0]
	if !strings.Contains(prompt, "- Alice Smith scheduled from 2026-10-20 06:00 UTC to 2026-10-20 12:00 UTC.") {
		t.Fatalf("expected calendar context to survive:\n%s", prompt)
	}
	if !strings.Contains(prompt, grounding.PolicySectionStart+"\nNo relevant policy passages were found.") {
		t.Fatalf("expected empty policy context:\n%s", prompt)
	}
	if result.Answer == "" {
		t.Fatal("expected an answer")
	}
}

func TestSubmitQueryIncludesPolicyPassages(t *testing.T) {
	h := newHarness(t)
	h.deps.Policy = staticSearcher{{ChunkID: "p:0", Text: "Shift swaps need 48 hours notice."}}

	if _, err := h.service(Config{}).SubmitQuery(context.Background(), Query{Text: "Can Bob swap shifts?", RequesterID: "s"}); err != nil {
		t.Fatalf("submit query: %v", err)
	}
	prompt := h.generator.prompts[0]
	if !strings.Contains(prompt, "Shift swaps need 48 hours notice.") || !strings.Contains(prompt, grounding.NoDateSentinel) {
		t.Fatalf("expected policy passage and no-date sentinel:\n%s", prompt)
	}
}

func TestSubmitQueryUnknownEmployeeSkippedOthersCommitted(t *testing.T) {
	h := newHarness(t)
	h.employee(t, "Alice Smith")
	h.generator.answer = `Approved. [{"employee": "Alice Smith", "date": "2026-10-21", "shift_type": "Evening"}, {"employee": "Ghost Person", "date": "2026-10-21", "shift_type": "Morning"}]`

	result, err := h.service(Config{}).SubmitQuery(context.Background(), Query{
		Text:        "Yes, approve Alice for the evening shift on October 21",
		RequesterID: "supervisor-1",
	})
	if err != nil {
		t.Fatalf("submit query: %v", err)
	}
	if len(result.ScheduleUpdates) != 2 || result.Applied != 1 || result.Skipped != 1 {
		t.Fatalf("expected one applied and one skipped, got %+v", result)
	}
	entries, err := h.store.ListEntries(context.Background(), store.ListEntriesInput{
		From: time.Date(2026, time.October, 21, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, time.October, 22, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].EmployeeName != "Alice Smith" || entries[0].StartAt.Hour() != 16 {
		t.Fatalf("expected Alice's evening shift committed, got %+v", entries)
	}
}

func TestSubmitQueryApprovalGateHoldsChanges(t *testing.T) {
	h := newHarness(t)
	h.employee(t, "Alice Smith")
	h.generator.answer = `Suggested: [{"employee": "Alice Smith", "date": "2026-10-21", "shift_type": "Evening"}]`

	result, err := h.service(Config{RequireApproval: true}).SubmitQuery(context.Background(), Query{
		Text:        "Recommend someone for the evening shift on October 21",
		RequesterID: "supervisor-1",
	})
	if err != nil {
		t.Fatalf("submit query: %v", err)
	}
	if result.Applied != 0 || result.Skipped != 1 {
		t.Fatalf("expected change held, got %+v", result)
	}
	entries, _ := h.store.ListEntries(context.Background(), store.ListEntriesInput{
		From: time.Date(2026, time.October, 21, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, time.October, 22, 0, 0, 0, 0, time.UTC),
	})
	if len(entries) != 0 {
		t.Fatalf("expected no calendar writes, got %d", len(entries))
	}
}

func TestSubmitQueryGenerationTimeoutIsFatalAndBounded(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-release:
		case <-req.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)
	h.deps.Generator = ollama.New(ollama.Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, discardLogger())

	started := time.Now()
	_, err := h.service(Config{}).SubmitQuery(context.Background(), Query{Text: "Who works tomorrow?", RequesterID: "supervisor-1"})
	if !errors.Is(err, llm.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("expected bounded failure, took %s", elapsed)
	}
	if records := h.interactions(t, "supervisor-1"); len(records) != 0 {
		t.Fatalf("expected no interaction logged, got %d", len(records))
	}
}

func TestSubmitQueryMutationFailureIsReportedAfterLogging(t *testing.T) {
	h := newHarness(t)
	h.generator.answer = `[{"employee": "Alice Smith", "date": "2026-10-21", "shift_type": "Evening"}]`
	h.deps.Applier = failingApplier{}

	result, err := h.service(Config{}).SubmitQuery(context.Background(), Query{Text: "approve it", RequesterID: "supervisor-1"})
	if !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
	if result.Answer == "" {
		t.Fatal("expected the answer to be returned with the failure")
	}
	if records := h.interactions(t, "supervisor-1"); len(records) != 1 {
		t.Fatalf("expected interaction logged before failure, got %d", len(records))
	}
}

type failingApplier struct{}

func (failingApplier) Apply(context.Context, []changelist.ChangeRequest) (mutation.Report, error) {
	return mutation.Report{}, mutation.ErrApplyFailed
}

func TestSubmitQueryRejectsEmptyQuery(t *testing.T) {
	h := newHarness(t)
	if _, err := h.service(Config{}).SubmitQuery(context.Background(), Query{Text: "   "}); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if len(h.generator.prompts) != 0 {
		t.Fatal("expected no generation call")
	}
}

func TestSubmitQueryRateLimited(t *testing.T) {
	h := newHarness(t)
	h.deps.Limiter = safety.New(safety.Config{RateLimitPerWindow: 1, RateLimitWindow: time.Minute})
	service := h.service(Config{})
	if _, err := service.SubmitQuery(context.Background(), Query{Text: "who works today?", RequesterID: "ops"}); err != nil {
		t.Fatalf("first query: %v", err)
	}
	if _, err := service.SubmitQuery(context.Background(), Query{Text: "who works today?", RequesterID: "ops"}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestSubmitQueryModelOverrideAndTranscript(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	result, err := h.service(Config{TranscriptDir: dir}).SubmitQuery(context.Background(), Query{Text: "who works today?", Model: "mistral"})
	if err != nil {
		t.Fatalf("submit query: %v", err)
	}
	if result.Model != "mistral" || h.generator.models[0] != "mistral" {
		t.Fatalf("expected model override, got %q", result.Model)
	}
	if _, err := os.Stat(filepath.Join(dir, AnonymousRequester+".md")); err != nil {
		t.Fatalf("expected transcript file: %v", err)
	}
}

type failingInteractions struct{}

func (failingInteractions) CreateInteraction(context.Context, store.CreateInteractionInput) (store.InteractionRecord, error) {
	return store.InteractionRecord{}, errors.New("database is locked")
}

func TestSubmitQueryInteractionLogFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.deps.Interactions = failingInteractions{}
	h.generator.answer = "Nobody is scheduled today."
	var logs bytes.Buffer
	service := New(h.deps, Config{DefaultModel: "llama3:8b"}, slog.New(slog.NewJSONHandler(&logs, nil)))

	result, err := service.SubmitQuery(context.Background(), Query{Text: "who works today?", RequesterID: "supervisor-1"})
	if err != nil {
		t.Fatalf("expected log failure to be swallowed, got %v", err)
	}
	if result.Answer != "Nobody is scheduled today." {
		t.Fatalf("expected answer, got %q", result.Answer)
	}
	if !strings.Contains(logs.String(), "interaction log write failed") || !strings.Contains(logs.String(), "database is locked") {
		t.Fatalf("expected write failure to be logged, got %s", logs.String())
	}
}

func TestSubmitQueryUnusableChangeListIsLoggedWithQuery(t *testing.T) {
	h := newHarness(t)
	h.generator.answer = "Done: [Alice Smith on the evening shift]"
	var logs bytes.Buffer
	service := New(h.deps, Config{DefaultModel: "llama3:8b"}, slog.New(slog.NewJSONHandler(&logs, nil)))

	result, err := service.SubmitQuery(context.Background(), Query{Text: "approve Alice for tomorrow evening", RequesterID: "supervisor-1"})
	if err != nil {
		t.Fatalf("submit query: %v", err)
	}
	if len(result.ScheduleUpdates) != 0 || result.Applied != 0 {
		t.Fatalf("expected no updates, got %+v", result)
	}
	var line string
	for _, candidate := range strings.Split(logs.String(), "\n") {
		if strings.Contains(candidate, "change list yielded no requests") {
			line = candidate
		}
	}
	if line == "" {
		t.Fatalf("expected interpreting warning, got %s", logs.String())
	}
	if !strings.Contains(line, `"query":"approve Alice for tomorrow evening"`) || !strings.Contains(line, `"intent":"approve"`) {
		t.Fatalf("expected query and entities on the warning, got %s", line)
	}
}
