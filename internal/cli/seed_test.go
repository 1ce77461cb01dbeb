package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dwizi/roster-assist/internal/policy"
	"github.com/dwizi/roster-assist/internal/store"
)

const seedYAML = `
employees:
  - name: Alice
    preferences:
      preferred_shifts: [Morning]
      days_off: ["2024-05-03"]
      max_weekly_hours: 40
  - name: Bob
entries:
  - employee: alice
    date: "2024-05-02"
    shift: morning
    note: opening
  - employee: Bob
    start: "2024-05-02T22:00:00Z"
    end: "2024-05-03T05:00:00Z"
policies:
  - title: Overtime
    content: Overtime needs manager approval.
`

type recordingPolicies struct {
	inputs []policy.IngestInput
}

func (r *recordingPolicies) Ingest(ctx context.Context, input policy.IngestInput) (policy.IngestResult, error) {
	r.inputs = append(r.inputs, input)
	return policy.IngestResult{Chunks: 1}, nil
}

func newSeedTestStore(t *testing.T) *store.Store {
	t.Helper()
	sqlStore, err := store.New(filepath.Join(t.TempDir(), "seed.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlStore
}

func TestParseSeedRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"unknown shift": "entries:\n  - employee: Alice\n    date: \"2024-05-02\"\n    shift: brunch\n",
		"bad date":      "entries:\n  - employee: Alice\n    date: \"May 2\"\n    shift: Morning\n",
		"end first":     "entries:\n  - employee: Alice\n    start: \"2024-05-02T10:00:00Z\"\n    end: \"2024-05-02T09:00:00Z\"\n",
		"no employee":   "entries:\n  - date: \"2024-05-02\"\n    shift: Morning\n",
		"no name":       "employees:\n  - preferences:\n      max_weekly_hours: 3\n",
		"empty policy":  "policies:\n  - title: Empty\n",
	}
	for name, raw := range cases {
		if _, err := parseSeed([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestApplySeedWritesEmployeesEntriesAndPolicies(t *testing.T) {
	ctx := context.Background()
	sqlStore := newSeedTestStore(t)
	file, err := parseSeed([]byte(seedYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	policies := &recordingPolicies{}

	summary, err := applySeed(ctx, sqlStore, policies, file)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if diff := cmp.Diff(seedSummary{Employees: 2, Entries: 2, Policies: 1}, summary); diff != "" {
		t.Fatalf("unexpected summary (-want +got):\n%s", diff)
	}

	alice, err := sqlStore.LookupEmployeeByName(ctx, "Alice")
	if err != nil {
		t.Fatalf("lookup alice: %v", err)
	}
	if alice.Preferences.MaxWeeklyHours != 40 || len(alice.Preferences.DaysOff) != 1 {
		t.Fatalf("expected preferences to be stored, got %+v", alice.Preferences)
	}

	entries, err := sqlStore.ListEntries(ctx, store.ListEntriesInput{
		From: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	labels := map[string]string{}
	for _, entry := range entries {
		labels[entry.EmployeeName] = entry.Label
	}
	if labels["Alice"] != "Morning" || labels["Bob"] != "Night" {
		t.Fatalf("unexpected labels: %v", labels)
	}
	for _, entry := range entries {
		if entry.EmployeeName == "Alice" && (entry.StartAt.Hour() != 5 || entry.EndAt.Hour() != 12) {
			t.Fatalf("expected morning window, got %s - %s", entry.StartAt, entry.EndAt)
		}
	}

	if len(policies.inputs) != 1 || policies.inputs[0].Title != "Overtime" || policies.inputs[0].UploaderID != "seed" {
		t.Fatalf("unexpected policy ingests: %+v", policies.inputs)
	}
}

func TestApplySeedSkipsPoliciesWithoutService(t *testing.T) {
	file, err := parseSeed([]byte(seedYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	summary, err := applySeed(context.Background(), newSeedTestStore(t), nil, file)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if summary.Policies != 0 {
		t.Fatalf("expected no policies, got %d", summary.Policies)
	}
}

func TestApplySeedUnknownEmployee(t *testing.T) {
	file, err := parseSeed([]byte("entries:\n  - employee: Zed\n    date: \"2024-05-02\"\n    shift: Evening\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = applySeed(context.Background(), newSeedTestStore(t), nil, file)
	if !errors.Is(err, store.ErrEmployeeNotFound) {
		t.Fatalf("expected ErrEmployeeNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "Zed") {
		t.Fatalf("expected employee name in error, got %v", err)
	}
}
