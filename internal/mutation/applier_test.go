package mutation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/dwizi/roster-assist/internal/changelist"
	"github.com/dwizi/roster-assist/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	sqlStore, err := store.New(filepath.Join(t.TempDir(), "mutation_test.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlStore
}

func newTestApplier(sqlStore *store.Store) *Applier {
	return NewApplier(sqlStore, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedEmployee(t *testing.T, sqlStore *store.Store, name string) store.Employee {
	t.Helper()
	employee, err := sqlStore.UpsertEmployee(context.Background(), store.UpsertEmployeeInput{Name: name})
	if err != nil {
		t.Fatalf("seed employee %s: %v", name, err)
	}
	return employee
}

func listDay(t *testing.T, sqlStore *store.Store, day time.Time) []store.CalendarEntry {
	t.Helper()
	entries, err := sqlStore.ListEntries(context.Background(), store.ListEntriesInput{From: day, To: day.AddDate(0, 0, 2)})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	return entries
}

func TestApplyInsertsThenIsIdempotent(t *testing.T) {
	sqlStore := newTestStore(t)
	seedEmployee(t, sqlStore, "Alice Smith")
	applier := newTestApplier(sqlStore)
	requests := []changelist.ChangeRequest{{Employee: "Alice Smith", Date: "2026-10-20", ShiftType: "morning"}}

	first, err := applier.Apply(context.Background(), requests)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if first.Count(ActionInserted) != 1 {
		t.Fatalf("expected insert, got %+v", first.Outcomes)
	}
	second, err := applier.Apply(context.Background(), requests)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if second.Count(ActionUpdated) != 1 || second.Outcomes[0].EntryID != first.Outcomes[0].EntryID {
		t.Fatalf("expected update of the same entry, got %+v", second.Outcomes)
	}

	day := time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC)
	entries := listDay(t, sqlStore, day)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry after repeat apply, got %d", len(entries))
	}
	wantStart := time.Date(2026, time.October, 20, 5, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, time.October, 20, 12, 0, 0, 0, time.UTC)
	if !entries[0].StartAt.Equal(wantStart) || !entries[0].EndAt.Equal(wantEnd) {
		t.Fatalf("unexpected window: %s to %s", entries[0].StartAt, entries[0].EndAt)
	}
	if entries[0].Label != "Morning" {
		t.Fatalf("expected shift label, got %q", entries[0].Label)
	}
}

func TestApplyUpdatesExistingEntryInWindow(t *testing.T) {
	sqlStore := newTestStore(t)
	bob := seedEmployee(t, sqlStore, "Bob Jones")
	existing, err := sqlStore.CreateEntry(context.Background(), store.CreateEntryInput{
		EmployeeID: bob.ID,
		StartAt:    time.Date(2026, time.October, 21, 22, 30, 0, 0, time.UTC),
		EndAt:      time.Date(2026, time.October, 22, 4, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}

	report, err := newTestApplier(sqlStore).Apply(context.Background(), []changelist.ChangeRequest{
		{Employee: "Bob Jones", Date: "2026-10-21", ShiftType: "Night"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Count(ActionUpdated) != 1 || report.Outcomes[0].EntryID != existing.ID {
		t.Fatalf("expected existing entry update, got %+v", report.Outcomes)
	}
	entries := listDay(t, sqlStore, time.Date(2026, time.October, 21, 0, 0, 0, 0, time.UTC))
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if !entries[0].EndAt.Equal(time.Date(2026, time.October, 22, 5, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected night shift to end next morning, got %s", entries[0].EndAt)
	}
}

func TestApplySkipsUnusableRequestsAndCommitsOthers(t *testing.T) {
	sqlStore := newTestStore(t)
	seedEmployee(t, sqlStore, "Alice Smith")

	report, err := newTestApplier(sqlStore).Apply(context.Background(), []changelist.ChangeRequest{
		{Employee: "Zed Unknown", Date: "2026-10-20", ShiftType: "Morning"},
		{Employee: "Alice Smith", Date: "20/10/2026", ShiftType: "Morning"},
		{Employee: "Alice Smith", Date: "2026-10-20", ShiftType: "Brunch"},
		{Employee: "Alice Smith", Date: "2026-10-20", ShiftType: "Evening"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	reasons := []string{}
	for _, outcome := range report.Outcomes {
		reasons = append(reasons, outcome.Reason)
	}
	want := []string{ReasonUnknownEmployee, ReasonInvalidDate, ReasonUnknownShift, ""}
	for idx := range want {
		if reasons[idx] != want[idx] {
			t.Fatalf("unexpected reasons: %q", reasons)
		}
	}
	if report.Applied() != 1 || report.Count(ActionSkipped) != 3 {
		t.Fatalf("expected one applied and three skipped, got %+v", report.Outcomes)
	}
	if entries := listDay(t, sqlStore, time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC)); len(entries) != 1 {
		t.Fatalf("expected the valid request to commit, got %d entries", len(entries))
	}
}

func TestApplyNameMatchIsExact(t *testing.T) {
	sqlStore := newTestStore(t)
	seedEmployee(t, sqlStore, "Alice Smith")
	report, err := newTestApplier(sqlStore).Apply(context.Background(), []changelist.ChangeRequest{
		{Employee: "Alice", Date: "2026-10-20", ShiftType: "Morning"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Outcomes[0].Reason != ReasonUnknownEmployee {
		t.Fatalf("expected partial name to be skipped, got %+v", report.Outcomes[0])
	}
}

func TestApplyStoreFailureWrapsError(t *testing.T) {
	sqlStore := newTestStore(t)
	seedEmployee(t, sqlStore, "Alice Smith")
	_ = sqlStore.Close()

	_, err := newTestApplier(sqlStore).Apply(context.Background(), []changelist.ChangeRequest{
		{Employee: "Alice Smith", Date: "2026-10-20", ShiftType: "Morning"},
	})
	if !errors.Is(err, ErrApplyFailed) {
		t.Fatalf("expected ErrApplyFailed, got %v", err)
	}
}

func TestApplyEmptyIsNoop(t *testing.T) {
	report, err := newTestApplier(newTestStore(t)).Apply(context.Background(), nil)
	if err != nil || len(report.Outcomes) != 0 {
		t.Fatalf("expected empty report, got %+v %v", report, err)
	}
}
