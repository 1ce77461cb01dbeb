package heartbeat

import (
	"errors"
	"testing"
	"time"
)

func TestSnapshotMarksStaleComponent(t *testing.T) {
	registry := NewRegistry()
	clock := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return clock }
	registry.Beat("orchestrator", "workers running")

	clock = clock.Add(3 * time.Minute)
	snapshot := registry.Snapshot(time.Minute)
	if snapshot.Overall != StateDegraded {
		t.Fatalf("expected degraded overall state, got %s", snapshot.Overall)
	}
	if len(snapshot.Components) != 1 || snapshot.Components[0].State != StateStale {
		t.Fatalf("expected one stale component, got %+v", snapshot.Components)
	}
}

func TestSnapshotOverallStates(t *testing.T) {
	registry := NewRegistry()
	if got := registry.Snapshot(0).Overall; got != OverallUnknown {
		t.Fatalf("expected unknown for empty registry, got %s", got)
	}
	registry.Disabled("scheduler", "no cron expression")
	if got := registry.Snapshot(0).Overall; got != OverallIdle {
		t.Fatalf("expected idle with only disabled components, got %s", got)
	}
	registry.Beat("api", "serving")
	if got := registry.Snapshot(0).Overall; got != StateHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}
	registry.Degrade("policy-jobs", "reindex failed", errors.New("embedding unavailable"))
	snapshot := registry.Snapshot(0)
	if snapshot.Overall != StateDegraded {
		t.Fatalf("expected degraded, got %s", snapshot.Overall)
	}
	if snapshot.Components[1].Name != "policy-jobs" || snapshot.Components[1].Error != "embedding unavailable" {
		t.Fatalf("expected sorted components with error text, got %+v", snapshot.Components)
	}
}
