package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type change struct {
	path    string
	removed bool
}

type recorder struct {
	mu      sync.Mutex
	changes []change
}

func (r *recorder) record(path string, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change{path: path, removed: removed})
}

func (r *recorder) waitFor(t *testing.T, want change) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, got := range r.changes {
			if got == want {
				r.mu.Unlock()
				return
			}
		}
		r.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Fatalf("expected change %+v, got %+v", want, r.changes)
}

func TestWatcherReportsPolicyChanges(t *testing.T) {
	root := t.TempDir()
	events := &recorder{}
	service, err := New([]string{root}, func(path string) bool {
		return strings.HasSuffix(path, ".md")
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), events.record)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Start(ctx) }()
	defer func() {
		cancel()
		<-done
	}()
	time.Sleep(100 * time.Millisecond)

	policyPath := filepath.Join(root, "overtime.md")
	if err := os.WriteFile(policyPath, []byte("Overtime needs approval."), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	events.waitFor(t, change{path: policyPath, removed: false})

	if err := os.WriteFile(filepath.Join(root, "notes.bin"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write other file: %v", err)
	}
	if err := os.Remove(policyPath); err != nil {
		t.Fatalf("remove policy: %v", err)
	}
	events.waitFor(t, change{path: policyPath, removed: true})

	events.mu.Lock()
	defer events.mu.Unlock()
	for _, got := range events.changes {
		if strings.HasSuffix(got.path, ".bin") {
			t.Fatalf("expected non-policy file to be ignored, got %+v", got)
		}
	}
}
