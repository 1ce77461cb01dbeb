package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()
	return NewIndex(filepath.Join(dir, "policy_index.bin"), filepath.Join(dir, "policy_index.json"))
}

func TestIndexSearchOrdersByDistance(t *testing.T) {
	index := newTestIndex(t)
	err := index.Add(
		[]Chunk{{ID: "a", DocumentID: "d1", Text: "far"}, {ID: "b", DocumentID: "d1", Text: "near"}, {ID: "c", DocumentID: "d2", Text: "middle"}},
		[][]float32{{10, 0}, {1, 0}, {4, 0}},
	)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	hits, err := index.Search([]float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "b" || hits[1].ID != "c" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if hits[0].Distance != 1 || hits[1].Distance != 16 {
		t.Fatalf("expected squared L2 distances, got %v and %v", hits[0].Distance, hits[1].Distance)
	}
}

func TestIndexRejectsDimensionMismatch(t *testing.T) {
	index := newTestIndex(t)
	if err := index.Add([]Chunk{{ID: "a"}}, [][]float32{{1, 2, 3}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := index.Add([]Chunk{{ID: "b"}}, [][]float32{{1, 2}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch on add, got %v", err)
	}
	if _, err := index.Search([]float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch on search, got %v", err)
	}
}

func TestIndexSearchEmpty(t *testing.T) {
	hits, err := newTestIndex(t).Search([]float32{1, 2}, 3)
	if err != nil || hits != nil {
		t.Fatalf("expected no hits from empty index, got %v %v", hits, err)
	}
}

func TestIndexRemoveDocument(t *testing.T) {
	index := newTestIndex(t)
	_ = index.Add(
		[]Chunk{{ID: "a", DocumentID: "d1"}, {ID: "b", DocumentID: "d2"}, {ID: "c", DocumentID: "d1"}},
		[][]float32{{1}, {2}, {3}},
	)
	if removed := index.RemoveDocument("d1"); removed != 2 {
		t.Fatalf("expected two removed chunks, got %d", removed)
	}
	hits, err := index.Search([]float32{0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "b" {
		t.Fatalf("expected only d2 chunk, got %+v", hits)
	}
}

func TestIndexReplaceDocumentValidatesFirst(t *testing.T) {
	index := newTestIndex(t)
	_ = index.Add(
		[]Chunk{{ID: "a", DocumentID: "d1"}, {ID: "b", DocumentID: "d2"}},
		[][]float32{{1, 0}, {0, 1}},
	)
	err := index.ReplaceDocument("d1", []Chunk{{ID: "c", DocumentID: "d1"}}, [][]float32{{1, 0, 0}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if index.Len() != 2 {
		t.Fatalf("expected no chunks removed, got %d", index.Len())
	}
	if err := index.ReplaceDocument("d1", []Chunk{{ID: "c", DocumentID: "d1"}}, [][]float32{{2, 0}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	hits, err := index.Search([]float32{2, 0}, 1)
	if err != nil || len(hits) != 1 || hits[0].ID != "c" || index.Len() != 2 {
		t.Fatalf("expected replacement chunk, got %+v %v (len %d)", hits, err, index.Len())
	}
}

func TestIndexSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "nested", "policy_index.bin")
	meta := filepath.Join(dir, "nested", "policy_index.json")
	index := NewIndex(snapshot, meta)
	chunks := []Chunk{{ID: "d1:0", DocumentID: "d1", Text: "Overtime needs approval."}, {ID: "d1:1", DocumentID: "d1", Text: "Swaps need notice."}}
	if err := index.Add(chunks, [][]float32{{0.5, 1.5}, {2.5, -1}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := index.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := NewIndex(snapshot, meta)
	if err := reloaded.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Len() != 2 || reloaded.Dimension() != 2 {
		t.Fatalf("unexpected reloaded shape: %d chunks, %d dims", reloaded.Len(), reloaded.Dimension())
	}
	hits, err := reloaded.Search([]float32{2.5, -1}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if diff := cmp.Diff(chunks[1], hits[0].Chunk); diff != "" {
		t.Fatalf("unexpected nearest chunk (-want +got):\n%s", diff)
	}
}

func TestIndexReloadMissingFilesIsEmpty(t *testing.T) {
	index := newTestIndex(t)
	if err := index.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if index.Len() != 0 {
		t.Fatalf("expected empty index, got %d", index.Len())
	}
}

func TestIndexReloadRejectsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "policy_index.bin")
	meta := filepath.Join(dir, "policy_index.json")
	if err := os.WriteFile(snapshot, []byte("not a snapshot"), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	if err := os.WriteFile(meta, []byte(`{"dimension":2,"chunks":[{"id":"x"}]}`), 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
	if err := NewIndex(snapshot, meta).Reload(); !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
}

func TestSplitParagraphs(t *testing.T) {
	text := "Overtime rules.\r\n\r\nShift swaps need\nmanager sign-off.\n   \n\none two three four five six"
	got := SplitParagraphs(text, 20)
	want := []string{"Overtime rules.", "Shift swaps need", "manager sign-off.", "one two three four", "five six"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected chunks (-want +got):\n%s", diff)
	}
	if got := SplitParagraphs("a\n\nb", 0); len(got) != 2 {
		t.Fatalf("expected paragraph split without limit, got %q", got)
	}
}
