package policy

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrCorruptSnapshot   = errors.New("policy index snapshot is corrupt")
)

var snapshotMagic = [4]byte{'R', 'A', 'I', 'X'}

const snapshotVersion uint32 = 1

// Chunk is one indexed passage. Chunks are never edited; they are removed
// with their document.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

type Hit struct {
	Chunk
	Distance float32
}

type indexMetadata struct {
	Dimension int     `json:"dimension"`
	Chunks    []Chunk `json:"chunks"`
}

// Index is an exact L2 nearest-neighbour index over chunk vectors, persisted
// as a binary vector snapshot plus a JSON metadata sidecar. One Index is
// created at startup and shared by every request.
type Index struct {
	snapshotPath string
	metaPath     string

	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	chunks    []Chunk
}

func NewIndex(snapshotPath, metaPath string) *Index {
	return &Index{
		snapshotPath: strings.TrimSpace(snapshotPath),
		metaPath:     strings.TrimSpace(metaPath),
	}
}

// OpenIndex creates the index and loads any persisted snapshot.
func OpenIndex(snapshotPath, metaPath string) (*Index, error) {
	index := NewIndex(snapshotPath, metaPath)
	if err := index.Reload(); err != nil {
		return nil, err
	}
	return index, nil
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.chunks)
}

func (i *Index) Dimension() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dimension
}

// Add appends chunks with their vectors. The first vector added to an empty
// index fixes its dimension.
func (i *Index) Add(chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("add to index: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	dimension := i.dimension
	if len(i.chunks) == 0 {
		dimension = len(vectors[0])
	}
	if err := checkDimensions(vectors, dimension); err != nil {
		return err
	}
	i.dimension = dimension
	i.chunks = append(i.chunks, chunks...)
	i.vectors = append(i.vectors, copyVectors(vectors)...)
	return nil
}

// Replace swaps the whole index content. Validation happens before the
// write lock is taken.
func (i *Index) Replace(chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("replace index: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	dimension := 0
	if len(vectors) > 0 {
		dimension = len(vectors[0])
	}
	if err := checkDimensions(vectors, dimension); err != nil {
		return err
	}
	nextChunks := append([]Chunk(nil), chunks...)
	nextVectors := copyVectors(vectors)

	i.mu.Lock()
	i.dimension = dimension
	i.chunks = nextChunks
	i.vectors = nextVectors
	i.mu.Unlock()
	return nil
}

// Accepts reports whether vectors could replace documentID's chunks without
// a dimension mismatch. Nothing is changed.
func (i *Index) Accepts(documentID string, vectors [][]float32) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return checkDimensions(vectors, i.dimensionWithout(documentID, vectors))
}

// ReplaceDocument swaps documentID's chunks for the given ones. Dimensions
// are validated before anything is removed.
func (i *Index) ReplaceDocument(documentID string, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("replace document in index: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	dimension := i.dimensionWithout(documentID, vectors)
	if err := checkDimensions(vectors, dimension); err != nil {
		return err
	}
	i.removeLocked(documentID)
	if len(chunks) == 0 {
		return nil
	}
	i.dimension = dimension
	i.chunks = append(i.chunks, chunks...)
	i.vectors = append(i.vectors, copyVectors(vectors)...)
	return nil
}

// dimensionWithout is the dimension the index keeps once documentID's chunks
// are gone. An index that would be empty takes the incoming dimension.
// Callers hold i.mu.
func (i *Index) dimensionWithout(documentID string, incoming [][]float32) int {
	for _, chunk := range i.chunks {
		if chunk.DocumentID != documentID {
			return i.dimension
		}
	}
	if len(incoming) == 0 {
		return 0
	}
	return len(incoming[0])
}

// RemoveDocument drops every chunk of documentID and reports how many went.
func (i *Index) RemoveDocument(documentID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.removeLocked(documentID)
}

func (i *Index) removeLocked(documentID string) int {
	keptChunks := i.chunks[:0:0]
	keptVectors := i.vectors[:0:0]
	removed := 0
	for idx, chunk := range i.chunks {
		if chunk.DocumentID == documentID {
			removed++
			continue
		}
		keptChunks = append(keptChunks, chunk)
		keptVectors = append(keptVectors, i.vectors[idx])
	}
	i.chunks = keptChunks
	i.vectors = keptVectors
	if len(i.chunks) == 0 {
		i.dimension = 0
	}
	return removed
}

// Search returns up to k chunks ordered by ascending L2 distance.
func (i *Index) Search(vector []float32, k int) ([]Hit, error) {
	if k < 1 {
		k = 5
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if len(i.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != i.dimension {
		return nil, fmt.Errorf("%w: index has %d, query has %d", ErrDimensionMismatch, i.dimension, len(vector))
	}
	hits := make([]Hit, len(i.chunks))
	for idx, candidate := range i.vectors {
		hits[idx] = Hit{Chunk: i.chunks[idx], Distance: squaredL2(vector, candidate)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Save writes the snapshot and metadata through temp files and renames.
func (i *Index) Save() error {
	if i.snapshotPath == "" || i.metaPath == "" {
		return nil
	}
	i.mu.RLock()
	dimension := i.dimension
	vectors := i.vectors
	metadata := indexMetadata{Dimension: dimension, Chunks: append([]Chunk{}, i.chunks...)}
	err := writeFileAtomic(i.snapshotPath, func(w io.Writer) error {
		return writeSnapshot(w, dimension, vectors)
	})
	i.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("write index snapshot: %w", err)
	}
	if err := writeFileAtomic(i.metaPath, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(metadata)
	}); err != nil {
		return fmt.Errorf("write index metadata: %w", err)
	}
	return nil
}

// Reload replaces the in-memory state with the persisted files. Missing
// files load as an empty index.
func (i *Index) Reload() error {
	if i.snapshotPath == "" || i.metaPath == "" {
		return nil
	}
	metadata, err := readMetadata(i.metaPath)
	if err != nil {
		return err
	}
	dimension, vectors, err := readSnapshot(i.snapshotPath)
	if err != nil {
		return err
	}
	if len(vectors) != len(metadata.Chunks) || (len(vectors) > 0 && dimension != metadata.Dimension) {
		return fmt.Errorf("%w: %d vectors for %d chunks", ErrCorruptSnapshot, len(vectors), len(metadata.Chunks))
	}

	i.mu.Lock()
	i.dimension = dimension
	i.vectors = vectors
	i.chunks = metadata.Chunks
	i.mu.Unlock()
	return nil
}

func readMetadata(path string) (indexMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return indexMetadata{}, nil
		}
		return indexMetadata{}, fmt.Errorf("read index metadata: %w", err)
	}
	var metadata indexMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return indexMetadata{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return metadata, nil
}

func writeSnapshot(w io.Writer, dimension int, vectors [][]float32) error {
	header := struct {
		Magic     [4]byte
		Version   uint32
		Dimension uint32
		Count     uint32
	}{snapshotMagic, snapshotVersion, uint32(dimension), uint32(len(vectors))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	for _, vector := range vectors {
		if err := binary.Write(w, binary.LittleEndian, vector); err != nil {
			return err
		}
	}
	return nil
}

func readSnapshot(path string) (int, [][]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil, nil
		}
		return 0, nil, fmt.Errorf("open index snapshot: %w", err)
	}
	defer file.Close()
	reader := bufio.NewReader(file)

	var header struct {
		Magic     [4]byte
		Version   uint32
		Dimension uint32
		Count     uint32
	}
	if err := binary.Read(reader, binary.LittleEndian, &header); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if header.Magic != snapshotMagic || header.Version != snapshotVersion {
		return 0, nil, fmt.Errorf("%w: unexpected header", ErrCorruptSnapshot)
	}
	vectors := make([][]float32, header.Count)
	for idx := range vectors {
		vector := make([]float32, header.Dimension)
		if err := binary.Read(reader, binary.LittleEndian, vector); err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		vectors[idx] = vector
	}
	return int(header.Dimension), vectors, nil
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	temp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	buffered := bufio.NewWriter(temp)
	if err := write(buffered); err != nil {
		temp.Close()
		return err
	}
	if err := buffered.Flush(); err != nil {
		temp.Close()
		return err
	}
	if err := temp.Close(); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

func checkDimensions(vectors [][]float32, dimension int) error {
	for _, vector := range vectors {
		if len(vector) == 0 || len(vector) != dimension {
			return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dimension, len(vector))
		}
	}
	return nil
}

func copyVectors(vectors [][]float32) [][]float32 {
	copied := make([][]float32, len(vectors))
	for idx, vector := range vectors {
		copied[idx] = append([]float32(nil), vector...)
	}
	return copied
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for idx := range a {
		diff := a[idx] - b[idx]
		sum += diff * diff
	}
	return sum
}
