// Package policy indexes policy documents and answers passage searches,
// in process or through a sidecar.
package policy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dwizi/roster-assist/internal/embedding"
	"github.com/dwizi/roster-assist/internal/store"
)

var ErrEmptyDocument = errors.New("policy document has no indexable text")

// Result is a search hit. Score is the L2 distance; lower is closer.
type Result struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type DocumentStore interface {
	SavePolicyDocument(ctx context.Context, input store.SavePolicyDocumentInput) (store.PolicyDocument, error)
	LookupPolicyDocumentBySource(ctx context.Context, sourcePath string) (store.PolicyDocument, error)
	ListPolicyDocuments(ctx context.Context) ([]store.PolicyDocument, error)
	DeletePolicyDocument(ctx context.Context, id string) error
}

type Config struct {
	Dir           string
	MaxChunkChars int
	TopK          int
	Debounce      time.Duration
	IngestTimeout time.Duration
}

type IngestInput struct {
	Title      string
	SourcePath string
	Content    string
	UploaderID string
}

type IngestResult struct {
	Document store.PolicyDocument
	Chunks   int
}

type Service struct {
	index     *Index
	embedder  embedding.Embedder
	documents DocumentStore
	cfg       Config
	logger    *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewService(index *Index, embedder embedding.Embedder, documents DocumentStore, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxChunkChars < 1 {
		cfg.MaxChunkChars = 1200
	}
	if cfg.TopK < 1 {
		cfg.TopK = 5
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.IngestTimeout <= 0 {
		cfg.IngestTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		index:     index,
		embedder:  embedder,
		documents: documents,
		cfg:       cfg,
		logger:    logger.With("component", "policy"),
		timers:    map[string]*time.Timer{},
	}
}

func (s *Service) Index() *Index {
	return s.index
}

func (s *Service) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK < 1 {
		topK = s.cfg.TopK
	}
	if s.index.Len() == 0 {
		return nil, nil
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed policy query: %w", err)
	}
	hits, err := s.index.Search(vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search policy index: %w", err)
	}
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			ChunkID:    hit.ID,
			DocumentID: hit.DocumentID,
			Text:       hit.Text,
			Score:      float64(hit.Distance),
		})
	}
	return results, nil
}

// Ingest stores the document and replaces its chunks in the index. The old
// chunks stay searchable until the new embeddings are ready.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (IngestResult, error) {
	passages := SplitParagraphs(input.Content, s.cfg.MaxChunkChars)
	if len(passages) == 0 {
		return IngestResult{}, ErrEmptyDocument
	}
	vectors, err := s.embedder.EmbedBatch(ctx, passages)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embed policy chunks: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existingID := ""
	if sourcePath := strings.TrimSpace(input.SourcePath); sourcePath != "" {
		existing, err := s.documents.LookupPolicyDocumentBySource(ctx, sourcePath)
		switch {
		case err == nil:
			existingID = existing.ID
		case !errors.Is(err, store.ErrPolicyDocumentNotFound):
			return IngestResult{}, err
		}
	}
	if err := s.index.Accepts(existingID, vectors); err != nil {
		return IngestResult{}, fmt.Errorf("index policy chunks: %w", err)
	}

	document, err := s.documents.SavePolicyDocument(ctx, store.SavePolicyDocumentInput{
		Title:      input.Title,
		SourcePath: input.SourcePath,
		Content:    input.Content,
		UploaderID: input.UploaderID,
	})
	if err != nil {
		return IngestResult{}, err
	}
	chunks := buildChunks(document.ID, passages)
	if err := s.index.ReplaceDocument(document.ID, chunks, vectors); err != nil {
		return IngestResult{}, fmt.Errorf("index policy chunks: %w", err)
	}
	if err := s.index.Save(); err != nil {
		return IngestResult{}, err
	}
	s.logger.Info("policy document indexed", "document_id", document.ID, "title", document.Title, "chunks", len(chunks))
	return IngestResult{Document: document, Chunks: len(chunks)}, nil
}

// Delete removes the document and every chunk it owns.
func (s *Service) Delete(ctx context.Context, documentID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.documents.DeletePolicyDocument(ctx, documentID); err != nil {
		return err
	}
	removed := s.index.RemoveDocument(documentID)
	if err := s.index.Save(); err != nil {
		return err
	}
	s.logger.Info("policy document deleted", "document_id", documentID, "chunks", removed)
	return nil
}

func (s *Service) Documents(ctx context.Context) ([]store.PolicyDocument, error) {
	return s.documents.ListPolicyDocuments(ctx)
}

// Reindex re-embeds every stored document and swaps the index in one step.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	documents, err := s.documents.ListPolicyDocuments(ctx)
	if err != nil {
		return 0, err
	}
	var (
		chunks  []Chunk
		vectors [][]float32
	)
	for _, document := range documents {
		passages := SplitParagraphs(document.Content, s.cfg.MaxChunkChars)
		if len(passages) == 0 {
			continue
		}
		embedded, err := s.embedder.EmbedBatch(ctx, passages)
		if err != nil {
			return 0, fmt.Errorf("embed policy document %s: %w", document.ID, err)
		}
		chunks = append(chunks, buildChunks(document.ID, passages)...)
		vectors = append(vectors, embedded...)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.index.Replace(chunks, vectors); err != nil {
		return 0, err
	}
	if err := s.index.Save(); err != nil {
		return 0, err
	}
	s.logger.Info("policy index rebuilt", "documents", len(documents), "chunks", len(chunks))
	return len(chunks), nil
}

// IngestFile indexes a .md or .txt file from disk, keyed by its path.
func (s *Service) IngestFile(ctx context.Context, path string) error {
	if !IsPolicyFile(path) {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return s.RemoveFile(ctx, path)
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	_, err = s.Ingest(ctx, IngestInput{Title: title, SourcePath: filepath.Clean(path), Content: string(content)})
	return err
}

func (s *Service) RemoveFile(ctx context.Context, path string) error {
	document, err := s.documents.LookupPolicyDocumentBySource(ctx, filepath.Clean(path))
	if err != nil {
		if errors.Is(err, store.ErrPolicyDocumentNotFound) {
			return nil
		}
		return err
	}
	return s.Delete(ctx, document.ID)
}

// SyncDirectory ingests every policy file under the configured directory.
func (s *Service) SyncDirectory(ctx context.Context) (int, error) {
	root := strings.TrimSpace(s.cfg.Dir)
	if root == "" {
		return 0, nil
	}
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	ingested := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !IsPolicyFile(path) {
			return nil
		}
		if err := s.IngestFile(ctx, path); err != nil {
			s.logger.Warn("policy file ingest failed", "path", path, "error", err)
			return nil
		}
		ingested++
		return nil
	})
	return ingested, err
}

// QueueFile debounces repeated change events for path before ingesting or
// removing it.
func (s *Service) QueueFile(path string, removed bool) {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "." || !IsPolicyFile(path) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if timer, ok := s.timers[path]; ok {
		timer.Stop()
	}
	s.timers[path] = time.AfterFunc(s.cfg.Debounce, func() {
		s.mu.Lock()
		delete(s.timers, path)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.IngestTimeout)
		defer cancel()
		var err error
		if removed {
			err = s.RemoveFile(ctx, path)
		} else {
			err = s.IngestFile(ctx, path)
		}
		if err != nil {
			s.logger.Error("queued policy update failed", "path", path, "removed", removed, "error", err)
		}
	})
}

func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for path, timer := range s.timers {
		timer.Stop()
		delete(s.timers, path)
	}
}

func IsPolicyFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt":
		return true
	default:
		return false
	}
}

func buildChunks(documentID string, passages []string) []Chunk {
	chunks := make([]Chunk, len(passages))
	for idx, passage := range passages {
		chunks[idx] = Chunk{
			ID:         fmt.Sprintf("%s:%d", documentID, idx),
			DocumentID: documentID,
			Text:       passage,
		}
	}
	return chunks
}
