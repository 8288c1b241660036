package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/indexer"

	"github.com/zhouzirui/rag-chatbot/backend/internal/config"
	docmodel "github.com/zhouzirui/rag-chatbot/backend/internal/model/document"
)

// ErrIngestion marks a document that could not be turned into chunks.
var ErrIngestion = errors.New("ingestion failed")

// Index is the part of the vector store ingestion writes to.
type Index interface {
	indexer.Indexer
	DeleteSource(ctx context.Context, source string) (int64, error)
	HasSource(ctx context.Context, source string) (bool, error)
}

// Result reports what one ingestion stored.
type Result struct {
	Source        string `json:"source"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

// Service turns PDF files into indexed chunks.
type Service struct {
	loader   document.Loader
	splitter document.Transformer
	index    Index
}

// Option customises a Service.
type Option func(*Service)

// WithLoader replaces the PDF loader.
func WithLoader(loader document.Loader) Option {
	return func(s *Service) { s.loader = loader }
}

// NewService wires the PDF loader and a splitter sized by cfg to index.
func NewService(index Index, cfg config.RAGConfig, opts ...Option) (*Service, error) {
	splitter, err := NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	s := &Service{
		loader:   NewPDFLoader(),
		splitter: splitter,
		index:    index,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ingest loads path, splits its text and stores the chunks. Chunks previously
// stored for the same source are removed first. There is no rollback: if
// storing fails part way the chunks already written stay.
func (s *Service) Ingest(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, fmt.Errorf("%w: pdf_path is required", ErrIngestion)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("%w: file not found: %s", ErrIngestion, path)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrIngestion, err)
	}
	if !info.Mode().IsRegular() {
		return Result{}, fmt.Errorf("%w: not a regular file: %s", ErrIngestion, path)
	}

	docs, err := s.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrIngestion, err)
	}
	source := SourceName(path)
	for _, doc := range docs {
		if doc.MetaData == nil {
			doc.MetaData = map[string]any{}
		}
		if _, ok := doc.MetaData[docmodel.MetaSource]; !ok {
			doc.MetaData[docmodel.MetaSource] = source
		}
	}

	chunks, err := s.splitter.Transform(ctx, docs)
	if err != nil {
		return Result{}, fmt.Errorf("%w: split %s: %v", ErrIngestion, path, err)
	}
	if len(chunks) == 0 {
		return Result{}, fmt.Errorf("%w: no text could be extracted from %s", ErrIngestion, path)
	}

	if _, err := s.index.DeleteSource(ctx, source); err != nil {
		return Result{}, fmt.Errorf("remove previous chunks of %s: %w", source, err)
	}
	ids, err := s.index.Store(ctx, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("index %s: %w", source, err)
	}

	log.Printf("[ingest] indexed %s: %d chunks", source, len(ids))
	return Result{Source: source, ChunksIndexed: len(ids)}, nil
}

// IngestDir ingests every PDF in dir whose source is not indexed yet.
// Failures are logged and skipped; the results of successful files are
// returned.
func (s *Service) IngestDir(ctx context.Context, dir string) ([]Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir %s: %v", ErrIngestion, dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var results []Result
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		present, err := s.index.HasSource(ctx, SourceName(name))
		if err != nil {
			return results, err
		}
		if present {
			log.Printf("[ingest] %s already indexed, skipping", name)
			continue
		}
		res, err := s.Ingest(ctx, filepath.Join(dir, name))
		if err != nil {
			log.Printf("[ingest] skip %s: %v", name, err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

