package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	_ "github.com/mattn/go-sqlite3"

	"github.com/zhouzirui/rag-chatbot/backend/internal/model/document"
)

// DefaultTopK is used when a retrieval call does not pass retriever.WithTopK.
const DefaultTopK = 3

const dbFileName = "vectors.db"

const chunksSchema = `
CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    content TEXT NOT NULL,
    embedding BLOB
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source, chunk_index);
`

// Store persists chunk embeddings in SQLite and answers top-k cosine
// similarity queries by brute force. It is both the eino indexer (add) and
// the eino retriever (query) of the service.
type Store struct {
	db       *sql.DB
	embedder embedding.Embedder
}

// Open creates dir if needed and opens the vector database inside it.
func Open(dir string, embedder embedding.Embedder) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vector: create storage dir: %w", err)
	}
	return NewStore(filepath.Join(dir, dbFileName), embedder)
}

// NewStore opens the SQLite database at dsn and ensures the schema exists.
func NewStore(dsn string, embedder embedding.Embedder) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("vector: embedder is nil")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("vector: open database: %w", err)
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if _, err := db.Exec(chunksSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vector: ensure schema: %w", err)
	}
	return &Store{db: db, embedder: embedder}, nil
}

// Store embeds the documents' content and upserts them. Documents without an
// ID get one derived from their source and chunk index.
func (s *Store) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	options := indexer.GetCommonOptions(&indexer.Options{Embedding: s.embedder}, opts...)

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := options.Embedding.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("vector: embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("vector: embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks(id, source, chunk_index, content, embedding) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]string, 0, len(docs))
	for i, doc := range docs {
		chunk := document.FromSchema(doc)
		if chunk.ID == "" {
			chunk.ID = document.ChunkID(chunk.Source, chunk.Index)
		}
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.Source, chunk.Index, chunk.Text, encodeEmbedding(vectors[i])); err != nil {
			return nil, fmt.Errorf("vector: insert chunk %s: %w", chunk.ID, err)
		}
		ids = append(ids, chunk.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Retrieve returns the chunks most similar to query, highest score first.
// A blank query returns nothing.
func (s *Store) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := DefaultTopK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK, Embedding: s.embedder}, opts...)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	vectors, err := options.Embedding.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("vector: embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("vector: embedder returned %d vectors for 1 query", len(vectors))
	}

	chunks, embeddings, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	k := DefaultTopK
	if options.TopK != nil && *options.TopK > 0 {
		k = *options.TopK
	}
	ranked, err := rankCosine(vectors[0], embeddings, k)
	if err != nil {
		return nil, err
	}

	docs := make([]*schema.Document, 0, len(ranked))
	for _, r := range ranked {
		if options.ScoreThreshold != nil && r.score < *options.ScoreThreshold {
			continue
		}
		chunk := chunks[r.idx]
		chunk.Score = r.score
		docs = append(docs, chunk.ToSchema())
	}
	return docs, nil
}

// loadAll reads every non-blank chunk with its embedding.
func (s *Store) loadAll(ctx context.Context) ([]document.Chunk, [][]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, chunk_index, content, embedding FROM chunks ORDER BY source, chunk_index`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var chunks []document.Chunk
	var embeddings [][]float64
	for rows.Next() {
		var c document.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.Index, &c.Text, &blob); err != nil {
			return nil, nil, err
		}
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, c)
		embeddings = append(embeddings, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return chunks, embeddings, nil
}

// DeleteSource removes every chunk of source and reports how many were removed.
func (s *Store) DeleteSource(ctx context.Context, source string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[vector] removed %d chunks of %s", n, source)
	}
	return n, nil
}

// HasSource reports whether any chunk of source is stored.
func (s *Store) HasSource(ctx context.Context, source string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM chunks WHERE source = ? LIMIT 1`, source).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Sources lists indexed sources with their chunk counts.
func (s *Store) Sources(ctx context.Context) ([]document.SourceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM chunks GROUP BY source ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]document.SourceSummary, 0)
	for rows.Next() {
		var summary document.SourceSummary
		if err := rows.Scan(&summary.Source, &summary.Chunks); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_ indexer.Indexer     = (*Store)(nil)
	_ retriever.Retriever = (*Store)(nil)
)
