package document

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"

	"github.com/cloudwego/eino/schema"
)

// Metadata keys carried on *schema.Document values that represent chunks.
const (
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
)

// Chunk is a contiguous slice of extracted document text. Once stored it is
// never mutated; re-ingesting its source replaces it.
type Chunk struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Index     int       `json:"chunk_index"`
	Score     float64   `json:"score,omitempty"`
	Embedding []float64 `json:"-"`
}

// SourceSummary describes an indexed source document.
type SourceSummary struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// ChunkID derives the stable identifier of the index-th chunk of source.
func ChunkID(source string, index int) string {
	h := sha1.Sum([]byte(source))
	return hex.EncodeToString(h[:8]) + ":" + strconv.Itoa(index)
}

// ToSchema converts a chunk into the eino document representation.
func (c Chunk) ToSchema() *schema.Document {
	doc := &schema.Document{
		ID:      c.ID,
		Content: c.Text,
		MetaData: map[string]any{
			MetaSource:     c.Source,
			MetaChunkIndex: c.Index,
		},
	}
	if c.Score != 0 {
		doc.WithScore(c.Score)
	}
	if len(c.Embedding) > 0 {
		doc.WithDenseVector(c.Embedding)
	}
	return doc
}

// FromSchema extracts chunk fields from an eino document. Missing metadata
// leaves the corresponding field zero.
func FromSchema(doc *schema.Document) Chunk {
	c := Chunk{ID: doc.ID, Text: doc.Content, Score: doc.Score()}
	if doc.MetaData == nil {
		return c
	}
	if v, ok := doc.MetaData[MetaSource].(string); ok {
		c.Source = v
	}
	switch v := doc.MetaData[MetaChunkIndex].(type) {
	case int:
		c.Index = v
	case int64:
		c.Index = int(v)
	case float64:
		c.Index = int(v)
	}
	return c
}
