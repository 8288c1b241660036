package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"

	docmodel "github.com/zhouzirui/rag-chatbot/backend/internal/model/document"
)

// Splitter cuts documents into fixed-size character windows that overlap by
// a fixed number of characters. Sizes count runes, not bytes.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter validates 0 <= overlap < size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("invalid chunking: size=%d overlap=%d", size, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Transform splits every input document and returns the chunks of all of
// them in order. Each chunk carries its source and position as metadata.
// Whitespace-only windows are skipped, so positions stay contiguous.
func (s *Splitter) Transform(_ context.Context, src []*schema.Document, _ ...document.TransformerOption) ([]*schema.Document, error) {
	var out []*schema.Document
	for _, doc := range src {
		source := ""
		if doc.MetaData != nil {
			source, _ = doc.MetaData[docmodel.MetaSource].(string)
		}
		index := 0
		for _, text := range s.Split(doc.Content) {
			if strings.TrimSpace(text) == "" {
				continue
			}
			out = append(out, docmodel.Chunk{
				ID:     docmodel.ChunkID(source, index),
				Source: source,
				Text:   text,
				Index:  index,
			}.ToSchema())
			index++
		}
	}
	return out, nil
}

// Split returns the windows of text. Empty text yields no windows, text of
// at most size runes yields one, and the last window always ends at the end
// of the text.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= s.size {
		return []string{text}
	}

	step := s.size - s.overlap
	chunks := make([]string, 0, (n-s.overlap+step-1)/step)
	for start := 0; ; start += step {
		end := start + s.size
		if end >= n {
			chunks = append(chunks, string(runes[start:n]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

var _ document.Transformer = (*Splitter)(nil)
