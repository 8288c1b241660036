package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
	"github.com/ledongthuc/pdf"

	docmodel "github.com/zhouzirui/rag-chatbot/backend/internal/model/document"
)

// PDFLoader extracts the plain text of a PDF file as a single document.
// Pages are joined with a blank line.
type PDFLoader struct{}

// NewPDFLoader returns a loader for local PDF files.
func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

// Load reads src.URI as a local path.
func (l *PDFLoader) Load(ctx context.Context, src document.Source, _ ...document.LoaderOption) (docs []*schema.Document, err error) {
	path := src.URI
	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("parse pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d of %s: %w", i, path, err)
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}

	return []*schema.Document{{
		ID:      path,
		Content: strings.Join(pages, "\n\n"),
		MetaData: map[string]any{
			docmodel.MetaSource: SourceName(path),
			"pages":             r.NumPage(),
		},
	}}, nil
}

// SourceName is the name chunks of path are indexed under.
func SourceName(path string) string {
	return filepath.Base(path)
}

var _ document.Loader = (*PDFLoader)(nil)
