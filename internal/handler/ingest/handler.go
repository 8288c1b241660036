package ingest

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/rag-chatbot/backend/internal/handler/apierr"
	docmodel "github.com/zhouzirui/rag-chatbot/backend/internal/model/document"
	ingestService "github.com/zhouzirui/rag-chatbot/backend/internal/service/ingest"
	"github.com/zhouzirui/rag-chatbot/backend/pkg/utils"
)

// Ingester indexes a document from a server-side path.
type Ingester interface {
	Ingest(ctx context.Context, path string) (ingestService.Result, error)
}

// Catalog lists indexed documents.
type Catalog interface {
	Sources(ctx context.Context) ([]docmodel.SourceSummary, error)
}

// Handler 文档导入的HTTP处理器
type Handler struct {
	ingester Ingester
	catalog  Catalog
}

// New 创建文档处理器
func New(ingester Ingester, catalog Catalog) *Handler {
	return &Handler{ingester: ingester, catalog: catalog}
}

// RegisterRoutes 注册文档相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ingest", h.handleIngest)
	r.Get("/documents", h.handleDocuments)
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PDFPath string `json:"pdf_path"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.ingester.Ingest(r.Context(), payload.PDFPath)
	if err != nil {
		log.Printf("[ingest] %s: %v", payload.PDFPath, err)
		status, message := apierr.Status(err)
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"source":         result.Source,
		"chunks_indexed": result.ChunksIndexed,
	})
}

func (h *Handler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	sources, err := h.catalog.Sources(r.Context())
	if err != nil {
		status, message := apierr.Status(err)
		utils.RespondError(w, status, message)
		return
	}
	if sources == nil {
		sources = []docmodel.SourceSummary{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"documents": sources})
}
