package handler

import (
	"io/fs"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/rag-chatbot/backend/internal/handler/chat"
	"github.com/zhouzirui/rag-chatbot/backend/internal/handler/ingest"
	"github.com/zhouzirui/rag-chatbot/backend/internal/handler/stream"
	"github.com/zhouzirui/rag-chatbot/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/rag-chatbot/backend/internal/middleware"
	chatService "github.com/zhouzirui/rag-chatbot/backend/internal/service/chat"
	"github.com/zhouzirui/rag-chatbot/backend/pkg/utils"
	"github.com/zhouzirui/rag-chatbot/backend/web"
)

// Assistant answers chat turns, whole or streamed.
type Assistant interface {
	chat.Responder
	stream.StreamResponder
}

// Dependencies are the services the routes are wired to.
type Dependencies struct {
	Assistant    Assistant
	History      chatService.Store
	Ingester     ingest.Ingester
	Catalog      ingest.Catalog
	HistoryLimit int
	// StaticDir overrides the embedded frontend when set.
	StaticDir string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatHandler := chat.New(deps.Assistant, deps.History, deps.HistoryLimit)
	ingestHandler := ingest.New(deps.Ingester, deps.Catalog)
	streamHandler := stream.New(deps.Assistant)
	wsHandler := ws.New(deps.Assistant, deps.History)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		ingestHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	r.Handle("/*", http.FileServer(http.FS(staticFS(deps.StaticDir))))

	return r
}

func staticFS(dir string) fs.FS {
	if dir == "" {
		return web.Static()
	}
	return os.DirFS(dir)
}
