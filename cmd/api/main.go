package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/rag-chatbot/backend/internal/config"
	"github.com/zhouzirui/rag-chatbot/backend/internal/handler"
	"github.com/zhouzirui/rag-chatbot/backend/internal/service/ai"
	"github.com/zhouzirui/rag-chatbot/backend/internal/service/chat"
	"github.com/zhouzirui/rag-chatbot/backend/internal/service/embedding"
	"github.com/zhouzirui/rag-chatbot/backend/internal/service/ingest"
	"github.com/zhouzirui/rag-chatbot/backend/internal/service/vector"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.AI.HasBackupKey() {
		log.Println("backup API key configured; it is not switched to automatically")
	}

	history, err := chat.Open(ctx, cfg.Store.URL, cfg.Store.Database)
	if err != nil {
		log.Fatalf("failed to open conversation store: %v", err)
	}
	defer history.Close()

	embedder, err := embedding.New(cfg.Vector)
	if err != nil {
		log.Fatalf("failed to create embedder: %v", err)
	}
	vectors, err := vector.Open(cfg.Vector.Dir, embedder)
	if err != nil {
		log.Fatalf("failed to open vector store: %v", err)
	}
	defer vectors.Close()
	log.Printf("vector store ready at %s (embedder=%s)", cfg.Vector.Dir, cfg.Vector.Embedder)

	ingestService, err := ingest.NewService(vectors, cfg.RAG)
	if err != nil {
		log.Fatalf("failed to create ingestion service: %v", err)
	}
	if cfg.RAG.IngestDir != "" {
		results, err := ingestService.IngestDir(ctx, cfg.RAG.IngestDir)
		if err != nil {
			log.Printf("warning: startup ingestion of %s failed: %v", cfg.RAG.IngestDir, err)
		} else {
			log.Printf("startup ingestion indexed %d new documents from %s", len(results), cfg.RAG.IngestDir)
		}
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatalf("failed to create chat model: %v", err)
	}
	aiService, err := ai.NewService(ctx, chatModel, vectors, history, cfg.RAG)
	if err != nil {
		log.Fatalf("failed to initialize AI service: %v", err)
	}
	log.Println("AI service initialized successfully")

	router := handler.NewRouter(handler.Dependencies{
		Assistant:    aiService,
		History:      history,
		Ingester:     ingestService,
		Catalog:      vectors,
		HistoryLimit: cfg.RAG.HistoryLimit,
		StaticDir:    cfg.StaticDir,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("RAG chatbot backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Printf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
