package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhouzirui/rag-chatbot/backend/internal/model/chat"
	docmodel "github.com/zhouzirui/rag-chatbot/backend/internal/model/document"
	"github.com/zhouzirui/rag-chatbot/backend/internal/service/ai"
	chatService "github.com/zhouzirui/rag-chatbot/backend/internal/service/chat"
	ingestService "github.com/zhouzirui/rag-chatbot/backend/internal/service/ingest"
)

type stubAssistant struct {
	history chatService.Store
}

func (s stubAssistant) Chat(ctx context.Context, sessionID, message string) (ai.Reply, error) {
	s.history.Append(ctx, sessionID, chat.RoleUser, message)
	s.history.Append(ctx, sessionID, chat.RoleAssistant, "ok")
	return ai.Reply{SessionID: sessionID, Text: "ok"}, nil
}

func (s stubAssistant) StreamChat(ctx context.Context, sessionID, message string, onDelta func(string) error) (ai.Reply, error) {
	if err := onDelta("ok"); err != nil {
		return ai.Reply{}, err
	}
	return s.Chat(ctx, sessionID, message)
}

type stubIngester struct{}

func (stubIngester) Ingest(context.Context, string) (ingestService.Result, error) {
	return ingestService.Result{Source: "menu.pdf", ChunksIndexed: 2}, nil
}

func (stubIngester) Sources(context.Context) ([]docmodel.SourceSummary, error) {
	return []docmodel.SourceSummary{{Source: "menu.pdf", Chunks: 2}}, nil
}

func newTestRouter(staticDir string) http.Handler {
	history := chatService.NewMemoryStore()
	return NewRouter(Dependencies{
		Assistant:    stubAssistant{history: history},
		History:      history,
		Ingester:     stubIngester{},
		Catalog:      stubIngester{},
		HistoryLimit: 10,
		StaticDir:    staticDir,
	})
}

func TestRoutes(t *testing.T) {
	router := newTestRouter("")

	tests := []struct {
		method, target, body string
		want                 int
		contains             string
	}{
		{http.MethodGet, "/health", "", http.StatusOK, `"status":"ok"`},
		{http.MethodPost, "/api/chat", `{"message":"hi"}`, http.StatusOK, `"reply":"ok"`},
		{http.MethodGet, "/api/history", "", http.StatusOK, `"session_id":"default"`},
		{http.MethodPost, "/api/clear-chat", `{}`, http.StatusOK, `"status":"success"`},
		{http.MethodPost, "/api/ingest", `{"pdf_path":"menu.pdf"}`, http.StatusOK, `"chunks_indexed":2`},
		{http.MethodGet, "/api/documents", "", http.StatusOK, `"menu.pdf"`},
		{http.MethodGet, "/api/stream/s1?message=hi", "", http.StatusOK, `"event":"end"`},
		{http.MethodGet, "/", "", http.StatusOK, "<title>Document Assistant</title>"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.target, bytes.NewReader([]byte(tt.body)))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != tt.want {
			t.Fatalf("%s %s: expected %d, got %d", tt.method, tt.target, tt.want, resp.Code)
		}
		if !strings.Contains(resp.Body.String(), tt.contains) {
			t.Fatalf("%s %s: body %q does not contain %q", tt.method, tt.target, resp.Body.String(), tt.contains)
		}
	}
}

func TestStaticDirOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("custom frontend"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	newTestRouter(dir).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "custom frontend") {
		t.Fatalf("expected custom frontend, got %d %q", resp.Code, resp.Body.String())
	}
}
