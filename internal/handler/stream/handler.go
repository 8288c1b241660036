package stream

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/rag-chatbot/backend/internal/handler/apierr"
	"github.com/zhouzirui/rag-chatbot/backend/internal/model/chat"
	docmodel "github.com/zhouzirui/rag-chatbot/backend/internal/model/document"
	"github.com/zhouzirui/rag-chatbot/backend/internal/service/ai"
	"github.com/zhouzirui/rag-chatbot/backend/pkg/utils"
)

// StreamResponder produces assistant replies incrementally.
type StreamResponder interface {
	StreamChat(ctx context.Context, sessionID, message string, onDelta func(string) error) (ai.Reply, error)
}

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	responder StreamResponder
}

// New creates a new stream handler
func New(responder StreamResponder) *Handler {
	return &Handler{responder: responder}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string           `json:"event"`
	Content   string           `json:"content,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Sources   []docmodel.Chunk `json:"sources,omitempty"`
	Finished  bool             `json:"finished,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// RegisterRoutes mounts the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := chat.SessionOrDefault(chi.URLParam(r, "sessionID"))
		userMessage := r.URL.Query().Get("message")

		if strings.TrimSpace(userMessage) == "" {
			utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
			return
		}

		if err := h.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
			log.Printf("[stream] error handling request: %v", err)
		}
	})
}

// HandleStreamRequest streams one chat turn as SSE events: start, delta*,
// message, end. Failures after the headers are sent arrive as an error event.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
	})

	reply, err := h.responder.StreamChat(ctx, sessionID, userMessage, func(delta string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:     "delta",
			SessionID: sessionID,
			Content:   delta,
		})
		return nil
	})
	if err != nil {
		_, message := apierr.Status(err)
		utils.SendSSEChunk(w, flusher, StreamResponse{
			Event:     "error",
			SessionID: sessionID,
			Error:     message,
		})
		return err
	}

	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   reply.Text,
		Sources:   reply.Sources,
	})

	// Send completion signal
	utils.SendSSEChunk(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})

	log.Printf("[stream] completed response for session=%s", sessionID)
	return nil
}
