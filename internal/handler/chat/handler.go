package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/rag-chatbot/backend/internal/handler/apierr"
	"github.com/zhouzirui/rag-chatbot/backend/internal/model/chat"
	docmodel "github.com/zhouzirui/rag-chatbot/backend/internal/model/document"
	"github.com/zhouzirui/rag-chatbot/backend/internal/service/ai"
	chatService "github.com/zhouzirui/rag-chatbot/backend/internal/service/chat"
	"github.com/zhouzirui/rag-chatbot/backend/pkg/utils"
)

// Responder produces assistant replies.
type Responder interface {
	Chat(ctx context.Context, sessionID, message string) (ai.Reply, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	responder    Responder
	history      chatService.Store
	historyLimit int
}

// New 创建聊天处理器
func New(responder Responder, history chatService.Store, historyLimit int) *Handler {
	return &Handler{
		responder:    responder,
		history:      history,
		historyLimit: historyLimit,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/clear-chat", h.handleClearChat)
	r.Get("/history", h.handleHistory)
}

// handleChat 生成一轮回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.responder.Chat(r.Context(), chat.SessionOrDefault(payload.SessionID), payload.Message)
	if err != nil {
		status, message := apierr.Status(err)
		utils.RespondError(w, status, message)
		return
	}

	if reply.Sources == nil {
		reply.Sources = []docmodel.Chunk{}
	}
	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleClearChat 清空会话
func (h *Handler) handleClearChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
	}

	// an empty body clears the default session
	if err := utils.DecodeJSON(w, r, &payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := chat.SessionOrDefault(payload.SessionID)
	if err := h.history.Clear(r.Context(), sessionID); err != nil {
		status, message := apierr.Status(err)
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":     "success",
		"session_id": sessionID,
	})
}

// handleHistory 返回会话最近的消息
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chat.SessionOrDefault(r.URL.Query().Get("session_id"))

	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	messages, err := h.history.History(r.Context(), sessionID, limit)
	if err != nil {
		status, message := apierr.Status(err)
		utils.RespondError(w, status, message)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   messages,
	})
}
