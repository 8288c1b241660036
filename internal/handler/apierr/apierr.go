// Package apierr maps service errors to HTTP statuses and client messages.
package apierr

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/rag-chatbot/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/rag-chatbot/backend/internal/service/chat"
	"github.com/zhouzirui/rag-chatbot/backend/internal/service/ingest"
)

// Status returns the response status and the message safe to show a client.
// Unknown errors are hidden behind a generic message.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, ai.ErrEmptyMessage),
		errors.Is(err, chatservice.ErrSessionRequired),
		errors.Is(err, chatservice.ErrInvalidRole),
		errors.Is(err, ingest.ErrIngestion):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ai.ErrUpstream):
		return http.StatusBadGateway, "the assistant is temporarily unavailable, please try again"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
