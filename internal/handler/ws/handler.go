package ws

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/rag-chatbot/backend/internal/handler/apierr"
	"github.com/zhouzirui/rag-chatbot/backend/internal/model/chat"
	"github.com/zhouzirui/rag-chatbot/backend/internal/service/ai"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// StreamResponder produces assistant replies incrementally.
type StreamResponder interface {
	StreamChat(ctx context.Context, sessionID, message string, onDelta func(string) error) (ai.Reply, error)
}

// HistoryClearer drops a session's messages.
type HistoryClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

// Handler serves chat over a WebSocket, one connection per session.
type Handler struct {
	responder   StreamResponder
	history     HistoryClearer
	upgrader    websocket.Upgrader
	readTimeout time.Duration
}

// New creates a WebSocket chat handler.
func New(responder StreamResponder, history HistoryClearer) *Handler {
	return &Handler{
		responder:   responder,
		history:     history,
		readTimeout: readTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the WebSocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chat.SessionOrDefault(chi.URLParam(r, "sessionID"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	go pingLoop(ctx, conn)

	send(conn, sessionID, "connected", nil)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			return
		}

		// Nothing reads during a turn, so the deadline restarts once it ends.
		h.handleMessage(ctx, conn, sessionID, msg)
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, sessionID string, msg inboundMessage) {
	switch msg.Type {
	case "message", "text":
		if strings.TrimSpace(msg.Text) == "" {
			sendError(conn, sessionID, "text is required")
			return
		}
		reply, err := h.responder.StreamChat(ctx, sessionID, msg.Text, func(delta string) error {
			return send(conn, sessionID, "delta", map[string]string{"content": delta})
		})
		if err != nil {
			log.Printf("[ws] chat failed for session=%s: %v", sessionID, err)
			_, message := apierr.Status(err)
			sendError(conn, sessionID, message)
			return
		}
		send(conn, sessionID, "reply", reply)
	case "clear":
		if err := h.history.Clear(ctx, sessionID); err != nil {
			_, message := apierr.Status(err)
			sendError(conn, sessionID, message)
			return
		}
		send(conn, sessionID, "cleared", nil)
	default:
		sendError(conn, sessionID, "unknown message type")
	}
}

func send(conn *websocket.Conn, sessionID, kind string, data any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(outgoingMessage{
		Type:      kind,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[ws] write %s failed: %v", kind, err)
	}
	return err
}

func sendError(conn *websocket.Conn, sessionID, message string) {
	send(conn, sessionID, "error", map[string]string{"message": message})
}

// pingLoop keeps idle connections alive. WriteControl may be called
// concurrently with the reader's writes.
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
