package tui

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types sent by the server's /api/ws endpoint.
const (
	FrameConnected = "connected"
	FrameDelta     = "delta"
	FrameReply     = "reply"
	FrameCleared   = "cleared"
	FrameError     = "error"
)

const writeTimeout = 10 * time.Second

// Frame is one server message. Data is decoded lazily by frame type.
type Frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Source is the part of a retrieved chunk the client displays.
type Source struct {
	Source string `json:"source"`
	Index  int    `json:"chunk_index"`
}

type deltaData struct {
	Content string `json:"content"`
}

type replyData struct {
	Text    string   `json:"reply"`
	Sources []Source `json:"sources"`
}

type errorData struct {
	Message string `json:"message"`
}

type outbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Client is a WebSocket connection to the chat server for one session.
type Client struct {
	conn   *websocket.Conn
	frames chan Frame
	errs   chan error

	writeMu sync.Mutex
}

// WebSocketURL turns the server's HTTP base address into the session's
// WebSocket endpoint.
func WebSocketURL(base, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server address: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server address %q has no host", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws/" + url.PathEscape(sessionID)
	return u.String(), nil
}

// Dial connects to the server and starts reading frames in the background.
func Dial(base, sessionID string) (*Client, error) {
	addr, err := WebSocketURL(base, sessionID)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:   conn,
		frames: make(chan Frame, 64),
		errs:   make(chan error, 1),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.frames)
	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.errs <- err
			}
			return
		}
		c.frames <- f
	}
}

// Frames yields server frames until the connection ends.
func (c *Client) Frames() <-chan Frame { return c.frames }

// Err reports why the read loop stopped, if it stopped abnormally.
func (c *Client) Err() error {
	select {
	case err := <-c.errs:
		return err
	default:
		return nil
	}
}

// Send asks the server to answer text.
func (c *Client) Send(text string) error {
	return c.write(outbound{Type: "message", Text: text})
}

// Clear asks the server to drop the session history.
func (c *Client) Clear() error {
	return c.write(outbound{Type: "clear"})
}

func (c *Client) write(msg outbound) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
