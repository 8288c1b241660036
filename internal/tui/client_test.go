package tui

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/api/ws/s1"},
		{"https://chat.example.com/", "wss://chat.example.com/api/ws/s1"},
		{"ws://10.0.0.2:9000/prefix", "ws://10.0.0.2:9000/prefix/api/ws/s1"},
	}
	for _, tc := range cases {
		got, err := WebSocketURL(tc.base, "s1")
		require.NoError(t, err, tc.base)
		assert.Equal(t, tc.want, got)
	}

	_, err := WebSocketURL("ftp://host", "s1")
	assert.Error(t, err)
	_, err = WebSocketURL("http://", "s1")
	assert.Error(t, err)
}

// echoServer mimics the chat endpoint: it greets, streams the text back as
// two deltas plus a reply, and acknowledges clears.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/ws/") {
			http.NotFound(w, r)
			return
		}
		sessionID := strings.TrimPrefix(r.URL.Path, "/api/ws/")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(map[string]any{"type": FrameConnected, "session_id": sessionID})
		for {
			var in outbound
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			switch in.Type {
			case "message":
				half := len(in.Text) / 2
				conn.WriteJSON(map[string]any{"type": FrameDelta, "data": map[string]string{"content": in.Text[:half]}})
				conn.WriteJSON(map[string]any{"type": FrameDelta, "data": map[string]string{"content": in.Text[half:]}})
				conn.WriteJSON(map[string]any{"type": FrameReply, "data": map[string]any{"reply": in.Text, "sources": []any{}}})
			case "clear":
				conn.WriteJSON(map[string]any{"type": FrameCleared, "session_id": sessionID})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func nextFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case f, ok := <-c.Frames():
		require.True(t, ok, "connection closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestClientRoundTrip(t *testing.T) {
	srv := echoServer(t)

	client, err := Dial(srv.URL, "tui-session")
	require.NoError(t, err)
	defer client.Close()

	f := nextFrame(t, client)
	assert.Equal(t, FrameConnected, f.Type)
	assert.Equal(t, "tui-session", f.SessionID)

	require.NoError(t, client.Send("hello there"))
	assert.Equal(t, FrameDelta, nextFrame(t, client).Type)
	assert.Equal(t, FrameDelta, nextFrame(t, client).Type)
	reply := nextFrame(t, client)
	assert.Equal(t, FrameReply, reply.Type)
	assert.JSONEq(t, `{"reply":"hello there","sources":[]}`, string(reply.Data))

	require.NoError(t, client.Clear())
	assert.Equal(t, FrameCleared, nextFrame(t, client).Type)
	assert.NoError(t, client.Err())
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Dial(srv.URL, "s1")
	assert.Error(t, err)
}
