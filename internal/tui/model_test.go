package tui

import (
	"encoding/json"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	sent    []string
	clears  int
	sendErr error
	frames  chan Frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan Frame, 8)}
}

func (c *fakeConn) Send(text string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeConn) Clear() error {
	c.clears++
	return nil
}

func (c *fakeConn) Frames() <-chan Frame { return c.frames }

func frame(t *testing.T, kind string, data any) frameMsg {
	t.Helper()
	f := Frame{Type: kind, SessionID: "s1"}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		f.Data = raw
	}
	return frameMsg(f)
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func sized(t *testing.T, conn Conn) Model {
	t.Helper()
	return update(t, New(conn, "s1"), tea.WindowSizeMsg{Width: 80, Height: 24})
}

func TestSubmitSendsMessageAndWaits(t *testing.T) {
	conn := newFakeConn()
	m := typeText(t, sized(t, conn), "When do you open?")

	assert.Equal(t, []string{"When do you open?"}, conn.sent)
	assert.True(t, m.waiting)
	assert.Empty(t, m.input.Value())
	assert.Equal(t, "Thinking...", m.status)

	m = typeText(t, m, "another")
	assert.Len(t, conn.sent, 1)
	assert.Equal(t, "Still answering the previous message.", m.status)
}

func TestDeltasThenReply(t *testing.T) {
	conn := newFakeConn()
	m := typeText(t, sized(t, conn), "hours?")

	m = update(t, m, frame(t, FrameDelta, map[string]string{"content": "Open "}))
	m = update(t, m, frame(t, FrameDelta, map[string]string{"content": "at noon."}))
	assert.Equal(t, "Open at noon.", m.pending)
	assert.Contains(t, m.renderConversation(), "Open at noon.")

	m = update(t, m, frame(t, FrameReply, map[string]any{
		"reply":   "Open at noon.",
		"sources": []map[string]any{{"source": "hours.pdf", "chunk_index": 0}},
	}))
	assert.False(t, m.waiting)
	assert.Empty(t, m.pending)
	require.Len(t, m.lines, 2)
	assert.Equal(t, roleAssistant, m.lines[1].role)
	assert.Equal(t, "Open at noon.", m.lines[1].text)
	assert.Contains(t, m.renderConversation(), "sources: hours.pdf#1")
}

func TestErrorFrameEndsTurn(t *testing.T) {
	conn := newFakeConn()
	m := typeText(t, sized(t, conn), "hello")
	m = update(t, m, frame(t, FrameDelta, map[string]string{"content": "partial"}))
	m = update(t, m, frame(t, FrameError, map[string]string{"message": "upstream service unavailable"}))

	assert.False(t, m.waiting)
	assert.Empty(t, m.pending)
	assert.Equal(t, "Error: upstream service unavailable", m.status)
	assert.Len(t, m.lines, 1)
}

func TestClearCommand(t *testing.T) {
	conn := newFakeConn()
	m := typeText(t, sized(t, conn), "/clear")
	assert.Equal(t, 1, conn.clears)
	assert.Empty(t, conn.sent)

	m = update(t, m, frame(t, FrameCleared, nil))
	require.Len(t, m.lines, 1)
	assert.Equal(t, roleNotice, m.lines[0].role)
}

func TestQuitKeys(t *testing.T) {
	m := sized(t, newFakeConn())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/quit")})
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestSendFailureShowsError(t *testing.T) {
	conn := newFakeConn()
	conn.sendErr = errors.New("broken pipe")
	m := typeText(t, sized(t, conn), "hi")
	assert.False(t, m.waiting)
	assert.Equal(t, "Error: broken pipe", m.status)
	assert.Empty(t, m.lines)
}

func TestConnectedAndClosed(t *testing.T) {
	conn := newFakeConn()
	m := sized(t, conn)
	assert.Equal(t, "Loading...", New(conn, "s1").View())

	m = update(t, m, frame(t, FrameConnected, nil))
	assert.Equal(t, "Connected, session s1.", m.status)
	assert.Contains(t, m.View(), "RAG Chatbot")

	close(conn.frames)
	msg := waitForFrame(conn.Frames())()
	assert.IsType(t, closedMsg{}, msg)
	m = update(t, m, msg)
	assert.Equal(t, "Disconnected from server.", m.status)
}
