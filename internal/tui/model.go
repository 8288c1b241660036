package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Conn is the TUI-facing side of the chat connection.
type Conn interface {
	Send(text string) error
	Clear() error
	Frames() <-chan Frame
}

type role int

const (
	roleUser role = iota
	roleAssistant
	roleNotice
)

type line struct {
	role    role
	text    string
	sources []Source
}

// frameMsg carries one server frame into Update.
type frameMsg Frame

// closedMsg reports that the server connection ended.
type closedMsg struct{}

// Model is the Bubble Tea model of the chat client.
type Model struct {
	conn      Conn
	sessionID string
	input     textinput.Model
	viewport  viewport.Model
	lines     []line
	pending   string
	waiting   bool
	status    string
	ready     bool
}

// New creates a chat model bound to conn.
func New(conn Conn, sessionID string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the documents, /clear to reset, /quit to exit"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{conn: conn, sessionID: sessionID, input: ti, viewport: vp, status: "Connecting..."}
}

// Init starts the cursor blink and the frame reader.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForFrame(m.conn.Frames()))
}

func waitForFrame(frames <-chan Frame) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-frames
		if !ok {
			return closedMsg{}
		}
		return frameMsg(f)
	}
}

// Update handles keys, window resizes and server frames.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ch := chatBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + ch // header + status
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-1)
		m.refresh()
		return m, nil
	case frameMsg:
		m.applyFrame(Frame(msg))
		m.refresh()
		return m, waitForFrame(m.conn.Frames())
	case closedMsg:
		m.status = "Disconnected from server."
		m.waiting = false
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.SetValue("")

	switch text {
	case "/quit":
		return m, tea.Quit
	case "/clear":
		if err := m.conn.Clear(); err != nil {
			m.status = "Error: " + err.Error()
		}
		return m, nil
	}

	if m.waiting {
		m.status = "Still answering the previous message."
		return m, nil
	}
	if err := m.conn.Send(text); err != nil {
		m.status = "Error: " + err.Error()
		return m, nil
	}
	m.lines = append(m.lines, line{role: roleUser, text: text})
	m.pending = ""
	m.waiting = true
	m.status = "Thinking..."
	m.refresh()
	return m, nil
}

func (m *Model) applyFrame(f Frame) {
	switch f.Type {
	case FrameConnected:
		if f.SessionID != "" {
			m.sessionID = f.SessionID
		}
		m.status = fmt.Sprintf("Connected, session %s.", m.sessionID)
	case FrameDelta:
		var d deltaData
		if json.Unmarshal(f.Data, &d) == nil {
			m.pending += d.Content
		}
	case FrameReply:
		var r replyData
		if err := json.Unmarshal(f.Data, &r); err != nil {
			m.status = "Error: malformed reply"
			break
		}
		text := r.Text
		if text == "" {
			text = m.pending
		}
		m.lines = append(m.lines, line{role: roleAssistant, text: text, sources: r.Sources})
		m.pending = ""
		m.waiting = false
		m.status = "Ready."
	case FrameCleared:
		m.lines = []line{{role: roleNotice, text: "Conversation cleared."}}
		m.pending = ""
		m.status = "Ready."
	case FrameError:
		var e errorData
		_ = json.Unmarshal(f.Data, &e)
		if e.Message == "" {
			e.Message = "unknown error"
		}
		m.pending = ""
		m.waiting = false
		m.status = "Error: " + e.Message
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

// View renders the header, conversation, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("RAG Chatbot") + " " + mutedStyle.Render(m.sessionID)
	chatBox := chatBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + chatBox + "\n" + input + "\n" + status
}

func (m Model) renderConversation() string {
	if len(m.lines) == 0 && m.pending == "" {
		return mutedStyle.Render("No messages yet.")
	}
	width := m.viewport.Width
	var b strings.Builder
	for _, l := range m.lines {
		b.WriteString(renderLine(l, width))
		b.WriteString("\n\n")
	}
	if m.pending != "" {
		b.WriteString(renderLine(line{role: roleAssistant, text: m.pending}, width))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderLine(l line, width int) string {
	wrap := lipgloss.NewStyle()
	if width > 0 {
		wrap = wrap.Width(width)
	}
	switch l.role {
	case roleUser:
		return userStyle.Render("You: ") + wrap.Render(l.text)
	case roleAssistant:
		out := assistantStyle.Render("Bot: ") + wrap.Render(l.text)
		if refs := formatSources(l.sources); refs != "" {
			out += "\n" + mutedStyle.Render(refs)
		}
		return out
	default:
		return mutedStyle.Render(l.text)
	}
}

func formatSources(sources []Source) string {
	if len(sources) == 0 {
		return ""
	}
	refs := make([]string, len(sources))
	for i, s := range sources {
		refs[i] = fmt.Sprintf("%s#%d", s.Source, s.Index+1)
	}
	return "sources: " + strings.Join(refs, ", ")
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
