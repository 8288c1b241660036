package main

import (
	"flag"
	"log"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/rag-chatbot/backend/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var addr, sessionID string
	flag.StringVar(&addr, "addr", defaultAddr(), "Chat server base address")
	flag.StringVar(&sessionID, "session", "", "Conversation session ID (random if empty)")
	flag.Parse()

	if strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}

	client, err := tui.Dial(addr, sessionID)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", addr, err)
	}
	defer client.Close()

	m := tui.New(client, sessionID)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
	if err := client.Err(); err != nil {
		log.Printf("connection closed: %v", err)
	}
}

func defaultAddr() string {
	port := strings.TrimSpace(os.Getenv("PORT"))
	switch {
	case port == "":
		return "http://localhost:8080"
	case strings.HasPrefix(port, ":"):
		return "http://localhost" + port
	case strings.Contains(port, ":"):
		return "http://" + port
	default:
		return "http://localhost:" + port
	}
}
