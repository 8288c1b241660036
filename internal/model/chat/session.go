package chat

import "strings"

// DefaultSessionID groups messages from clients that do not send a session id.
const DefaultSessionID = "default"

// SessionOrDefault returns the trimmed id, or DefaultSessionID when it is blank.
func SessionOrDefault(id string) string {
	if id = strings.TrimSpace(id); id == "" {
		return DefaultSessionID
	}
	return id
}
