package model

import "context"

// HistoryRepository persists chat turns per session. It feeds Input.ChatHistory
// and is written to after a run; the engine itself never touches it.
type HistoryRepository interface {
	// AddMessage appends a message to the session history.
	AddMessage(ctx context.Context, sessionID string, message ChatMessage) error

	// LoadHistory returns the session history, most recent last.
	LoadHistory(ctx context.Context, sessionID string) ([]ChatMessage, error)

	// ClearHistory removes all history for a session.
	ClearHistory(ctx context.Context, sessionID string) error

	// GetMessageCount returns the number of stored messages.
	GetMessageCount(ctx context.Context, sessionID string) (int, error)
}

// RecentMessages returns at most maxTurns trailing messages as a fresh slice.
func RecentMessages(messages []ChatMessage, maxTurns int) []ChatMessage {
	if maxTurns <= 0 {
		return []ChatMessage{}
	}
	src := messages
	if len(messages) > maxTurns {
		src = messages[len(messages)-maxTurns:]
	}
	out := make([]ChatMessage, len(src))
	copy(out, src)
	return out
}
